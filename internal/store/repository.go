package store

import (
	"context"
	"errors"
	"strings"
)

const (
	RepositoryBackendFile  = "file"
	RepositoryBackendBbolt = "bbolt"
)

type Repository interface {
	Sessions() SessionStore
	Backend() string
	Close() error
}

type RepositoryPaths struct {
	SessionPath string
	DBPath      string
}

type fileRepository struct {
	sessions SessionStore
}

func NewFileRepository(paths RepositoryPaths) Repository {
	return &fileRepository{sessions: NewFileSessionStore(paths.SessionPath)}
}

func (r *fileRepository) Sessions() SessionStore {
	return r.sessions
}

func (r *fileRepository) Backend() string {
	return RepositoryBackendFile
}

func (r *fileRepository) Close() error {
	return nil
}

func OpenRepository(paths RepositoryPaths, backend string) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", RepositoryBackendBbolt:
		if strings.TrimSpace(paths.DBPath) == "" {
			return nil, errors.New("db path is required for bbolt repository")
		}
		return NewBboltRepository(paths.DBPath)
	case RepositoryBackendFile:
		if strings.TrimSpace(paths.SessionPath) == "" {
			return nil, errors.New("session path is required for file repository")
		}
		return NewFileRepository(paths), nil
	default:
		return nil, errors.New("unsupported repository backend: " + backend)
	}
}

// SeedRepositoryFromFiles copies a session saved by the file backend into dst
// when dst has none, so switching backends keeps the user logged in.
func SeedRepositoryFromFiles(ctx context.Context, dst Repository, paths RepositoryPaths) error {
	if dst == nil || dst.Backend() == RepositoryBackendFile || strings.TrimSpace(paths.SessionPath) == "" {
		return nil
	}
	src := NewFileRepository(paths)
	defer src.Close()

	current, err := dst.Sessions().Load(ctx)
	if err != nil {
		return err
	}
	if !current.Empty() {
		return nil
	}
	legacy, err := src.Sessions().Load(ctx)
	if err != nil {
		return err
	}
	if legacy.Empty() {
		return nil
	}
	return dst.Sessions().Save(ctx, legacy)
}
