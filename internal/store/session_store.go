package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"
)

// Session is the persisted login: which server, who, and the bearer token.
// Records are never stored locally.
type Session struct {
	BaseURL   string    `json:"base_url"`
	Username  string    `json:"username,omitempty"`
	Token     string    `json:"token,omitempty"`
	TokenType string    `json:"token_type,omitempty"`
	SavedAt   time.Time `json:"saved_at,omitempty"`
}

func (s *Session) Empty() bool {
	return s == nil || strings.TrimSpace(s.Token) == ""
}

type SessionStore interface {
	// Load returns an empty Session when nothing was saved.
	Load(ctx context.Context) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Clear(ctx context.Context) error
}

type FileSessionStore struct {
	path string
	mu   sync.Mutex
}

func NewFileSessionStore(path string) *FileSessionStore {
	return &FileSessionStore{path: path}
}

func (s *FileSessionStore) Load(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &Session{}
	if err := readJSON(s.path, session); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return session, nil
		}
		return nil, err
	}
	return session, nil
}

func (s *FileSessionStore) Save(ctx context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session == nil {
		return errors.New("session is required")
	}
	return writeJSONAtomic(s.path, stampSession(session))
}

func (s *FileSessionStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(s.path)
}

func stampSession(session *Session) *Session {
	out := *session
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	out.Username = strings.TrimSpace(out.Username)
	out.Token = strings.TrimSpace(out.Token)
	if out.SavedAt.IsZero() {
		out.SavedAt = time.Now().UTC()
	}
	return &out
}
