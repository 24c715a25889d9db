package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketSession = []byte("session")
	keyCurrent    = []byte("current")
)

type bboltRepository struct {
	db       *bolt.DB
	sessions SessionStore
}

func NewBboltRepository(path string) (Repository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("repository db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := initBboltSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &bboltRepository{db: db, sessions: &bboltSessionStore{db: db}}, nil
}

func (r *bboltRepository) Sessions() SessionStore {
	return r.sessions
}

func (r *bboltRepository) Backend() string {
	return RepositoryBackendBbolt
}

func (r *bboltRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func initBboltSchema(db *bolt.DB) error {
	return db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSession)
		return err
	})
}

type bboltSessionStore struct {
	db *bolt.DB
}

func (s *bboltSessionStore) Load(ctx context.Context) (*Session, error) {
	session := &Session{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if b == nil {
			return nil
		}
		data := b.Get(keyCurrent)
		if len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *bboltSessionStore) Save(ctx context.Context, session *Session) error {
	if session == nil {
		return errors.New("session is required")
	}
	data, err := json.Marshal(stampSession(session))
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketSession)
		if err != nil {
			return err
		}
		return b.Put(keyCurrent, data)
	})
}

func (s *bboltSessionStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if b == nil {
			return nil
		}
		return b.Delete(keyCurrent)
	})
}
