package qrclient

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"
)

var (
	ErrNoSession      = errors.New("no stored session")
	ErrSessionExpired = errors.New("stored session expired")
)

// Session is the persisted login state of the app
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// SessionStore persists the login session between app restarts.
// Get must report ErrSessionExpired for a session past its expiry,
// callers then refresh the pair instead of reusing a dead token.
type SessionStore interface {
	Get() (Session, error)
	Set(Session) error
	Clear() error
}

// MemorySessionStore holds the session for the lifetime of the process
type MemorySessionStore struct {
	mu      sync.Mutex
	session *Session
}

func (s *MemorySessionStore) Get() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Session{}, ErrNoSession
	}
	if s.session.ExpiresAt.Before(time.Now()) {
		return Session{}, ErrSessionExpired
	}

	return *s.session, nil
}

func (s *MemorySessionStore) Set(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = &session
	return nil
}

func (s *MemorySessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
	return nil
}

// FileSessionStore persists the session as a json file, owner readable only
type FileSessionStore struct {
	Path string

	mu sync.Mutex
}

func (s *FileSessionStore) Get() (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var session Session

	raw, err := os.ReadFile(s.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return session, ErrNoSession
	case err != nil:
		return session, err
	}

	if err := json.Unmarshal(raw, &session); err != nil {
		return Session{}, err
	}
	if session.ExpiresAt.Before(time.Now()) {
		return Session{}, ErrSessionExpired
	}

	return session, nil
}

func (s *FileSessionStore) Set(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}

	return os.WriteFile(s.Path, raw, 0o600)
}

func (s *FileSessionStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
