package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/LucasAro/JuscashCase/domain"
)

// Session owns the credential of the signed in user. It is the only place a
// token is stored; callers ask it for the credential on every request.
type Session struct {
	client *Client
	path   string

	mu       sync.Mutex
	cred     *Credential
	user     domain.User
	onReject func(error)
	now      func() time.Time
}

type sessionFile struct {
	Credential
	User domain.User `json:"user"`
}

// NewSession creates a signed out session. When path is not empty the
// credential is persisted there between runs.
func NewSession(c *Client, path string) *Session {
	return &Session{client: c, path: path, now: time.Now}
}

// OnReject registers the re-authentication hook, called when the server
// rejects the credential.
func (s *Session) OnReject(fn func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReject = fn
}

// Login signs in and stores the credential.
func (s *Session) Login(ctx context.Context, email, password string) (domain.User, error) {
	cred, u, err := s.client.Login(ctx, email, password)
	if err != nil {
		return domain.User{}, err
	}
	s.mu.Lock()
	s.cred = &cred
	s.user = u
	s.mu.Unlock()
	if err := s.save(); err != nil {
		return u, err
	}
	return u, nil
}

// Logout revokes the credential on the server and forgets it locally. A
// credential the server already rejects is forgotten without error.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	cred := s.cred
	s.mu.Unlock()
	if cred == nil {
		return nil
	}
	err := s.client.Logout(ctx, *cred)
	if err != nil && !errors.Is(err, ErrUnauthorized) {
		return err
	}
	return s.clear()
}

// Credential returns the current credential or ErrUnauthorized.
func (s *Session) Credential() (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cred == nil || s.cred.Expired(s.now()) {
		return Credential{}, ErrUnauthorized
	}
	return *s.cred, nil
}

// User returns the signed in user.
func (s *Session) User() domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Validate asks the server whether the credential is still accepted.
func (s *Session) Validate(ctx context.Context) error {
	cred, err := s.Credential()
	if err != nil {
		return err
	}
	if _, err := s.client.Validate(ctx, cred); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.Reject(err)
		}
		return err
	}
	return nil
}

// Reject forgets the credential and hands over to the re-authentication hook.
func (s *Session) Reject(cause error) {
	_ = s.clear()
	s.mu.Lock()
	fn := s.onReject
	s.mu.Unlock()
	if fn != nil {
		fn(cause)
	}
}

func (s *Session) clear() error {
	s.mu.Lock()
	s.cred = nil
	s.user = domain.User{}
	s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *Session) save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	f := sessionFile{User: s.user}
	if s.cred != nil {
		f.Credential = *s.cred
	}
	s.mu.Unlock()

	data, err := sonic.ConfigStd.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return nil
}

// Load restores a persisted credential. A missing or expired file leaves the
// session signed out.
func (s *Session) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read session file: %w", err)
	}
	var f sessionFile
	if err := sonic.ConfigStd.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("decode session file: %w", err)
	}
	if f.Expired(s.now()) {
		return s.clear()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cred := f.Credential
	s.cred = &cred
	s.user = f.User
	return nil
}
