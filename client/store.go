package client

import (
	"context"
	"errors"

	"github.com/LucasAro/JuscashCase/domain"
)

// Store binds a Client to a Session so the board can use it as its record
// store. A rejected credential is handed back to the session.
type Store struct {
	client  *Client
	session *Session
}

// NewStore creates a session bound store.
func NewStore(c *Client, s *Session) *Store {
	return &Store{client: c, session: s}
}

func (s *Store) credential() (Credential, error) {
	cred, err := s.session.Credential()
	if err != nil {
		s.session.Reject(err)
	}
	return cred, err
}

func (s *Store) check(err error) error {
	if errors.Is(err, ErrUnauthorized) {
		s.session.Reject(err)
	}
	return err
}

func (s *Store) FetchPage(ctx context.Context, f domain.Filter, cur domain.Cursor) (domain.Page, error) {
	cred, err := s.credential()
	if err != nil {
		return nil, err
	}
	page, err := s.client.FetchPage(ctx, cred, f, cur)
	return page, s.check(err)
}

func (s *Store) FetchByID(ctx context.Context, id int64) (domain.Publication, error) {
	cred, err := s.credential()
	if err != nil {
		return domain.Publication{}, err
	}
	p, err := s.client.FetchByID(ctx, cred, id)
	return p, s.check(err)
}

func (s *Store) UpdateStatus(ctx context.Context, id int64, to domain.Status) (domain.Publication, error) {
	cred, err := s.credential()
	if err != nil {
		return domain.Publication{}, err
	}
	p, err := s.client.UpdateStatus(ctx, cred, id, to)
	return p, s.check(err)
}

func (s *Store) History(ctx context.Context, id int64) ([]domain.StatusChange, error) {
	cred, err := s.credential()
	if err != nil {
		return nil, err
	}
	out, err := s.client.History(ctx, cred, id)
	return out, s.check(err)
}
