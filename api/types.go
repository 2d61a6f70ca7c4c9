package api

import (
	"context"
	"time"

	"github.com/LucasAro/JuscashCase/domain"
)

// RecordStore abstracts publication persistence for handlers.
type RecordStore interface {
	FetchPage(ctx context.Context, f domain.Filter, c domain.Cursor) (domain.Page, error)
	FetchByID(ctx context.Context, id int64) (domain.Publication, error)
	UpdateStatus(ctx context.Context, id int64, to domain.Status) (domain.Publication, domain.Status, error)
	Search(ctx context.Context, q domain.SearchQuery) ([]domain.Publication, error)
	Ping(ctx context.Context) error
}

// UserStore abstracts account persistence.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) (domain.User, error)
	UserByEmail(ctx context.Context, email string) (domain.User, error)
}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// Authenticator is implemented by types able to resolve callers from headers.
type Authenticator interface {
	IdentityFromAuthHeader(ctx context.Context, header string) (Identity, error)
}

// TokenIssuer signs session tokens for authenticated users.
type TokenIssuer interface {
	Issue(u domain.User) (string, time.Time, error)
}

// Revoker remembers logged out tokens until they expire.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

// HistoryReader lists the recorded status changes of a publication.
type HistoryReader interface {
	List(ctx context.Context, publicationID int64) ([]domain.StatusChange, error)
}

// EventPublisher hands committed status changes to background sinks.
type EventPublisher interface {
	Publish(ch domain.StatusChange) bool
}
