package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/LucasAro/JuscashCase/api"
	"github.com/LucasAro/JuscashCase/board"
	"github.com/LucasAro/JuscashCase/domain"
	"github.com/LucasAro/JuscashCase/storage"
)

const testPassword = "Str0ng!pass"

type env struct {
	srv   *httptest.Server
	store *storage.Store
	c     *Client
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	store, err := storage.Open(ctx, "sqlite::memory:", logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	revoker := api.NewMemoryRevoker()
	auth, err := api.NewAuth(api.AuthOptions{Secret: "client-test", Revoker: revoker})
	require.NoError(t, err)

	e := echo.New()
	api.Register(e, api.Deps{
		Records: store,
		Users:   store,
		Auth:    auth,
		Tokens:  auth,
		Revoker: revoker,
		Logger:  logger,
	})
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &env{srv: srv, store: store, c: New(srv.URL+"/", nil)}
}

func (e *env) seed(t *testing.T, recs ...domain.Publication) []domain.Publication {
	t.Helper()
	out := make([]domain.Publication, 0, len(recs))
	for _, p := range recs {
		saved, err := e.store.InsertPublication(context.Background(), p)
		require.NoError(t, err)
		out = append(out, saved)
	}
	return out
}

func (e *env) signedIn(t *testing.T, path string) *Session {
	t.Helper()
	ctx := context.Background()
	_, err := e.c.Register(ctx, "Ana", "ana@example.com", testPassword)
	require.NoError(t, err)
	s := NewSession(e.c, path)
	_, err = s.Login(ctx, "ana@example.com", testPassword)
	require.NoError(t, err)
	return s
}

func TestSessionLoginPersistsAndLoads(t *testing.T) {
	e := newEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s := e.signedIn(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	cred, err := s.Credential()
	require.NoError(t, err)
	require.NotEmpty(t, cred.Token)

	restored := NewSession(e.c, path)
	require.NoError(t, restored.Load())
	got, err := restored.Credential()
	require.NoError(t, err)
	require.Equal(t, cred.Token, got.Token)
	require.Equal(t, "ana@example.com", restored.User().Email)
	require.NoError(t, restored.Validate(context.Background()))

	require.NoError(t, restored.Logout(context.Background()))
	_, err = os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))

	// the revoked token is rejected for the first session too
	_, err = e.c.Validate(context.Background(), cred)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.c.Register(ctx, "Ana", "ana@example.com", testPassword)
	require.NoError(t, err)

	_, err = e.c.Register(ctx, "Ana", "ana@example.com", testPassword)
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = e.c.Register(ctx, "Ana", "bad", "weak")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusBadRequest, se.Code)

	_, _, err = e.c.Login(ctx, "ana@example.com", "wrong")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestStoreDrivesBoard(t *testing.T) {
	e := newEnv(t)
	recs := e.seed(t,
		domain.Publication{CaseNumber: "0001234-10.2024.8.26.0100", Status: domain.StatusNew},
		domain.Publication{CaseNumber: "0005555-10.2024.8.26.0100", Status: domain.StatusRead},
		domain.Publication{CaseNumber: "0007777-10.2024.8.26.0100", Status: domain.StatusProcessed},
	)
	s := e.signedIn(t, "")

	logger, _ := test.NewNullLogger()
	b := board.New(NewStore(e.c, s), board.Options{PageSize: 10, Logger: logger})
	defer b.Close()
	ctx := context.Background()

	require.NoError(t, b.Mount(ctx))
	v := b.Snapshot()
	for _, st := range domain.Statuses {
		want := 1
		if st == domain.StatusDone {
			want = 0
		}
		require.Len(t, v.Column(st).Items, want, "column %s", st)
	}

	require.NoError(t, b.ResetAndLoad(ctx, domain.Filter{Search: "1234"}))
	v = b.Snapshot()
	require.Len(t, v.Column(domain.StatusNew).Items, 1)
	require.Empty(t, v.Column(domain.StatusRead).Items)
	require.False(t, v.Column(domain.StatusNew).HasMore)

	require.NoError(t, b.ResetAndLoad(ctx, domain.Filter{}))
	m, err := b.Move(ctx, board.MoveRequest{ItemID: recs[2].ID, From: domain.StatusProcessed, To: domain.StatusRead, ToIndex: 0})
	require.NoError(t, err)
	require.Equal(t, board.MoveCommitted, m.State)

	stored, err := e.store.FetchByID(ctx, recs[2].ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRead, stored.Status)
	require.Len(t, b.Snapshot().Column(domain.StatusRead).Items, 2)
}

func TestClientErrorMapping(t *testing.T) {
	e := newEnv(t)
	recs := e.seed(t, domain.Publication{CaseNumber: "1", Status: domain.StatusNew})
	s := e.signedIn(t, "")
	cred, err := s.Credential()
	require.NoError(t, err)
	ctx := context.Background()

	_, err = e.c.FetchByID(ctx, cred, 999)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = e.c.UpdateStatus(ctx, cred, recs[0].ID, domain.StatusDone)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = e.c.UpdateStatus(ctx, cred, 999, domain.StatusRead)
	require.ErrorIs(t, err, domain.ErrNotFound)

	p, err := e.c.UpdateStatus(ctx, cred, recs[0].ID, domain.StatusRead)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRead, p.Status)

	_, err = e.c.FetchPage(ctx, Credential{Token: "garbage"}, domain.Filter{}, domain.Cursor{Limit: 5})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestStoreRejectsSessionOnUnauthorized(t *testing.T) {
	e := newEnv(t)
	s := e.signedIn(t, "")
	cred, _ := s.Credential()
	require.NoError(t, e.c.Logout(context.Background(), cred))

	var rejected error
	s.OnReject(func(err error) { rejected = err })

	_, err := NewStore(e.c, s).FetchPage(context.Background(), domain.Filter{}, domain.Cursor{Limit: 5})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.ErrorIs(t, rejected, ErrUnauthorized)

	_, err = s.Credential()
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	c := New(srv.URL, nil)
	_, err := c.FetchByID(context.Background(), Credential{Token: "t"}, 1)
	require.ErrorIs(t, err, ErrUnavailable)

	srv.Close()
	_, err = c.FetchByID(context.Background(), Credential{Token: "t"}, 1)
	require.ErrorIs(t, err, ErrUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.FetchByID(ctx, Credential{Token: "t"}, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestCredentialExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.True(t, Credential{}.Expired(now))
	require.False(t, Credential{Token: "t"}.Expired(now))
	require.True(t, Credential{Token: "t", ExpiresAt: now}.Expired(now))
	require.False(t, Credential{Token: "t", ExpiresAt: now.Add(time.Second)}.Expired(now))
}

func TestLoadDropsExpiredSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":"t","expiresAt":"2000-01-01T00:00:00Z","user":{"id":1}}`), 0o600))

	s := NewSession(New("http://127.0.0.1:0", nil), path)
	require.NoError(t, s.Load())
	_, err := s.Credential()
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist))
}
