package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/LucasAro/JuscashCase/api"
	"github.com/LucasAro/JuscashCase/client"
	"github.com/LucasAro/JuscashCase/domain"
	"github.com/LucasAro/JuscashCase/storage"
)

type harness struct {
	t       *testing.T
	srv     *httptest.Server
	store   *storage.Store
	session string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	store, err := storage.Open(ctx, "sqlite::memory:", logger)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	revoker := api.NewMemoryRevoker()
	auth, err := api.NewAuth(api.AuthOptions{Secret: "boardctl-test", Revoker: revoker})
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

	return &harness{t: t, srv: srv, store: store, session: filepath.Join(t.TempDir(), "session.json")}
}

func (h *harness) run(args ...string) (string, string, error) {
	h.t.Helper()
	var out, errOut bytes.Buffer
	a := &app{now: func() time.Time { return time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC) }}
	full := append([]string{"--api", h.srv.URL, "--session", h.session}, args...)
	err := execute(context.Background(), a, full, &out, &errOut)
	return out.String(), errOut.String(), err
}

func (h *harness) seed(p domain.Publication) domain.Publication {
	h.t.Helper()
	saved, err := h.store.InsertPublication(context.Background(), p)
	require.NoError(h.t, err)
	return saved
}

func (h *harness) login() {
	h.t.Helper()
	_, _, err := h.run("register", "--name", "Ana", "--email", "ana@example.com", "--password", "Str0ng!pass")
	require.NoError(h.t, err)
	out, _, err := h.run("login", "--email", "ana@example.com", "--password", "Str0ng!pass")
	require.NoError(h.t, err)
	require.Contains(h.t, out, "Bem-vindo, Ana")
}

func TestBoardRequiresLogin(t *testing.T) {
	h := newHarness(t)
	_, errOut, err := h.run("board")
	require.ErrorIs(t, err, client.ErrUnauthorized)
	require.Contains(t, errOut, "Sessão expirada")
}

func TestLoginWithWrongPassword(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("login", "--email", "nobody@example.com", "--password", "x")
	require.EqualError(t, err, "email ou senha inválidos")

	_, _, err = h.run("login", "--email", "nobody@example.com")
	require.EqualError(t, err, "password is required")
}

func TestBoardMoveShowLogout(t *testing.T) {
	h := newHarness(t)
	d := domain.NewDate(2024, time.November, 1)
	first := h.seed(domain.Publication{CaseNumber: "0001234-10.2024.8.26.0100", Claimants: "Maria", PublicationDate: &d})
	h.seed(domain.Publication{CaseNumber: "0009999-10.2024.8.26.0100", Status: domain.StatusDone})
	h.login()

	out, _, err := h.run("board")
	require.NoError(t, err)
	require.Contains(t, out, "Nova Publicação")
	require.Contains(t, out, "0001234-10.2024.8.26.0100")
	require.Contains(t, out, "0009999-10.2024.8.26.0100")

	out, _, err = h.run("board", "--search", "1234")
	require.NoError(t, err)
	require.Contains(t, out, "0001234-10.2024.8.26.0100")
	require.NotContains(t, out, "0009999")
	require.Contains(t, out, `busca "1234"`)

	id := fmt.Sprint(first.ID)
	_, _, err = h.run("move", id, "concluida")
	require.EqualError(t, err, "Movimento não permitido")

	out, _, err = h.run("move", id, "lida")
	require.NoError(t, err)
	require.Contains(t, out, "Nova Publicação → Publicação Lida")

	stored, err := h.store.FetchByID(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.StatusRead, stored.Status)

	out, _, err = h.run("show", id)
	require.NoError(t, err)
	require.Contains(t, out, "Autor(es): Maria")
	require.Contains(t, out, "01/11/2024")

	_, _, err = h.run("show", "999")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, _, err = h.run("move", "abc", "lida")
	require.EqualError(t, err, `invalid id "abc"`)

	out, _, err = h.run("logout")
	require.NoError(t, err)
	require.Contains(t, out, "Sessão encerrada")

	_, _, err = h.run("board")
	require.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestBoardPages(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.seed(domain.Publication{CaseNumber: "case-" + string(rune('a'+i))})
	}
	h.login()

	out, _, err := h.run("board", "--page-size", "2")
	require.NoError(t, err)
	require.Contains(t, out, "2 de 5")
	require.Contains(t, out, "--pages")

	out, _, err = h.run("board", "--page-size", "2", "--pages", "3")
	require.NoError(t, err)
	require.Contains(t, out, "5 de 5")
	require.NotContains(t, out, "--pages")
}
