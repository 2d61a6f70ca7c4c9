package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/LucasAro/JuscashCase/domain"
)

const (
	maxBodySize        = 64 * 1024 // 64 KiB
	defaultPageSize    = 30
	defaultMaxPageSize = 200
)

// Deps holds the collaborators of the HTTP handlers. History and Events are
// optional.
type Deps struct {
	Records     RecordStore
	Users       UserStore
	Auth        Authenticator
	Tokens      TokenIssuer
	Revoker     Revoker
	History     HistoryReader
	Events      EventPublisher
	Logger      *log.Logger
	PageSize    int
	MaxPageSize int
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	if d.Logger == nil {
		panic("Logger is not initialized")
	}
	pages := pageLimits{size: d.PageSize, max: d.MaxPageSize}.normalize()

	e.JSONSerializer = sonicSerializer{}
	e.Use(GzipRequestMiddleware())

	e.GET("/records", getRecords(d.Records, d.Auth, pages, d.Logger))
	e.GET("/records/:id", getRecord(d.Records, d.Auth))
	e.PUT("/records/:id/status", putRecordStatus(d.Records, d.Auth, d.Events, d.Logger))
	e.GET("/records/:id/history", getRecordHistory(d.History, d.Auth))
	e.GET("/publications", searchPublications(d.Records, d.Auth))

	e.POST("/users/register", postRegister(d.Users))
	e.POST("/users/login", postLogin(d.Users, d.Tokens))
	e.POST("/users/validate", postValidate(d.Auth))
	e.POST("/users/logout", postLogout(d.Auth, d.Revoker))

	e.GET("/healthz", healthz(d.Records))
}

type pageLimits struct {
	size int
	max  int
}

func (p pageLimits) normalize() pageLimits {
	if p.max <= 0 {
		p.max = defaultMaxPageSize
	}
	if p.size <= 0 {
		p.size = defaultPageSize
	}
	if p.size > p.max {
		p.size = p.max
	}
	return p
}

type errorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type transitionError struct {
	Error string        `json:"error"`
	From  domain.Status `json:"from"`
	To    domain.Status `json:"to"`
}

func healthz(store RecordStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			return c.String(http.StatusServiceUnavailable, "record store unavailable")
		}
		return c.String(http.StatusOK, "ok")
	}
}

// authenticate resolves the caller or writes the rejection. A nil error with
// ok=false means the response has been written.
func authenticate(c echo.Context, auth Authenticator) (Identity, bool, error) {
	id, err := auth.IdentityFromAuthHeader(c.Request().Context(), c.Request().Header.Get(echo.HeaderAuthorization))
	if err == nil {
		return id, true, nil
	}
	if errors.Is(err, errRevocationUnavailable) {
		c.Logger().Error(err)
		return Identity{}, false, c.String(http.StatusServiceUnavailable, "authentication unavailable")
	}
	return Identity{}, false, c.String(http.StatusUnauthorized, err.Error())
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func parseOptionalDate(raw string) (*domain.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// parseBoardQuery reads the filter and cursor of GET /records. A plain
// offset applies to every column; offset.<status> overrides it per column.
func parseBoardQuery(c echo.Context, pages pageLimits) (domain.Filter, domain.Cursor, error) {
	var f domain.Filter
	var cur domain.Cursor

	f.Search = strings.TrimSpace(c.QueryParam("search"))
	var err error
	if f.DateFrom, err = parseOptionalDate(c.QueryParam("dateFrom")); err != nil {
		return f, cur, err
	}
	if f.DateTo, err = parseOptionalDate(c.QueryParam("dateTo")); err != nil {
		return f, cur, err
	}

	cur.Limit = pages.size
	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return f, cur, errors.New("invalid limit")
		}
		if n > pages.max {
			n = pages.max
		}
		cur.Limit = n
	}

	base := 0
	if raw := strings.TrimSpace(c.QueryParam("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return f, cur, errors.New("invalid offset")
		}
		base = n
	}
	cur.Offsets = make(map[domain.Status]int, len(domain.Statuses))
	for _, s := range domain.Statuses {
		cur.Offsets[s] = base
		if raw := strings.TrimSpace(c.QueryParam("offset." + string(s))); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return f, cur, fmt.Errorf("invalid offset for %s", s)
			}
			cur.Offsets[s] = n
		}
	}
	return f, cur, nil
}

func getRecords(store RecordStore, auth Authenticator, pages pageLimits, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, logger, "/records")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, ok, authErr := authenticate(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if !ok {
			metrics.SetErrorStage("auth")
			return authErr
		}

		f, cur, parseErr := parseBoardQuery(c, pages)
		if parseErr != nil {
			metrics.SetErrorStage("invalid_query")
			err = c.String(http.StatusBadRequest, parseErr.Error())
			return err
		}
		metrics.Annotate(
			attribute.Bool(attrPrefix+"search_provided", f.Search != ""),
			attribute.Bool(attrPrefix+"date_range_provided", f.DateFrom != nil || f.DateTo != nil),
			attribute.Int(attrPrefix+"limit", cur.Limit),
		)

		storeStart := time.Now()
		page, fetchErr := store.FetchPage(ctx, f, cur)
		metrics.ObserveStore(time.Since(storeStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = c.String(http.StatusInternalServerError, fetchErr.Error())
			return err
		}
		returned := 0
		for _, b := range page {
			returned += len(b.Records)
		}
		metrics.SetRecords(returned)

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, page)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getRecord(store RecordStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok, err := authenticate(c, auth); !ok {
			return err
		}
		id, err := parseID(c.Param("id"))
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		p, err := store.FetchByID(c.Request().Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.String(http.StatusNotFound, "record not found")
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, p)
	}
}

type statusRequest struct {
	Status string `json:"status"`
}

func putRecordStatus(store RecordStore, auth Authenticator, events EventPublisher, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, logger, "/records/:id/status")
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		caller, ok, authErr := authenticate(c, auth)
		metrics.ObserveAuth(time.Since(authStart))
		if !ok {
			metrics.SetErrorStage("auth")
			return authErr
		}

		id, parseErr := parseID(c.Param("id"))
		if parseErr != nil {
			metrics.SetErrorStage("invalid_id")
			err = c.String(http.StatusBadRequest, parseErr.Error())
			return err
		}
		var body statusRequest
		if decErr := decodeBody(c, &body); decErr != nil {
			metrics.SetErrorStage("invalid_body")
			err = c.String(http.StatusBadRequest, "invalid body")
			return err
		}
		to, statusErr := domain.ParseStatus(body.Status)
		if statusErr != nil {
			metrics.SetErrorStage("invalid_status")
			err = c.String(http.StatusBadRequest, statusErr.Error())
			return err
		}

		storeStart := time.Now()
		p, from, updErr := store.UpdateStatus(ctx, id, to)
		metrics.ObserveStore(time.Since(storeStart))
		metrics.Annotate(attribute.String(attrPrefix+"from", string(from)), attribute.String(attrPrefix+"to", string(to)))
		switch {
		case updErr == nil:
		case errors.Is(updErr, domain.ErrNotFound):
			metrics.SetErrorStage("not_found")
			err = c.String(http.StatusNotFound, "record not found")
			return err
		case errors.Is(updErr, domain.ErrInvalidTransition):
			metrics.SetErrorStage("invalid_transition")
			err = c.JSON(http.StatusUnprocessableEntity, transitionError{Error: "status transition not allowed", From: from, To: to})
			return err
		case errors.Is(updErr, domain.ErrInvalidStatus):
			metrics.SetErrorStage("invalid_status")
			err = c.String(http.StatusBadRequest, updErr.Error())
			return err
		default:
			metrics.SetErrorStage("storage")
			c.Logger().Error(updErr)
			err = c.String(http.StatusInternalServerError, updErr.Error())
			return err
		}

		if from != to && events != nil {
			change := domain.StatusChange{
				ID:            uuid.NewString(),
				PublicationID: p.ID,
				From:          from,
				To:            to,
				UserID:        caller.UserID,
				ChangedAt:     p.UpdatedAt,
			}
			if !events.Publish(change) {
				logger.WithFields(log.Fields{"event_id": change.ID, "publication_id": p.ID}).Warn("status change event dropped")
			}
		}
		metrics.SetRecords(1)
		err = c.JSON(http.StatusOK, p)
		return err
	}
}

func getRecordHistory(history HistoryReader, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok, err := authenticate(c, auth); !ok {
			return err
		}
		if history == nil {
			return c.String(http.StatusNotImplemented, "status history is not configured")
		}
		id, err := parseID(c.Param("id"))
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		changes, err := history.List(c.Request().Context(), id)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, changes)
	}
}

// firstParam returns the first non-empty query parameter among names.
func firstParam(c echo.Context, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(c.QueryParam(n)); v != "" {
			return v
		}
	}
	return ""
}

func searchPublications(store RecordStore, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok, err := authenticate(c, auth); !ok {
			return err
		}
		q := domain.SearchQuery{
			CaseNumber: firstParam(c, "caseNumber", "processo"),
			Party:      firstParam(c, "party", "envolvido"),
		}
		date, err := parseOptionalDate(firstParam(c, "date", "data"))
		if err != nil {
			return c.String(http.StatusBadRequest, err.Error())
		}
		q.Date = date
		if raw := firstParam(c, "status"); raw != "" {
			st, err := domain.ParseStatus(raw)
			if err != nil {
				return c.String(http.StatusBadRequest, err.Error())
			}
			q.Status = &st
		}

		out, err := store.Search(c.Request().Context(), q)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, out)
	}
}
