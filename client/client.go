// Package client talks to the publications API over HTTP.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"github.com/LucasAro/JuscashCase/domain"
)

var (
	// ErrUnauthorized means the credential was missing, expired or revoked.
	ErrUnauthorized = errors.New("client: not authenticated")
	// ErrUnavailable covers network failures and server errors.
	ErrUnavailable = errors.New("client: service unavailable")
)

// StatusError is a rejected request that maps to no sentinel error.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("client: %d %s: %s", e.Code, http.StatusText(e.Code), e.Message)
}

// Credential is a bearer token and its expiry.
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the credential can no longer be used at now.
func (c Credential) Expired(now time.Time) bool {
	return c.Token == "" || (!c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt))
}

// Client wraps http.Client with the API's routes. Every authenticated call
// takes the credential explicitly.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a new Client.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), HTTP: httpClient}
}

const maxErrorBody = 4 << 10

func (c *Client) do(ctx context.Context, method, path string, cred *Credential, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := sonic.ConfigStd.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if cred != nil {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("client: decode %s %s: %w", method, path, err)
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, msg)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidTransition, msg)
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, msg)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %d %s", ErrUnavailable, resp.StatusCode, msg)
	default:
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
}

func pageQuery(f domain.Filter, cur domain.Cursor) url.Values {
	q := url.Values{}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	if f.DateFrom != nil {
		q.Set("dateFrom", f.DateFrom.String())
	}
	if f.DateTo != nil {
		q.Set("dateTo", f.DateTo.String())
	}
	if cur.Limit > 0 {
		q.Set("limit", strconv.Itoa(cur.Limit))
	}
	for _, s := range domain.Statuses {
		if off := cur.Offset(s); off > 0 {
			q.Set("offset."+string(s), strconv.Itoa(off))
		}
	}
	return q
}

// FetchPage loads one page of every status column.
func (c *Client) FetchPage(ctx context.Context, cred Credential, f domain.Filter, cur domain.Cursor) (domain.Page, error) {
	path := "/records"
	if q := pageQuery(f.Normalize(), cur).Encode(); q != "" {
		path += "?" + q
	}
	var raw map[domain.Status]domain.Bucket
	if err := c.do(ctx, http.MethodGet, path, &cred, nil, &raw); err != nil {
		return nil, err
	}
	page := domain.NewPage()
	for s, b := range raw {
		if !s.Valid() {
			continue
		}
		if b.Records == nil {
			b.Records = []domain.Publication{}
		}
		page[s] = b
	}
	return page, nil
}

// FetchByID loads one publication.
func (c *Client) FetchByID(ctx context.Context, cred Credential, id int64) (domain.Publication, error) {
	var p domain.Publication
	err := c.do(ctx, http.MethodGet, "/records/"+strconv.FormatInt(id, 10), &cred, nil, &p)
	return p, err
}

// UpdateStatus moves a publication and returns the stored record.
func (c *Client) UpdateStatus(ctx context.Context, cred Credential, id int64, to domain.Status) (domain.Publication, error) {
	var p domain.Publication
	body := map[string]string{"status": string(to)}
	err := c.do(ctx, http.MethodPut, "/records/"+strconv.FormatInt(id, 10)+"/status", &cred, body, &p)
	return p, err
}

// History lists the recorded status changes of a publication, newest first.
func (c *Client) History(ctx context.Context, cred Credential, id int64) ([]domain.StatusChange, error) {
	var out []domain.StatusChange
	err := c.do(ctx, http.MethodGet, "/records/"+strconv.FormatInt(id, 10)+"/history", &cred, nil, &out)
	return out, err
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, name, email, password string) (domain.User, error) {
	var u domain.User
	body := map[string]string{"name": name, "email": email, "password": password}
	err := c.do(ctx, http.MethodPost, "/users/register", nil, body, &u)
	return u, err
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

// Login exchanges an email and password for a credential.
func (c *Client) Login(ctx context.Context, email, password string) (Credential, domain.User, error) {
	var resp loginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/users/login", nil, body, &resp); err != nil {
		return Credential{}, domain.User{}, err
	}
	if resp.Token == "" {
		return Credential{}, domain.User{}, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	return Credential{Token: resp.Token, ExpiresAt: resp.ExpiresAt}, resp.User, nil
}

// Validate checks the credential and returns the user id it belongs to.
func (c *Client) Validate(ctx context.Context, cred Credential) (string, error) {
	var resp struct {
		Valid  bool   `json:"valid"`
		UserID string `json:"userId"`
	}
	if err := c.do(ctx, http.MethodPost, "/users/validate", &cred, nil, &resp); err != nil {
		return "", err
	}
	if !resp.Valid {
		return "", ErrUnauthorized
	}
	return resp.UserID, nil
}

// Logout revokes the credential on the server.
func (c *Client) Logout(ctx context.Context, cred Credential) error {
	return c.do(ctx, http.MethodPost, "/users/logout", &cred, nil, nil)
}
