package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/LucasAro/JuscashCase/domain"
)

var errInvalidCredentials = errors.New("invalid credentials")

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

type validateResponse struct {
	Valid     bool      `json:"valid"`
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func postRegister(users UserStore) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		var details []string
		name := strings.TrimSpace(req.Name)
		if name == "" {
			details = append(details, "name is required")
		}
		email, err := domain.NormalizeEmail(req.Email)
		if err != nil {
			details = append(details, err.Error())
		}
		details = append(details, domain.PasswordProblems(req.Password)...)
		if len(details) > 0 {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid registration", Details: details})
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "could not hash password")
		}
		u, err := users.CreateUser(c.Request().Context(), domain.User{
			Name:         name,
			Email:        email,
			PasswordHash: string(hash),
		})
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return c.JSON(http.StatusConflict, errorResponse{Error: "email already registered"})
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusCreated, u)
	}
}

func postLogin(users UserStore, tokens TokenIssuer) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		email, err := domain.NormalizeEmail(req.Email)
		if err != nil || req.Password == "" {
			return c.String(http.StatusUnauthorized, errInvalidCredentials.Error())
		}

		u, err := users.UserByEmail(c.Request().Context(), email)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.String(http.StatusUnauthorized, errInvalidCredentials.Error())
			}
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, err.Error())
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
			return c.String(http.StatusUnauthorized, errInvalidCredentials.Error())
		}

		token, expiresAt, err := tokens.Issue(u)
		if errors.Is(err, errIssuerDisabled) {
			return c.String(http.StatusNotImplemented, err.Error())
		}
		if err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "could not issue token")
		}
		return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt, User: u})
	}
}

func postValidate(auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok, err := authenticate(c, auth)
		if !ok {
			return err
		}
		return c.JSON(http.StatusOK, validateResponse{Valid: true, UserID: id.UserID, ExpiresAt: id.ExpiresAt})
	}
}

func postLogout(auth Authenticator, revoker Revoker) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok, err := authenticate(c, auth)
		if !ok {
			return err
		}
		if revoker == nil || id.TokenID == "" {
			return c.NoContent(http.StatusNoContent)
		}
		if err := revoker.Revoke(c.Request().Context(), id.TokenID, id.ExpiresAt); err != nil {
			c.Logger().Error(err)
			return c.String(http.StatusServiceUnavailable, "logout unavailable")
		}
		c.Logger().Infof("token revoked for user %s", strconv.Quote(id.UserID))
		return c.NoContent(http.StatusNoContent)
	}
}
