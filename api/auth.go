package api

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/LucasAro/JuscashCase/domain"
)

const (
	defaultTokenTTL     = time.Hour
	defaultJWKSCacheTTL = 15 * time.Minute
	clockSkew           = time.Minute
)

var (
	errTokenRevoked          = errors.New("token revoked")
	errRevocationUnavailable = errors.New("revocation check unavailable")
	errIssuerDisabled        = errors.New("token issuing requires a shared secret")
)

// AuthOptions configures Auth. With a JWKS the tokens are verified as RS256
// against the key set; otherwise Secret signs and verifies HS256 tokens.
type AuthOptions struct {
	Secret      string
	JWKS        *keyfunc.JWKS
	Audience    string
	Issuer      string
	TokenTTL    time.Duration
	KeyCacheTTL time.Duration
	Revoker     Revoker
}

// Auth issues and validates session tokens.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
	Secret   []byte
	TokenTTL time.Duration
	Revoker  Revoker

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates a new Auth instance.
func NewAuth(opts AuthOptions) (*Auth, error) {
	a := &Auth{
		JWKS:        opts.JWKS,
		Audience:    opts.Audience,
		Issuer:      opts.Issuer,
		TokenTTL:    opts.TokenTTL,
		Revoker:     opts.Revoker,
		keyCacheTTL: opts.KeyCacheTTL,
		now:         time.Now,
	}
	if a.TokenTTL <= 0 {
		a.TokenTTL = defaultTokenTTL
	}
	if a.keyCacheTTL <= 0 {
		a.keyCacheTTL = defaultJWKSCacheTTL
	}

	switch {
	case a.JWKS != nil:
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	case opts.Secret != "":
		a.Secret = []byte(opts.Secret)
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	default:
		return nil, errors.New("auth: either a JWT secret or a JWKS is required")
	}
	return a, nil
}

// Issue signs an HS256 token for the user.
func (a *Auth) Issue(u domain.User) (string, time.Time, error) {
	if len(a.Secret) == 0 {
		return "", time.Time{}, errIssuerDisabled
	}
	now := a.now()
	expiresAt := now.Add(a.TokenTTL)
	claims := jwt.MapClaims{
		"sub":   strconv.FormatInt(u.ID, 10),
		"email": u.Email,
		"name":  u.Name,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   expiresAt.Unix(),
	}
	if a.Issuer != "" {
		claims["iss"] = a.Issuer
	}
	if a.Audience != "" {
		claims["aud"] = a.Audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, time.Unix(expiresAt.Unix(), 0).UTC(), nil
}

// IdentityFromAuthHeader resolves the caller from the Authorization header
// and rejects tokens that were logged out.
func (a *Auth) IdentityFromAuthHeader(ctx context.Context, h string) (Identity, error) {
	if h == "" {
		return Identity{}, errMissingAuthorization
	}
	token, err := bearerTokenFromString(h)
	if err != nil {
		return Identity{}, err
	}
	id, err := a.IdentityFromBearer(token)
	if err != nil {
		return Identity{}, err
	}
	if a.Revoker != nil && id.TokenID != "" {
		revoked, err := a.Revoker.Revoked(ctx, id.TokenID)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %v", errRevocationUnavailable, err)
		}
		if revoked {
			return Identity{}, errTokenRevoked
		}
	}
	return id, nil
}

// IdentityFromBearer validates a bearer token presented as raw bytes.
func (a *Auth) IdentityFromBearer(token []byte) (Identity, error) {
	if len(token) == 0 {
		return Identity{}, errBadAuthorization
	}

	tokenStr := readOnlyString(token)
	var parsedToken *jwt.Token
	var err error
	if a.JWKS == nil {
		parsedToken, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.Secret, nil
		})
	} else {
		parsedToken, err = a.parser.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			return a.keyForToken(t)
		})
	}
	if err != nil {
		return Identity{}, err
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, errors.New("invalid claims")
	}

	now := a.now()
	if !claims.VerifyExpiresAt(now.Unix(), true) {
		return Identity{}, errors.New("token expired")
	}
	skewed := now.Add(clockSkew).Unix()
	if !claims.VerifyNotBefore(skewed, false) {
		return Identity{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(skewed, false) {
		return Identity{}, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, false) {
		return Identity{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, false) {
		return Identity{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Identity{}, errors.New("missing sub")
	}

	id := Identity{UserID: sub}
	id.TokenID, _ = claims["jti"].(string)
	if exp, ok := claims["exp"].(float64); ok {
		id.ExpiresAt = time.Unix(int64(exp), 0).UTC()
	}
	return id, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
