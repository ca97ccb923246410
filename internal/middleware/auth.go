package middleware

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/dfryer1193/goblog/api"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const principalKey = "principal"

var ErrInvalidToken = errors.New("invalid token")

// Principal is the authenticated caller.
type Principal struct {
	ID string
}

// Authenticator verifies request credentials. It returns a nil principal and
// a nil error when the request carries no credentials at all.
type Authenticator interface {
	Authenticate(r *http.Request) (*Principal, error)
}

// StaticTokenAuthenticator accepts a single pre-shared bearer token.
type StaticTokenAuthenticator struct {
	token     []byte
	principal string
}

var _ Authenticator = (*StaticTokenAuthenticator)(nil)

func NewStaticTokenAuthenticator(token, principal string) *StaticTokenAuthenticator {
	return &StaticTokenAuthenticator{
		token:     []byte(token),
		principal: principal,
	}
}

func (a *StaticTokenAuthenticator) Authenticate(r *http.Request) (*Principal, error) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		return nil, nil
	}

	if len(a.token) == 0 || subtle.ConstantTimeCompare([]byte(token), a.token) != 1 {
		return nil, ErrInvalidToken
	}

	return &Principal{ID: a.principal}, nil
}

// OptionalAuth attaches the principal when valid credentials are present.
// Requests with missing or invalid credentials continue anonymously.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := auth.Authenticate(c.Request)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("Ignoring invalid credentials")
		}
		if principal != nil {
			c.Set(principalKey, principal)
		}
		c.Next()
	}
}

// RequireAuth rejects requests without valid credentials.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := auth.Authenticate(c.Request)
		if err != nil || principal == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.Fail("Authentication required"))
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFrom returns the principal attached by OptionalAuth or RequireAuth.
func PrincipalFrom(c *gin.Context) (*Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}
