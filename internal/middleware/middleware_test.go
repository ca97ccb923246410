package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dfryer1193/goblog/api"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStaticTokenAuthenticator(t *testing.T) {
	auth := NewStaticTokenAuthenticator("s3cret", "admin")

	tests := []struct {
		name          string
		header        string
		wantPrincipal bool
		wantErr       bool
	}{
		{name: "no header"},
		{name: "other scheme", header: "Basic abc"},
		{name: "valid token", header: "Bearer s3cret", wantPrincipal: true},
		{name: "wrong token", header: "Bearer nope", wantErr: true},
		{name: "token prefix only", header: "Bearer s3cre", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			principal, err := auth.Authenticate(req)

			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.wantPrincipal, principal != nil)
			if principal != nil {
				assert.Equal(t, "admin", principal.ID)
			}
		})
	}
}

func TestStaticTokenAuthenticator_EmptyTokenRejectsAll(t *testing.T) {
	auth := NewStaticTokenAuthenticator("", "admin")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")

	principal, err := auth.Authenticate(req)

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, principal)
}

func newAuthRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.GET("/", append(handlers, func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.String(http.StatusOK, "anonymous")
			return
		}
		c.String(http.StatusOK, p.ID)
	})...)
	return r
}

func TestOptionalAuth(t *testing.T) {
	r := newAuthRouter(OptionalAuth(NewStaticTokenAuthenticator("s3cret", "admin")))

	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "anonymous", want: "anonymous"},
		{name: "valid", header: "Bearer s3cret", want: "admin"},
		{name: "invalid continues anonymously", header: "Bearer wrong", want: "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestRequireAuth(t *testing.T) {
	r := newAuthRouter(RequireAuth(NewStaticTokenAuthenticator("s3cret", "admin")))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	var resp api.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", w.Body.String())
}

func TestHandlePanics(t *testing.T) {
	r := gin.New()
	r.Use(LoggingMiddleware())
	r.Use(gin.CustomRecovery(HandlePanics()))
	r.GET("/boom", func(c *gin.Context) {
		panic("secret internal detail")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "secret internal detail")

	var resp api.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
}
