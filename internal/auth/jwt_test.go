package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)

	token, err := m.GenerateAccessToken(Claims{Subject: "cli", Scope: "backtest"})
	require.NoError(t, err)

	claims, err := m.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "cli", claims.Subject)
	assert.Equal(t, "backtest", claims.Scope)
	assert.Equal(t, int64(3600), m.GetAccessTokenDuration())
}

func TestGenerateRequiresSubject(t *testing.T) {
	_, err := NewJWTManager("secret", time.Hour).GenerateAccessToken(Claims{})
	assert.Error(t, err)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("one", time.Hour).GenerateAccessToken(Claims{Subject: "cli"})
	require.NoError(t, err)

	_, err = NewJWTManager("two", time.Hour).ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewJWTManager("one", time.Hour).ValidateAccessToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateExpiredToken(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }

	token, err := m.GenerateAccessToken(Claims{Subject: "cli"})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.ValidateAccessToken(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func newProtectedRouter(m *JWTManager) *gin.Engine {
	r := gin.New()
	r.GET("/private", Middleware(m), func(c *gin.Context) {
		c.String(http.StatusOK, GetSubject(c))
	})
	return r
}

func TestMiddleware(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.GenerateAccessToken(Claims{Subject: "alice"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, "missing authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, ErrInvalidToken.Code},
		{"valid", "Bearer " + token, http.StatusOK, "alice"},
		{"lowercase scheme", "bearer " + token, http.StatusOK, "alice"},
	}

	router := newProtectedRouter(m)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestGetSubjectWithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetSubject(c))
}
