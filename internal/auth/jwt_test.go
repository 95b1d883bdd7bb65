package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLogin(t *testing.T) {
	a := New("admin", "s3cret", "jwt-secret", time.Hour)

	token, expiresAt, err := a.Login("admin", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := a.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	_, _, err = a.Login("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = New("", "", "jwt-secret", 0).Login("", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidate_Rejects(t *testing.T) {
	a := New("admin", "pw", "jwt-secret", time.Minute)
	token, _, err := a.Login("admin", "pw")
	require.NoError(t, err)

	_, err = New("admin", "pw", "other-secret", time.Minute).Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := New("admin", "pw", "jwt-secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = expired.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Username: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Validate(none)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	a := New("admin", "pw", "jwt-secret", time.Minute)
	token, _, err := a.Login("admin", "pw")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/private", a.Middleware(), func(c *gin.Context) {
		c.String(http.StatusOK, ClaimsFrom(c).Username)
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"invalid", "Bearer not-a-token", http.StatusForbidden},
		{"valid", "Bearer " + token, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "admin", w.Body.String())
			}
		})
	}
}
