package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewAuthMiddleware(func(_ context.Context, token string) (*Principal, error) {
		if token != "good" {
			return nil, errors.New("bad token")
		}
		return &Principal{UserID: "u-1", Username: "alice", DisplayName: "Alice", Email: "alice@x.com"}, nil
	})

	r := gin.New()
	r.GET("/me", m.RequireAuth(), func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, p.UserID+"|"+p.DisplayName+"|"+GetToken(c))
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
		code   int
		body   string
	}{
		{name: "missing header", header: "", code: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", code: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer nope", code: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer good", code: http.StatusOK, body: "u-1|Alice|good"},
	}

	r := newRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			require.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				require.Equal(t, tt.body, w.Body.String())
			} else {
				require.Contains(t, w.Body.String(), `"success":false`)
			}
		})
	}
}
