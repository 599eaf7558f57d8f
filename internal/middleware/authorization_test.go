package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"shop-orders/internal/domain"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		role   string
		status int
	}{
		{"admin passes", domain.RoleAdmin, http.StatusOK},
		{"user forbidden", domain.RoleUser, http.StatusForbidden},
		{"no role forbidden", "", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdmin(zap.NewNop())(okHandler())

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.role != "" {
				req = req.WithContext(context.WithValue(req.Context(), UserRoleKey, tt.role))
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
		})
	}
}
