package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"parkingnear/internal/config"
	"parkingnear/internal/domain"

	"github.com/stretchr/testify/assert"
)

func authConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "reader", Extra: "r-extra", Permissions: []string{"read:bills", "read:spaces"}},
				{Key: "admin", Extra: "a-extra"},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}
}

func TestHTTPAuth(t *testing.T) {
	api := newTestAPI(t, authConfig())

	t.Run("HealthWithoutKey", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/api/v1/healthz", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("MissingHeaders", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/api/v1/spaces", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("InvalidKey", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/api/v1/spaces", nil, "x-api-key", "nope", "x-api-extra", "r-extra")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("InvalidExtra", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/api/v1/spaces", nil, "x-api-key", "reader", "x-api-extra", "wrong")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Allowed", func(t *testing.T) {
		resp := api.do(http.MethodGet, "/api/v1/spaces", nil, "x-api-key", "reader", "x-api-extra", "r-extra")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		resp := api.do(http.MethodPost, "/api/v1/spaces", map[string]any{"address": "x"},
			"x-api-key", "reader", "x-api-extra", "r-extra")
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("EmptyPermissionsAllowAll", func(t *testing.T) {
		resp := api.do(http.MethodPost, "/api/v1/spaces", map[string]any{"address": "x"},
			"x-api-key", "admin", "x-api-extra", "a-extra")
		// прошел авторизацию, отклонен валидацией
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestHTTPAuth_RateLimit(t *testing.T) {
	api := newTestAPI(t, config.APIConfig{
		RateLimit: config.APIRateLimitConfig{RPS: 1, Burst: 1},
	})

	resp := api.do(http.MethodGet, "/api/v1/spaces", nil, "x-api-key", "key1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = api.do(http.MethodGet, "/api/v1/spaces", nil, "x-api-key", "key1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// другой ключ получает свой лимит
	resp = api.do(http.MethodGet, "/api/v1/spaces", nil, "x-api-key", "key2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequiredPermission(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/bills/3", "read:bills"},
		{http.MethodPost, "/api/v1/bills/3/payments", "write:bills"},
		{http.MethodPut, "/api/v1/spaces/1/rate", "write:spaces"},
		{http.MethodGet, "/api/v1/providers/1/statement", "read:providers"},
		{http.MethodGet, "/metrics", ""},
		{http.MethodGet, "/api/v1/", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requiredPermission(tt.method, tt.path), "%s %s", tt.method, tt.path)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: x", domain.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("%w: x", domain.ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: x", domain.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: x", domain.ErrInvalidTransition), http.StatusConflict},
		{fmt.Errorf("%w: x", domain.ErrConflict), http.StatusConflict},
		{fmt.Errorf("%w: x", domain.ErrRetryable), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
