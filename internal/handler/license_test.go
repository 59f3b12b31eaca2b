package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phonetool/license-server/internal/domain/license"
	"github.com/phonetool/license-server/internal/handler/middleware"
	"github.com/phonetool/license-server/internal/service"
	"github.com/phonetool/license-server/internal/storage/memstorage"
	"github.com/phonetool/license-server/internal/token"
)

const testAdminToken = "admin-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *memstorage.LicenseRepository, *token.Codec) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := zap.NewNop()
	repo := memstorage.NewLicenseRepository()
	codec := token.NewCodec("test-secret")

	activationService := service.NewActivationService(repo, codec, time.Second, logger)
	adminService := service.NewAdminService(repo, logger)

	licenseHandler := NewLicenseHandler(activationService, logger)
	adminHandler := NewAdminHandler(adminService, logger)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(logger))

	router.POST("/license/activate", licenseHandler.Activate)
	router.POST("/license/verify_token", licenseHandler.VerifyToken)

	adminRoutes := router.Group("/admin")
	adminRoutes.Use(middleware.AdminAuthMiddleware(testAdminToken, logger))
	adminRoutes.POST("/create_license", adminHandler.CreateLicense)
	adminRoutes.POST("/kill_license", adminHandler.KillLicense)
	adminRoutes.GET("/list_licenses", adminHandler.ListLicenses)

	return router, repo, codec
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedLicense(t *testing.T, repo *memstorage.LicenseRepository, key string, maxActivations int) {
	t.Helper()
	_, err := repo.Create(context.Background(), &license.License{
		LicenseKey:     key,
		Owner:          sql.NullString{String: "owner@example.com", Valid: true},
		Plan:           sql.NullString{String: "pro", Valid: true},
		MaxActivations: maxActivations,
		Active:         true,
	})
	require.NoError(t, err)
}

func TestActivateEndpoint(t *testing.T) {
	router, repo, codec := newTestRouter(t)
	seedLicense(t, repo, "http-key", 1)

	w := postJSON(t, router, "/license/activate", gin.H{
		"license_key": "http-key",
		"device_id":   "device-A",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Valid           bool   `json:"valid"`
		Message         string `json:"message"`
		ActivationToken string `json:"activation_token"`
		License         *struct {
			Key   string  `json:"key"`
			Owner *string `json:"owner"`
			Plan  *string `json:"plan"`
		} `json:"license"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))

	assert.True(t, resp.Valid)
	assert.Equal(t, "Activated", resp.Message)
	assert.True(t, codec.Verify(resp.ActivationToken))
	require.NotNil(t, resp.License)
	assert.Equal(t, "http-key", resp.License.Key)
}

func TestActivateEndpointNegativeOutcomesAre200(t *testing.T) {
	router, repo, _ := newTestRouter(t)
	seedLicense(t, repo, "full-key", 1)

	first := postJSON(t, router, "/license/activate", gin.H{"license_key": "full-key", "device_id": "A"}, nil)
	require.Equal(t, http.StatusOK, first.Code)

	tests := []struct {
		name       string
		body       gin.H
		wantMsg    string
		wantStatus int
	}{
		{"unknown license", gin.H{"license_key": "nope", "device_id": "A"}, "License not found", http.StatusOK},
		{"limit reached", gin.H{"license_key": "full-key", "device_id": "B"}, "Activation limit reached", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, "/license/activate", tt.body, nil)
			require.Equal(t, tt.wantStatus, w.Code)

			var resp struct {
				Valid   bool   `json:"valid"`
				Message string `json:"message"`
				Token   string `json:"activation_token"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Valid)
			assert.Equal(t, tt.wantMsg, resp.Message)
			assert.Empty(t, resp.Token)
		})
	}
}

func TestActivateEndpointRequiresLicenseKey(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postJSON(t, router, "/license/activate", gin.H{"device_id": "A"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestVerifyTokenEndpoint(t *testing.T) {
	router, _, codec := newTestRouter(t)

	valid := codec.Sign("some-key", "device-A", time.Now())

	tests := []struct {
		name      string
		token     string
		wantValid bool
	}{
		{"valid token", valid, true},
		{"garbage token", "garbage", false},
		{"foreign token", token.NewCodec("other-secret").Sign("some-key", "device-A", time.Now()), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, router, "/license/verify_token", gin.H{"activation_token": tt.token}, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var resp struct {
				Valid    bool       `json:"valid"`
				IssuedAt *time.Time `json:"issued_at"`
			}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantValid, resp.Valid)
			if tt.wantValid {
				require.NotNil(t, resp.IssuedAt)
				assert.WithinDuration(t, time.Now().UTC(), *resp.IssuedAt, time.Minute)
			} else {
				assert.Nil(t, resp.IssuedAt)
			}
		})
	}
}

func TestVerifyTokenEndpointRequiresToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postJSON(t, router, "/license/verify_token", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
