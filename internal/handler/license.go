package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/phonetool/license-server/internal/handler/dto"
	"github.com/phonetool/license-server/internal/service"
	"go.uber.org/zap"
)

type LicenseHandler struct {
	service *service.ActivationService
	logger  *zap.Logger
}

func NewLicenseHandler(service *service.ActivationService, logger *zap.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.Named("LicenseHandler"),
	}
}

// Activate handles POST /license/activate. Negative outcomes (not found,
// disabled, expired, limit reached) are 200s with valid=false; only store
// failures become 5xx.
func (h *LicenseHandler) Activate(c *gin.Context) {
	var req dto.ActivateRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate activation request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	result, err := h.service.Activate(c.Request.Context(), service.ActivateParams{
		LicenseKey:        req.LicenseKey,
		DeviceID:          req.DeviceID,
		DeviceFingerprint: req.DeviceFingerprint,
		IP:                c.ClientIP(),
	})
	if err != nil {
		h.logger.Error("Activation failed on the store side", zap.Error(err))
		_ = c.Error(err)
		return
	}

	h.logger.Debug("Activation attempt processed",
		zap.String("license_key", req.LicenseKey),
		zap.String("reason", string(result.Reason)),
	)
	c.JSON(http.StatusOK, dto.NewActivateResponse(result))
}

// VerifyToken handles POST /license/verify_token: a pure offline signature
// check, no store access.
func (h *LicenseHandler) VerifyToken(c *gin.Context) {
	var req dto.VerifyTokenRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate verify request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	valid, issuedAt := h.service.VerifyToken(req.ActivationToken)
	resp := dto.VerifyTokenResponse{Valid: valid}
	if valid {
		resp.IssuedAt = &issuedAt
	}
	c.JSON(http.StatusOK, resp)
}
