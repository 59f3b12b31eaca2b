package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/phonetool/license-server/internal/handler/dto"
	"github.com/phonetool/license-server/internal/service"
	"go.uber.org/zap"
)

type AdminHandler struct {
	service *service.AdminService
	logger  *zap.Logger
}

func NewAdminHandler(service *service.AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		service: service,
		logger:  logger.Named("AdminHandler"),
	}
}

// CreateLicense handles POST /admin/create_license. Duration plan defaults
// to lifetime, quota to a single activation.
func (h *AdminHandler) CreateLicense(c *gin.Context) {
	var req dto.CreateLicenseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate create request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	durationPlan := req.DurationPlan
	if durationPlan == "" {
		durationPlan = service.PlanLifetime
	}
	maxActivations := 1
	if req.MaxActivations != nil {
		maxActivations = *req.MaxActivations
	}

	created, err := h.service.CreateLicense(c.Request.Context(), req.Owner, req.Plan, durationPlan, maxActivations)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := dto.CreateLicenseResponse{
		LicenseKey:     created.LicenseKey,
		MaxActivations: created.MaxActivations,
	}
	if created.ExpiresAt.Valid {
		resp.ExpiresAt = &created.ExpiresAt.Time
	}
	c.JSON(http.StatusCreated, resp)
}

// KillLicense handles POST /admin/kill_license: one-way revocation.
func (h *AdminHandler) KillLicense(c *gin.Context) {
	var req dto.KillLicenseRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Failed to bind or validate kill request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	if err := h.service.RevokeLicense(c.Request.Context(), req.LicenseKey); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListLicenses handles GET /admin/list_licenses.
func (h *AdminHandler) ListLicenses(c *gin.Context) {
	overviews, err := h.service.ListLicenses(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp := dto.ListLicensesResponse{
		Licenses: make([]*dto.AdminLicenseResponse, len(overviews)),
	}
	for i, overview := range overviews {
		resp.Licenses[i] = dto.NewAdminLicenseResponse(overview)
	}
	c.JSON(http.StatusOK, resp)
}
