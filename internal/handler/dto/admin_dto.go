package dto

import (
	"time"

	"github.com/phonetool/license-server/internal/service"
)

type CreateLicenseRequest struct {
	Owner          string `json:"owner" binding:"required"`
	Plan           string `json:"plan"`
	DurationPlan   string `json:"duration_plan"`
	MaxActivations *int   `json:"max_activations" binding:"omitempty,gte=0"`
}

type CreateLicenseResponse struct {
	LicenseKey     string     `json:"license_key"`
	ExpiresAt      *time.Time `json:"expires_at"`
	MaxActivations int        `json:"max_activations"`
}

type KillLicenseRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
}

type AdminLicenseResponse struct {
	LicenseKey     string     `json:"license_key"`
	Owner          *string    `json:"owner,omitempty"`
	Plan           *string    `json:"plan,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Active         bool       `json:"active"`
	MaxActivations int        `json:"max_activations"`
	Activations    int        `json:"activations"`
	CreatedAt      time.Time  `json:"created_at"`
}

type ListLicensesResponse struct {
	Licenses []*AdminLicenseResponse `json:"licenses"`
}

func NewAdminLicenseResponse(overview *service.LicenseOverview) *AdminLicenseResponse {
	lic := overview.License
	resp := &AdminLicenseResponse{
		LicenseKey:     lic.LicenseKey,
		Active:         lic.Active,
		MaxActivations: lic.MaxActivations,
		Activations:    overview.Activations,
		CreatedAt:      lic.CreatedAt,
	}
	if lic.Owner.Valid {
		resp.Owner = &lic.Owner.String
	}
	if lic.Plan.Valid {
		resp.Plan = &lic.Plan.String
	}
	if lic.ExpiresAt.Valid {
		resp.ExpiresAt = &lic.ExpiresAt.Time
	}
	return resp
}
