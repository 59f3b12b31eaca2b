package dto

import (
	"time"

	"github.com/phonetool/license-server/internal/service"
)

type ActivateRequest struct {
	LicenseKey        string `json:"license_key" binding:"required"`
	DeviceID          string `json:"device_id"`
	DeviceFingerprint string `json:"device_fingerprint"`
}

type ActivateResponse struct {
	Valid           bool                    `json:"valid"`
	Message         string                  `json:"message"`
	ActivationToken string                  `json:"activation_token,omitempty"`
	License         *service.LicenseSummary `json:"license,omitempty"`
}

func NewActivateResponse(result *service.ActivationResult) *ActivateResponse {
	return &ActivateResponse{
		Valid:           result.Valid,
		Message:         result.Message,
		ActivationToken: result.Token,
		License:         result.License,
	}
}

type VerifyTokenRequest struct {
	ActivationToken string `json:"activation_token" binding:"required"`
}

type VerifyTokenResponse struct {
	Valid    bool       `json:"valid"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
}
