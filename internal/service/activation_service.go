package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phonetool/license-server/internal/domain/license"
	"github.com/phonetool/license-server/internal/metrics"
	"github.com/phonetool/license-server/internal/token"
	"go.uber.org/zap"
)

const defaultStoreTimeout = 5 * time.Second

// ActivateParams is a single activation attempt as seen by the engine.
// DeviceID and DeviceFingerprint are optional; IP is whatever the transport
// captured and is informational only.
type ActivateParams struct {
	LicenseKey        string
	DeviceID          string
	DeviceFingerprint string
	IP                string
}

// LicenseSummary is the license view returned to activating clients. It
// never carries internal identifiers.
type LicenseSummary struct {
	Key       string     `json:"key"`
	Owner     *string    `json:"owner,omitempty"`
	Plan      *string    `json:"plan,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ActivationResult is the computed outcome of an activation attempt. A
// negative outcome (Valid=false) is a normal result; the engine only returns
// an error for store or transport failures.
type ActivationResult struct {
	Valid   bool
	Reason  license.Reason
	Message string
	Token   string
	License *LicenseSummary
}

type ActivationService struct {
	repo         license.Repository
	codec        *token.Codec
	logger       *zap.Logger
	storeTimeout time.Duration

	// Serializes the quota check-and-insert per license key. Activations of
	// different licenses proceed independently.
	quota keyedMutex
}

func NewActivationService(repo license.Repository, codec *token.Codec, storeTimeout time.Duration, logger *zap.Logger) *ActivationService {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &ActivationService{
		repo:         repo,
		codec:        codec,
		storeTimeout: storeTimeout,
		logger:       logger.Named("ActivationService"),
	}
}

// Activate decides whether the attempt succeeds, persists the decision and
// issues a signed token. Re-activation by an already-known device always
// succeeds regardless of quota and only refreshes its last-seen time.
func (s *ActivationService) Activate(ctx context.Context, params ActivateParams) (*ActivationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	lic, err := s.repo.FindByKey(ctx, params.LicenseKey)
	if err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return s.outcome(license.ReasonNotFound, "License not found"), nil
		}
		s.logger.Error("Failed to look up license", zap.Error(err))
		return nil, fmt.Errorf("repository error during license lookup: %w", err)
	}

	if !lic.Active {
		return s.outcome(license.ReasonDisabled, "License disabled"), nil
	}

	now := time.Now().UTC()
	if lic.Expired(now) {
		return s.outcome(license.ReasonExpired, "License expired"), nil
	}

	// A device that already holds an activation is always re-affirmable,
	// even when the quota is saturated. Only LastSeen changes, so no
	// quota lock is needed on this path.
	if params.DeviceID != "" {
		existing, err := s.repo.FindActivation(ctx, lic.ID, params.DeviceID)
		if err != nil && !errors.Is(err, license.ErrActivationNotFound) {
			s.logger.Error("Failed to look up activation", zap.Error(err))
			return nil, fmt.Errorf("repository error during activation lookup: %w", err)
		}
		if err == nil {
			if err := s.repo.TouchActivation(ctx, existing.ID, now); err != nil {
				s.logger.Error("Failed to refresh activation", zap.String("activation_id", existing.ID.String()), zap.Error(err))
				return nil, fmt.Errorf("repository error refreshing activation: %w", err)
			}
			return s.granted(lic, params.DeviceID, now, license.ReasonOK, "OK"), nil
		}
	}

	result, err := s.admitNewDevice(ctx, lic, params, now)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// admitNewDevice runs the check-then-act section under the per-license lock:
// without it, two concurrent requests for the last free slot would both pass
// the count check and overrun the quota.
func (s *ActivationService) admitNewDevice(ctx context.Context, lic *license.License, params ActivateParams, now time.Time) (*ActivationResult, error) {
	unlock := s.quota.lock(lic.LicenseKey)
	defer unlock()

	deviceID := params.DeviceID
	if deviceID == "" {
		deviceID = license.UnknownDevice
	}

	// Re-check under the lock: a concurrent request for the same device may
	// have inserted the row between our unlocked lookup and here.
	existing, err := s.repo.FindActivation(ctx, lic.ID, deviceID)
	if err != nil && !errors.Is(err, license.ErrActivationNotFound) {
		s.logger.Error("Failed to look up activation", zap.Error(err))
		return nil, fmt.Errorf("repository error during activation lookup: %w", err)
	}
	if err == nil {
		if err := s.repo.TouchActivation(ctx, existing.ID, now); err != nil {
			return nil, fmt.Errorf("repository error refreshing activation: %w", err)
		}
		return s.granted(lic, params.DeviceID, now, license.ReasonOK, "OK"), nil
	}

	if lic.MaxActivations > 0 {
		count, err := s.repo.CountActivations(ctx, lic.ID)
		if err != nil {
			s.logger.Error("Failed to count activations", zap.String("license_key", lic.LicenseKey), zap.Error(err))
			return nil, fmt.Errorf("repository error counting activations: %w", err)
		}
		if count >= lic.MaxActivations {
			s.logger.Info("Activation limit reached",
				zap.String("license_key", lic.LicenseKey),
				zap.Int("count", count),
				zap.Int("max_activations", lic.MaxActivations),
			)
			return s.outcome(license.ReasonLimitReached, "Activation limit reached"), nil
		}
	}

	act := &license.Activation{
		LicenseID: lic.ID,
		DeviceID:  deviceID,
		LastSeen:  now,
	}
	if params.DeviceFingerprint != "" {
		act.DeviceFingerprint = sql.NullString{String: params.DeviceFingerprint, Valid: true}
	}
	if params.IP != "" {
		act.IP = sql.NullString{String: params.IP, Valid: true}
	}

	if _, err := s.repo.CreateActivation(ctx, act); err != nil {
		s.logger.Error("Failed to persist activation", zap.String("license_key", lic.LicenseKey), zap.Error(err))
		return nil, fmt.Errorf("repository error creating activation: %w", err)
	}

	s.logger.Info("Device activated",
		zap.String("license_key", lic.LicenseKey),
		zap.String("device_id", deviceID),
	)
	return s.granted(lic, params.DeviceID, now, license.ReasonActivated, "Activated"), nil
}

// VerifyToken is a pure cryptographic check against the shared secret. It
// proves the token was validly issued, not that the license is still valid;
// callers needing current state must activate again. For authentic tokens
// the issuance time embedded in the payload is returned as well.
func (s *ActivationService) VerifyToken(tok string) (bool, time.Time) {
	ok := s.codec.Verify(tok)
	metrics.TokenVerifications.WithLabelValues(fmt.Sprintf("%t", ok)).Inc()
	if !ok {
		return false, time.Time{}
	}
	issued, _ := s.codec.IssuedAt(tok)
	return true, issued
}

func (s *ActivationService) outcome(reason license.Reason, message string) *ActivationResult {
	metrics.ActivationAttempts.WithLabelValues(string(reason)).Inc()
	return &ActivationResult{Valid: false, Reason: reason, Message: message}
}

func (s *ActivationService) granted(lic *license.License, deviceID string, now time.Time, reason license.Reason, message string) *ActivationResult {
	metrics.ActivationAttempts.WithLabelValues(string(reason)).Inc()
	return &ActivationResult{
		Valid:   true,
		Reason:  reason,
		Message: message,
		Token:   s.codec.Sign(lic.LicenseKey, deviceID, now),
		License: Summarize(lic),
	}
}

// Summarize projects a license onto its client-facing summary.
func Summarize(lic *license.License) *LicenseSummary {
	summary := &LicenseSummary{Key: lic.LicenseKey}
	if lic.Owner.Valid {
		summary.Owner = &lic.Owner.String
	}
	if lic.Plan.Valid {
		summary.Plan = &lic.Plan.String
	}
	if lic.ExpiresAt.Valid {
		summary.ExpiresAt = &lic.ExpiresAt.Time
	}
	return summary
}
