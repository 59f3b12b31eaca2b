package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/phonetool/license-server/internal/domain/license"
	"github.com/phonetool/license-server/internal/ierr"
	"github.com/phonetool/license-server/internal/metrics"
	"github.com/phonetool/license-server/internal/token"
	"go.uber.org/zap"
)

// Duration plans an admin can issue. "lifetime" means no expiry.
const (
	PlanLifetime  = "lifetime"
	PlanOneMonth  = "1month"
	PlanThreeMon  = "3months"
	PlanSixMonths = "6months"
)

var planDurations = map[string]time.Duration{
	PlanLifetime:  0,
	PlanOneMonth:  30 * 24 * time.Hour,
	PlanThreeMon:  90 * 24 * time.Hour,
	PlanSixMonths: 180 * 24 * time.Hour,
}

// LicenseOverview is a license together with its current activation count,
// as shown on the admin list.
type LicenseOverview struct {
	License     *license.License
	Activations int
}

type AdminService struct {
	repo   license.Repository
	logger *zap.Logger
}

func NewAdminService(repo license.Repository, logger *zap.Logger) *AdminService {
	return &AdminService{
		repo:   repo,
		logger: logger.Named("AdminService"),
	}
}

// CreateLicense mints a fresh random key and persists the license. The plan
// label is free text and defaults to the duration plan when omitted.
// Negative activation quotas are rejected; zero means unlimited.
func (s *AdminService) CreateLicense(ctx context.Context, owner, plan, durationPlan string, maxActivations int) (*license.License, error) {
	if maxActivations < 0 {
		return nil, fmt.Errorf("%w: max_activations must be >= 0", ierr.ErrValidation)
	}

	duration, ok := planDurations[durationPlan]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ierr.ErrUnknownPlan, durationPlan)
	}

	key, err := token.GenerateLicenseKey()
	if err != nil {
		s.logger.Error("Failed to generate license key", zap.Error(err))
		return nil, fmt.Errorf("key generation failed: %w", err)
	}

	if plan == "" {
		plan = durationPlan
	}

	newLicense := &license.License{
		LicenseKey:     key,
		Plan:           sql.NullString{String: plan, Valid: true},
		MaxActivations: maxActivations,
		Active:         true,
	}
	if owner != "" {
		newLicense.Owner = sql.NullString{String: owner, Valid: true}
	}
	if duration > 0 {
		newLicense.ExpiresAt = sql.NullTime{Time: time.Now().UTC().Add(duration), Valid: true}
	}

	// Create backfills the store-assigned id and creation time, so no
	// read-back is needed.
	if _, err := s.repo.Create(ctx, newLicense); err != nil {
		s.logger.Error("Failed to create license via repository", zap.Error(err))
		return nil, fmt.Errorf("repository error during license creation: %w", err)
	}

	metrics.LicensesCreated.WithLabelValues(durationPlan).Inc()
	s.logger.Info("License created",
		zap.String("license_key", newLicense.LicenseKey),
		zap.String("duration_plan", durationPlan),
		zap.Int("max_activations", newLicense.MaxActivations),
	)
	return newLicense, nil
}

// RevokeLicense flips the one-way active flag to false. A missing license
// surfaces as license.ErrNotFound, distinct from store failures.
func (s *AdminService) RevokeLicense(ctx context.Context, key string) error {
	if err := s.repo.SetActive(ctx, key, false); err != nil {
		if errors.Is(err, license.ErrNotFound) {
			return err
		}
		s.logger.Error("Failed to revoke license", zap.String("license_key", key), zap.Error(err))
		return fmt.Errorf("repository error during revoke: %w", err)
	}

	metrics.LicensesRevoked.Inc()
	s.logger.Info("License revoked", zap.String("license_key", key))
	return nil
}

// ListLicenses returns every license with its activation count.
func (s *AdminService) ListLicenses(ctx context.Context) ([]*LicenseOverview, error) {
	licenses, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list licenses", zap.Error(err))
		return nil, fmt.Errorf("repository error during list: %w", err)
	}

	counts, err := s.repo.CountAllActivations(ctx)
	if err != nil {
		s.logger.Error("Failed to count activations", zap.Error(err))
		return nil, fmt.Errorf("repository error counting activations: %w", err)
	}

	overviews := make([]*LicenseOverview, len(licenses))
	for i, lic := range licenses {
		overviews[i] = &LicenseOverview{
			License:     lic,
			Activations: counts[lic.ID],
		}
	}
	return overviews, nil
}
