package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/phonetool/license-server/internal/domain/license"
	"github.com/phonetool/license-server/internal/metrics"
	"go.uber.org/zap"
)

// ExpiryAuditHandler periodically surveys the catalog for licenses that are
// past their expiry but still flagged active. Expiry is enforced at
// activation time and the active flag is only ever flipped by an admin, so
// the audit observes and reports; it never mutates.
type ExpiryAuditHandler struct {
	repo   license.Repository
	logger *zap.Logger
}

func NewExpiryAuditHandler(repo license.Repository, logger *zap.Logger) *ExpiryAuditHandler {
	return &ExpiryAuditHandler{
		repo:   repo,
		logger: logger.Named("ExpiryAuditHandler"),
	}
}

func (h *ExpiryAuditHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	if t.Type() != TypeExpiryAudit {
		return fmt.Errorf("unexpected task type: %s", t.Type())
	}

	var p ExpiryAuditPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.logger.Error("Failed to unmarshal expiry audit payload", zap.Error(err), zap.ByteString("payload", t.Payload()))
		return fmt.Errorf("invalid payload: %v", err)
	}

	h.logger.Info("Running license expiry audit...")

	licenses, err := h.repo.List(ctx)
	if err != nil {
		h.logger.Error("Failed to list licenses for expiry audit", zap.Error(err))
		return fmt.Errorf("repository error listing licenses: %w", err)
	}

	now := time.Now().UTC()
	expiredActive := 0

	for _, lic := range licenses {
		if lic.Active && lic.Expired(now) {
			expiredActive++
			h.logger.Debug("License past expiry still flagged active",
				zap.String("license_key", lic.LicenseKey),
				zap.Time("expires_at", lic.ExpiresAt.Time),
			)
		}
	}

	metrics.ExpiredActiveLicenses.Set(float64(expiredActive))

	h.logger.Info("License expiry audit finished",
		zap.Int("total_licenses", len(licenses)),
		zap.Int("expired_active", expiredActive),
	)
	return nil
}
