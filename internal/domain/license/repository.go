package license

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("license not found")
	ErrActivationNotFound = errors.New("activation not found")
	ErrUpdateFailed       = errors.New("license update failed")
)

// Repository persists licenses and their activations. Every call is atomic at
// the row level only; the activation engine serializes the count-then-insert
// sequence itself, the repository does not guarantee cross-call atomicity.
type Repository interface {
	// Create inserts the license and backfills its store-assigned ID and
	// CreatedAt on the passed struct.
	Create(ctx context.Context, lic *License) (uuid.UUID, error)
	FindByKey(ctx context.Context, key string) (*License, error)
	List(ctx context.Context) ([]*License, error)
	// SetActive flips the revocation flag. Returns ErrNotFound when no
	// license carries the key; transport failures come back as distinct
	// wrapped errors.
	SetActive(ctx context.Context, key string, active bool) error

	// FindActivation returns ErrActivationNotFound when the device has no
	// activation row for the license.
	FindActivation(ctx context.Context, licenseID uuid.UUID, deviceID string) (*Activation, error)
	CountActivations(ctx context.Context, licenseID uuid.UUID) (int, error)
	// CountAllActivations returns per-license activation counts for the
	// admin list view, keyed by license id.
	CountAllActivations(ctx context.Context) (map[uuid.UUID]int, error)
	CreateActivation(ctx context.Context, act *Activation) (uuid.UUID, error)
	TouchActivation(ctx context.Context, id uuid.UUID, seenAt time.Time) error
}
