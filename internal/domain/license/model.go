package license

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// License authorizes use of the product under the given terms. A license is
// identified by its LicenseKey for the whole of its lifetime; there is no
// delete operation, only the one-way Active flag.
type License struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	LicenseKey     string         `db:"license_key" json:"license_key"`
	Owner          sql.NullString `db:"owner" json:"owner,omitempty"`
	Plan           sql.NullString `db:"plan" json:"plan,omitempty"`
	ExpiresAt      sql.NullTime   `db:"expires_at" json:"expires_at,omitempty"`
	MaxActivations int            `db:"max_activations" json:"max_activations"`
	Active         bool           `db:"active" json:"active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
}

// Expired reports whether the license carries an expiry that is strictly in
// the past at the given instant. A license without expiry is perpetual.
func (l *License) Expired(now time.Time) bool {
	return l.ExpiresAt.Valid && l.ExpiresAt.Time.Before(now)
}

// Activation binds a license to one device. At most one row exists per
// (license, device); re-activation of the same device updates LastSeen.
type Activation struct {
	ID                uuid.UUID      `db:"id" json:"id"`
	LicenseID         uuid.UUID      `db:"license_id" json:"license_id"`
	DeviceID          string         `db:"device_id" json:"device_id"`
	DeviceFingerprint sql.NullString `db:"device_fingerprint" json:"device_fingerprint,omitempty"`
	IP                sql.NullString `db:"ip" json:"ip,omitempty"`
	LastSeen          time.Time      `db:"last_seen" json:"last_seen"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// UnknownDevice is recorded when the client does not supply a device id.
const UnknownDevice = "unknown"

// Reason classifies the outcome of an activation attempt. Negative outcomes
// are normal results, not errors.
type Reason string

const (
	ReasonNotFound     Reason = "NOT_FOUND"
	ReasonDisabled     Reason = "DISABLED"
	ReasonExpired      Reason = "EXPIRED"
	ReasonLimitReached Reason = "LIMIT_REACHED"
	ReasonOK           Reason = "OK"
	ReasonActivated    Reason = "ACTIVATED"
)
