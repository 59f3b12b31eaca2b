// Package memstorage holds an in-memory license repository. It backs the
// service tests and is handy for running the server without a database.
package memstorage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phonetool/license-server/internal/domain/license"
)

type LicenseRepository struct {
	mu          sync.RWMutex
	licenses    map[string]*license.License      // keyed by license key
	activations map[uuid.UUID]*license.Activation // keyed by activation id
	forcedErr   error
}

var _ license.Repository = (*LicenseRepository)(nil)

func NewLicenseRepository() *LicenseRepository {
	return &LicenseRepository{
		licenses:    make(map[string]*license.License),
		activations: make(map[uuid.UUID]*license.Activation),
	}
}

// FailWith makes every subsequent call return err, simulating a store
// outage. Pass nil to recover.
func (r *LicenseRepository) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forcedErr = err
}

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forcedErr != nil {
		return uuid.Nil, r.forcedErr
	}

	if _, exists := r.licenses[lic.LicenseKey]; exists {
		return uuid.Nil, license.ErrUpdateFailed
	}

	stored := *lic
	stored.ID = uuid.New()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.licenses[stored.LicenseKey] = &stored

	lic.ID = stored.ID
	lic.CreatedAt = stored.CreatedAt
	return stored.ID, nil
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.forcedErr != nil {
		return nil, r.forcedErr
	}

	lic, ok := r.licenses[key]
	if !ok {
		return nil, license.ErrNotFound
	}
	cp := *lic
	return &cp, nil
}

func (r *LicenseRepository) List(ctx context.Context) ([]*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.forcedErr != nil {
		return nil, r.forcedErr
	}

	out := make([]*license.License, 0, len(r.licenses))
	for _, lic := range r.licenses {
		cp := *lic
		out = append(out, &cp)
	}
	return out, nil
}

func (r *LicenseRepository) SetActive(ctx context.Context, key string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forcedErr != nil {
		return r.forcedErr
	}

	lic, ok := r.licenses[key]
	if !ok {
		return license.ErrNotFound
	}
	lic.Active = active
	return nil
}

func (r *LicenseRepository) FindActivation(ctx context.Context, licenseID uuid.UUID, deviceID string) (*license.Activation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.forcedErr != nil {
		return nil, r.forcedErr
	}

	for _, act := range r.activations {
		if act.LicenseID == licenseID && act.DeviceID == deviceID {
			cp := *act
			return &cp, nil
		}
	}
	return nil, license.ErrActivationNotFound
}

func (r *LicenseRepository) CountActivations(ctx context.Context, licenseID uuid.UUID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.forcedErr != nil {
		return 0, r.forcedErr
	}

	count := 0
	for _, act := range r.activations {
		if act.LicenseID == licenseID {
			count++
		}
	}
	return count, nil
}

func (r *LicenseRepository) CountAllActivations(ctx context.Context) (map[uuid.UUID]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.forcedErr != nil {
		return nil, r.forcedErr
	}

	counts := make(map[uuid.UUID]int)
	for _, act := range r.activations {
		counts[act.LicenseID]++
	}
	return counts, nil
}

func (r *LicenseRepository) CreateActivation(ctx context.Context, act *license.Activation) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forcedErr != nil {
		return uuid.Nil, r.forcedErr
	}

	// Mirrors the unique (license_id, device_id) constraint of the real
	// schema.
	for _, existing := range r.activations {
		if existing.LicenseID == act.LicenseID && existing.DeviceID == act.DeviceID {
			return uuid.Nil, license.ErrUpdateFailed
		}
	}

	stored := *act
	stored.ID = uuid.New()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	r.activations[stored.ID] = &stored

	act.ID = stored.ID
	act.CreatedAt = stored.CreatedAt
	return stored.ID, nil
}

func (r *LicenseRepository) TouchActivation(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.forcedErr != nil {
		return r.forcedErr
	}

	act, ok := r.activations[id]
	if !ok {
		return license.ErrActivationNotFound
	}
	act.LastSeen = seenAt
	return nil
}
