package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/phonetool/license-server/internal/domain/license"
	"go.uber.org/zap"
)

type LicenseRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewLicenseRepository(db *pgxpool.Pool, logger *zap.Logger) *LicenseRepository {
	return &LicenseRepository{
		db:     db,
		logger: logger.Named("LicenseRepository"),
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) (uuid.UUID, error) {
	query := `
        INSERT INTO licenses (license_key, owner, plan, expires_at, max_activations, active)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `
	var insertedID uuid.UUID

	err := r.db.QueryRow(ctx, query,
		lic.LicenseKey,
		lic.Owner,
		lic.Plan,
		lic.ExpiresAt,
		lic.MaxActivations,
		lic.Active,
	).Scan(&insertedID, &lic.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			r.logger.Warn("Attempted to create license with duplicate key",
				zap.String("license_key", lic.LicenseKey),
				zap.String("constraint", pgErr.ConstraintName),
			)
			return uuid.Nil, fmt.Errorf("license key '%s' already exists", lic.LicenseKey)
		}

		r.logger.Error("Failed to create license in database", zap.Error(err))
		return uuid.Nil, fmt.Errorf("database error on create license: %w", err)
	}

	lic.ID = insertedID
	return insertedID, nil
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	query := `
        SELECT id, license_key, owner, plan, expires_at, max_activations, active, created_at
        FROM licenses
        WHERE license_key = $1
    `

	row := r.db.QueryRow(ctx, query, key)
	return r.scanLicense(row)
}

func (r *LicenseRepository) List(ctx context.Context) ([]*license.License, error) {
	query := `
        SELECT id, license_key, owner, plan, expires_at, max_activations, active, created_at
        FROM licenses
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query list of licenses", zap.Error(err))
		return nil, fmt.Errorf("database error on list licenses: %w", err)
	}
	defer rows.Close()

	licenses := make([]*license.License, 0)

	for rows.Next() {
		var lic license.License
		err := rows.Scan(
			&lic.ID,
			&lic.LicenseKey,
			&lic.Owner,
			&lic.Plan,
			&lic.ExpiresAt,
			&lic.MaxActivations,
			&lic.Active,
			&lic.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to scan license row during list", zap.Error(err))
			return nil, fmt.Errorf("database scan error during list: %w", err)
		}
		licenses = append(licenses, &lic)
	}

	if err = rows.Err(); err != nil {
		r.logger.Error("Error iterating license rows", zap.Error(err))
		return nil, fmt.Errorf("database iteration error on list licenses: %w", err)
	}

	return licenses, nil
}

func (r *LicenseRepository) SetActive(ctx context.Context, key string, active bool) error {
	query := `UPDATE licenses SET active = $1 WHERE license_key = $2`

	cmdTag, err := r.db.Exec(ctx, query, active, key)
	if err != nil {
		r.logger.Error("Failed to update license active flag", zap.String("license_key", key), zap.Error(err))
		return fmt.Errorf("database error on set active: %w", err)
	}

	// Zero rows means the key does not exist. Callers rely on this being
	// distinguishable from transport failures.
	if cmdTag.RowsAffected() == 0 {
		return license.ErrNotFound
	}

	return nil
}

func (r *LicenseRepository) FindActivation(ctx context.Context, licenseID uuid.UUID, deviceID string) (*license.Activation, error) {
	query := `
        SELECT id, license_id, device_id, device_fingerprint, ip, last_seen, created_at
        FROM activations
        WHERE license_id = $1 AND device_id = $2
    `

	row := r.db.QueryRow(ctx, query, licenseID, deviceID)

	var act license.Activation
	err := row.Scan(
		&act.ID,
		&act.LicenseID,
		&act.DeviceID,
		&act.DeviceFingerprint,
		&act.IP,
		&act.LastSeen,
		&act.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrActivationNotFound
		}
		r.logger.Error("Failed to scan activation row", zap.Error(err))
		return nil, fmt.Errorf("database scan error: %w", err)
	}

	return &act, nil
}

func (r *LicenseRepository) CountActivations(ctx context.Context, licenseID uuid.UUID) (int, error) {
	query := `SELECT COUNT(*) FROM activations WHERE license_id = $1`

	var count int
	if err := r.db.QueryRow(ctx, query, licenseID).Scan(&count); err != nil {
		r.logger.Error("Failed to count activations", zap.String("license_id", licenseID.String()), zap.Error(err))
		return 0, fmt.Errorf("database error counting activations: %w", err)
	}
	return count, nil
}

func (r *LicenseRepository) CountAllActivations(ctx context.Context) (map[uuid.UUID]int, error) {
	query := `SELECT license_id, COUNT(*) FROM activations GROUP BY license_id`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query activation counts", zap.Error(err))
		return nil, fmt.Errorf("database error counting activations: %w", err)
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var id uuid.UUID
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, fmt.Errorf("database scan error counting activations: %w", err)
		}
		counts[id] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("database iteration error counting activations: %w", err)
	}

	return counts, nil
}

func (r *LicenseRepository) CreateActivation(ctx context.Context, act *license.Activation) (uuid.UUID, error) {
	query := `
        INSERT INTO activations (license_id, device_id, device_fingerprint, ip, last_seen)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	var insertedID uuid.UUID

	err := r.db.QueryRow(ctx, query,
		act.LicenseID,
		act.DeviceID,
		act.DeviceFingerprint,
		act.IP,
		act.LastSeen,
	).Scan(&insertedID)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// The unique (license_id, device_id) index caught a duplicate
			// device racing past the engine; surface it as a conflict.
			r.logger.Warn("Duplicate device activation rejected by constraint",
				zap.String("license_id", act.LicenseID.String()),
				zap.String("device_id", act.DeviceID),
			)
			return uuid.Nil, fmt.Errorf("device '%s' already activated: %w", act.DeviceID, license.ErrUpdateFailed)
		}

		r.logger.Error("Failed to create activation in database", zap.Error(err))
		return uuid.Nil, fmt.Errorf("database error on create activation: %w", err)
	}

	act.ID = insertedID
	return insertedID, nil
}

func (r *LicenseRepository) TouchActivation(ctx context.Context, id uuid.UUID, seenAt time.Time) error {
	query := `UPDATE activations SET last_seen = $1 WHERE id = $2`

	cmdTag, err := r.db.Exec(ctx, query, seenAt, id)
	if err != nil {
		r.logger.Error("Failed to update activation last_seen", zap.String("id", id.String()), zap.Error(err))
		return fmt.Errorf("database error on touch activation: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return license.ErrActivationNotFound
	}
	return nil
}

func (r *LicenseRepository) scanLicense(row pgx.Row) (*license.License, error) {
	var lic license.License
	err := row.Scan(
		&lic.ID,
		&lic.LicenseKey,
		&lic.Owner,
		&lic.Plan,
		&lic.ExpiresAt,
		&lic.MaxActivations,
		&lic.Active,
		&lic.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, license.ErrNotFound
		}
		r.logger.Error("Failed to scan license row", zap.Error(err))
		return nil, fmt.Errorf("database scan error: %w", err)
	}

	return &lic, nil
}
