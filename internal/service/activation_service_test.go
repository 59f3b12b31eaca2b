package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/phonetool/license-server/internal/domain/license"
	"github.com/phonetool/license-server/internal/storage/memstorage"
	"github.com/phonetool/license-server/internal/token"
)

func newTestEngine(t *testing.T) (*ActivationService, *memstorage.LicenseRepository, *token.Codec) {
	t.Helper()
	repo := memstorage.NewLicenseRepository()
	codec := token.NewCodec("test-secret")
	engine := NewActivationService(repo, codec, 2*time.Second, zap.NewNop())
	return engine, repo, codec
}

func seedLicense(t *testing.T, repo *memstorage.LicenseRepository, key string, maxActivations int, expiresAt *time.Time, active bool) *license.License {
	t.Helper()
	lic := &license.License{
		LicenseKey:     key,
		Owner:          sql.NullString{String: "owner@example.com", Valid: true},
		Plan:           sql.NullString{String: "pro", Valid: true},
		MaxActivations: maxActivations,
		Active:         active,
	}
	if expiresAt != nil {
		lic.ExpiresAt = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	_, err := repo.Create(context.Background(), lic)
	require.NoError(t, err)
	return lic
}

func TestActivateUnknownLicense(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	result, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: "no-such-key", DeviceID: "A"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, license.ReasonNotFound, result.Reason)
	assert.Equal(t, "License not found", result.Message)
	assert.Empty(t, result.Token)
	assert.Nil(t, result.License)
}

func TestActivateLifecycleScenario(t *testing.T) {
	// maxActivations=1, lifetime plan: device A activates, device B is
	// refused, device A re-activates.
	engine, repo, codec := newTestEngine(t)
	lic := seedLicense(t, repo, "scenario-a-key", 1, nil, true)

	first, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey, DeviceID: "A"})
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.Equal(t, license.ReasonActivated, first.Reason)
	assert.True(t, codec.Verify(first.Token))
	require.NotNil(t, first.License)
	assert.Equal(t, lic.LicenseKey, first.License.Key)

	second, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey, DeviceID: "B"})
	require.NoError(t, err)
	assert.False(t, second.Valid)
	assert.Equal(t, license.ReasonLimitReached, second.Reason)
	assert.Equal(t, "Activation limit reached", second.Message)

	again, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey, DeviceID: "A"})
	require.NoError(t, err)
	assert.True(t, again.Valid)
	assert.Equal(t, license.ReasonOK, again.Reason)
	assert.True(t, codec.Verify(again.Token))

	count, err := repo.CountActivations(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-activation must not create a second row")
}

func TestActivateExpiredLicense(t *testing.T) {
	engine, repo, _ := newTestEngine(t)
	past := time.Now().UTC().Add(-31 * 24 * time.Hour)
	lic := seedLicense(t, repo, "expired-key", 5, &past, true)

	result, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey, DeviceID: "A"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, license.ReasonExpired, result.Reason)
	assert.Equal(t, "License expired", result.Message)
}

func TestActivateRevokedLicense(t *testing.T) {
	// Revocation wins over quota and expiry: a disabled license with free
	// slots and a future expiry is still refused.
	engine, repo, _ := newTestEngine(t)
	future := time.Now().UTC().Add(90 * 24 * time.Hour)
	lic := seedLicense(t, repo, "revoked-key", 5, &future, true)

	require.NoError(t, repo.SetActive(context.Background(), lic.LicenseKey, false))

	result, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey, DeviceID: "A"})
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, license.ReasonDisabled, result.Reason)
	assert.Equal(t, "License disabled", result.Message)
}

func TestReactivationSurvivesQuotaSaturation(t *testing.T) {
	engine, repo, _ := newTestEngine(t)
	lic := seedLicense(t, repo, "saturated-key", 2, nil, true)

	for _, device := range []string{"A", "B"} {
		result, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey, DeviceID: device})
		require.NoError(t, err)
		require.True(t, result.Valid)
	}

	before, err := repo.FindActivation(context.Background(), lic.ID, "A")
	require.NoError(t, err)

	result, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey, DeviceID: "A"})
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.Equal(t, license.ReasonOK, result.Reason)

	after, err := repo.FindActivation(context.Background(), lic.ID, "A")
	require.NoError(t, err)
	assert.False(t, after.LastSeen.Before(before.LastSeen), "last_seen must move forward")

	count, err := repo.CountActivations(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestActivateWithoutDeviceIDUsesSentinel(t *testing.T) {
	engine, repo, _ := newTestEngine(t)
	lic := seedLicense(t, repo, "anonymous-key", 1, nil, true)

	first, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey})
	require.NoError(t, err)
	assert.True(t, first.Valid)
	assert.Equal(t, license.ReasonActivated, first.Reason)

	stored, err := repo.FindActivation(context.Background(), lic.ID, license.UnknownDevice)
	require.NoError(t, err)
	assert.Equal(t, license.UnknownDevice, stored.DeviceID)

	// A second anonymous attempt maps onto the same sentinel row instead of
	// eating another quota slot or violating device uniqueness.
	second, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey})
	require.NoError(t, err)
	assert.True(t, second.Valid)
	assert.Equal(t, license.ReasonOK, second.Reason)

	count, err := repo.CountActivations(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestActivateUnlimitedQuota(t *testing.T) {
	engine, repo, _ := newTestEngine(t)
	lic := seedLicense(t, repo, "unlimited-key", 0, nil, true)

	for i := 0; i < 25; i++ {
		result, err := engine.Activate(context.Background(), ActivateParams{
			LicenseKey: lic.LicenseKey,
			DeviceID:   fmt.Sprintf("device-%d", i),
		})
		require.NoError(t, err)
		require.True(t, result.Valid)
	}

	count, err := repo.CountActivations(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 25, count)
}

func TestActivateStoreFailureIsAnError(t *testing.T) {
	engine, repo, _ := newTestEngine(t)
	seedLicense(t, repo, "outage-key", 1, nil, true)

	outage := errors.New("connection refused")
	repo.FailWith(outage)

	result, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: "outage-key", DeviceID: "A"})
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)
	assert.Nil(t, result, "a store outage must not masquerade as a domain outcome")
}

func TestConcurrentActivationsNeverExceedQuota(t *testing.T) {
	const (
		quota    = 3
		attempts = 32
	)

	engine, repo, _ := newTestEngine(t)
	lic := seedLicense(t, repo, "race-key", quota, nil, true)

	var wg sync.WaitGroup
	results := make([]*ActivationResult, attempts)
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Activate(context.Background(), ActivateParams{
				LicenseKey: lic.LicenseKey,
				DeviceID:   fmt.Sprintf("racer-%d", i),
			})
		}(i)
	}
	wg.Wait()

	admitted := 0
	refused := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		if results[i].Valid {
			admitted++
		} else {
			require.Equal(t, license.ReasonLimitReached, results[i].Reason)
			refused++
		}
	}

	assert.Equal(t, quota, admitted)
	assert.Equal(t, attempts-quota, refused)

	count, err := repo.CountActivations(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, quota, count)
}

func TestConcurrentSameDeviceCreatesOneRow(t *testing.T) {
	engine, repo, _ := newTestEngine(t)
	lic := seedLicense(t, repo, "same-device-key", 10, nil, true)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := engine.Activate(context.Background(), ActivateParams{
				LicenseKey: lic.LicenseKey,
				DeviceID:   "shared-device",
			})
			assert.NoError(t, err)
			assert.True(t, result.Valid)
		}()
	}
	wg.Wait()

	count, err := repo.CountActivations(context.Background(), lic.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVerifyToken(t *testing.T) {
	engine, repo, _ := newTestEngine(t)
	lic := seedLicense(t, repo, "verify-key", 1, nil, true)

	result, err := engine.Activate(context.Background(), ActivateParams{LicenseKey: lic.LicenseKey, DeviceID: "A"})
	require.NoError(t, err)
	require.True(t, result.Valid)

	valid, issuedAt := engine.VerifyToken(result.Token)
	assert.True(t, valid)
	assert.WithinDuration(t, time.Now().UTC(), issuedAt, time.Minute)

	valid, _ = engine.VerifyToken("not-a-token")
	assert.False(t, valid)
	valid, _ = engine.VerifyToken("")
	assert.False(t, valid)

	// Verification is purely cryptographic: revoking the license does not
	// retroactively invalidate an issued token.
	require.NoError(t, repo.SetActive(context.Background(), lic.LicenseKey, false))
	valid, _ = engine.VerifyToken(result.Token)
	assert.True(t, valid)
}
