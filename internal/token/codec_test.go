package token

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundtrip(t *testing.T) {
	codec := NewCodec("test-secret")
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		licenseKey string
		deviceID   string
	}{
		{"with device", "abc123", "device-A"},
		{"empty device", "abc123", ""},
		{"device containing pipe", "abc123", "dev|ice"},
		{"device containing tilde", "abc123", "dev~ice"},
		{"unicode device", "abc123", "端末-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := codec.Sign(tt.licenseKey, tt.deviceID, issued)
			assert.True(t, codec.Verify(tok))
		})
	}
}

func TestVerifyAcceptsSeparatorInSignature(t *testing.T) {
	codec := NewCodec("test-secret")
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Roughly one signature in nine contains the separator byte; every such
	// token must still verify.
	found := 0
	for i := 0; i < 512; i++ {
		tok := codec.Sign("abc123", fmt.Sprintf("device-%d", i), issued)
		raw, err := base64.URLEncoding.DecodeString(tok)
		require.NoError(t, err)

		sig := raw[len(raw)-sha256.Size:]
		if bytes.IndexByte(sig, '~') < 0 {
			continue
		}
		found++
		assert.True(t, codec.Verify(tok), "token for device-%d rejected", i)
	}
	require.NotZero(t, found, "no signature contained the separator byte")
}

func TestVerifyRejectsTampering(t *testing.T) {
	codec := NewCodec("test-secret")
	tok := codec.Sign("license-key", "device-A", time.Now())

	raw, err := base64.URLEncoding.DecodeString(tok)
	require.NoError(t, err)

	// Flip a single bit at every position: payload, separator and signature
	// must all be covered by the MAC check.
	for i := range raw {
		mutated := make([]byte, len(raw))
		copy(mutated, raw)
		mutated[i] ^= 0x01
		forged := base64.URLEncoding.EncodeToString(mutated)
		assert.False(t, codec.Verify(forged), "bit flip at byte %d accepted", i)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok := NewCodec("secret-one").Sign("license-key", "device-A", time.Now())
	assert.False(t, NewCodec("secret-two").Verify(tok))
}

func TestVerifyNeverPanicsOnGarbage(t *testing.T) {
	codec := NewCodec("test-secret")

	inputs := []string{
		"",
		"~",
		"not base64 at all!!!",
		base64.URLEncoding.EncodeToString([]byte("no separator here")),
		base64.URLEncoding.EncodeToString([]byte("~")),
		base64.URLEncoding.EncodeToString([]byte("payload~short")),
		strings.Repeat("A", 10000),
		"\x00\x01\x02",
		codec.Sign("k", "d", time.Now())[:10], // truncated
	}

	for _, in := range inputs {
		assert.False(t, codec.Verify(in), "input %q verified", in)
	}
}

func TestIssuedAt(t *testing.T) {
	codec := NewCodec("test-secret")
	issued := time.Date(2025, 3, 15, 8, 30, 0, 0, time.UTC)

	tok := codec.Sign("license-key", "device-A", issued)
	got, ok := codec.IssuedAt(tok)
	require.True(t, ok)
	assert.True(t, got.Equal(issued))

	// Pipes in the device id must not confuse the timestamp parse.
	tok = codec.Sign("license-key", "dev|ice", issued)
	got, ok = codec.IssuedAt(tok)
	require.True(t, ok)
	assert.True(t, got.Equal(issued))

	_, ok = codec.IssuedAt("garbage")
	assert.False(t, ok)
}

func TestGenerateLicenseKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateLicenseKey()
		require.NoError(t, err)
		assert.Len(t, key, LicenseKeyLength)
		assert.NotContains(t, key, "-")
		assert.NotContains(t, key, "_")
		assert.NotContains(t, key, "=")
		assert.False(t, seen[key], "duplicate key generated")
		seen[key] = true
	}
}
