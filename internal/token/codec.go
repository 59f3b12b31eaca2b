// Package token implements the signed activation token scheme and the
// license key generator.
//
// A token is urlsafe-base64 of "payload~signature" where payload is
// "licenseKey|deviceID|issuedAtUnixSeconds" and signature is HMAC-SHA256
// over the payload bytes. Verification only proves authentic issuance;
// current license state must be re-checked against the store.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const separator = '~'

// LicenseKeyLength is the length of generated license keys. 22 base64
// characters carry a little over 16 bytes of entropy.
const LicenseKeyLength = 22

type Codec struct {
	secret []byte
}

// NewCodec builds a codec around the process-wide activation secret. The
// caller is responsible for refusing to start without one.
func NewCodec(secret string) *Codec {
	return &Codec{secret: []byte(secret)}
}

// Sign produces an activation token binding the license key and device id to
// the issuance time.
func (c *Codec) Sign(licenseKey, deviceID string, issuedAt time.Time) string {
	payload := fmt.Sprintf("%s|%s|%d", licenseKey, deviceID, issuedAt.Unix())

	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(payload))
	sig := mac.Sum(nil)

	raw := make([]byte, 0, len(payload)+1+len(sig))
	raw = append(raw, payload...)
	raw = append(raw, separator)
	raw = append(raw, sig...)

	return base64.URLEncoding.EncodeToString(raw)
}

// Verify reports whether the token was produced by Sign with this codec's
// secret. It never fails loudly: any malformed input is simply invalid.
func (c *Codec) Verify(token string) bool {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return false
	}

	// The signature is always sha256.Size bytes, and both it and the
	// payload may contain the separator byte, so split at the fixed offset
	// instead of searching for the separator.
	sep := len(raw) - sha256.Size - 1
	if sep < 0 || raw[sep] != separator {
		return false
	}
	payload, sig := raw[:sep], raw[sep+1:]

	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	return hmac.Equal(expected, sig)
}

// IssuedAt extracts the issuance time from a valid token. It returns false
// for tokens that fail verification or carry a malformed payload.
func (c *Codec) IssuedAt(token string) (time.Time, bool) {
	if !c.Verify(token) {
		return time.Time{}, false
	}
	raw, _ := base64.URLEncoding.DecodeString(token)
	payload := string(raw[:len(raw)-sha256.Size-1])

	// Device ids may contain '|', so the timestamp is everything after the
	// last one.
	idx := strings.LastIndexByte(payload, '|')
	if idx < 0 {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(payload[idx+1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0).UTC(), true
}

// GenerateLicenseKey returns a new random URL-safe license key. The base64
// alphabet is stripped of '-' and '_' so keys stay friendly to copy-paste
// and shells.
func GenerateLicenseKey() (string, error) {
	var b strings.Builder
	for b.Len() < LicenseKeyLength {
		buf := make([]byte, LicenseKeyLength*3/4+4)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		s := base64.URLEncoding.EncodeToString(buf)
		s = strings.ReplaceAll(s, "-", "")
		s = strings.ReplaceAll(s, "_", "")
		s = strings.ReplaceAll(s, "=", "")
		b.WriteString(s)
	}
	return b.String()[:LicenseKeyLength], nil
}
