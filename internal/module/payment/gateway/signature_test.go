package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signManifest(t *testing.T, secret, dataID, requestID, ts string) string {
	t.Helper()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(BuildManifest(dataID, requestID, ts)))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestParseSignature(t *testing.T) {
	sig, err := ParseSignature("ts=1704908010,v1=abc123def")
	require.NoError(t, err)
	assert.Equal(t, "1704908010", sig.Timestamp)
	assert.Equal(t, "abc123def", sig.V1)

	// Spaces around segments are tolerated.
	sig, err = ParseSignature("ts=1704908010, v1=abc123def")
	require.NoError(t, err)
	assert.Equal(t, "abc123def", sig.V1)

	_, err = ParseSignature("v1=abc123def")
	assert.Error(t, err)

	_, err = ParseSignature("ts=1704908010")
	assert.Error(t, err)

	_, err = ParseSignature("garbage")
	assert.Error(t, err)
}

func TestBuildManifest(t *testing.T) {
	got := BuildManifest("12345", "req-1", "1704908010")
	assert.Equal(t, "id:12345;request-id:req-1;ts:1704908010;", got)
}

func TestVerifySignature(t *testing.T) {
	const secret = "test-webhook-secret"

	v1 := signManifest(t, secret, "12345", "req-1", "1704908010")
	sig := &Signature{Timestamp: "1704908010", V1: v1}

	assert.True(t, VerifySignature(secret, "12345", "req-1", sig))

	// Tampered payment id fails.
	assert.False(t, VerifySignature(secret, "99999", "req-1", sig))

	// Wrong secret fails.
	assert.False(t, VerifySignature("other-secret", "12345", "req-1", sig))

	// Uppercase hex digest still verifies.
	upper := &Signature{Timestamp: "1704908010", V1: toUpper(v1)}
	assert.True(t, VerifySignature(secret, "12345", "req-1", upper))
}

func toUpper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 32
		}
	}
	return string(out)
}
