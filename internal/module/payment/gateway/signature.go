package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Signature is the parsed x-signature header: a timestamp and an HMAC digest.
type Signature struct {
	Timestamp string
	V1        string
}

// ParseSignature parses the gateway's `x-signature` header, formatted as
// `ts=<unix>,v1=<hex hmac>`.
func ParseSignature(header string) (*Signature, error) {
	sig := &Signature{}
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			return nil, fmt.Errorf("malformed x-signature segment %q", part)
		}
		switch key {
		case "ts":
			sig.Timestamp = value
		case "v1":
			sig.V1 = value
		}
	}
	if sig.Timestamp == "" || sig.V1 == "" {
		return nil, fmt.Errorf("x-signature missing ts or v1")
	}
	return sig, nil
}

// BuildManifest builds the canonical string the gateway signs. The field
// order and trailing semicolon are part of the contract.
func BuildManifest(dataID, requestID, timestamp string) string {
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, timestamp)
}

// VerifySignature recomputes the HMAC-SHA256 of the manifest with the shared
// secret and compares it against v1 in constant time.
func VerifySignature(secret, dataID, requestID string, sig *Signature) bool {
	manifest := BuildManifest(dataID, requestID, sig.Timestamp)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig.V1)))
}
