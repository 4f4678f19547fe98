package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignaturePrefix is the scheme tag on the signature header value.
const SignaturePrefix = "sha256="

// Sign computes the hex HMAC-SHA256 of payload under secret.
func Sign(secret, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether header is a valid signature for payload under
// secret. It accepts the header with or without the "sha256=" prefix and
// compares in constant time.
func Verify(secret, payload []byte, header string) bool {
	header = strings.TrimPrefix(header, SignaturePrefix)
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(header), []byte(expected))
}
