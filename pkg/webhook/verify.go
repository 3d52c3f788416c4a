package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// signaturePrefix is the scheme tag prepended to the hex digest, mirroring
// the convention used by most webhook producers (e.g. GitHub's
// X-Hub-Signature-256: "sha256=<hex>").
const signaturePrefix = "sha256="

// verifySignature reports whether signature is a valid HMAC-SHA256 MAC
// of body under secret. signature may or may not carry the "sha256="
// prefix; both forms are accepted. Comparison is constant-time.
func verifySignature(secret, signature string, body []byte) bool {
	signature = strings.TrimPrefix(signature, signaturePrefix)
	given, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)
	return subtle.ConstantTimeCompare(given, want) == 1
}
