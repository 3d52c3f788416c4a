package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event":"comment"}`)
	secret := "s3cr3t"
	valid := sign(secret, body)

	assert.True(t, verifySignature(secret, valid, body))
	assert.True(t, verifySignature(secret, valid[len("sha256="):], body), "accepts signature without scheme prefix")
	assert.False(t, verifySignature(secret, valid, []byte(`{"event":"tampered"}`)))
	assert.False(t, verifySignature("wrong-secret", valid, body))
	assert.False(t, verifySignature(secret, "not-hex", body))
}
