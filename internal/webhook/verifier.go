package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	domainErrors "github.com/merchantskit/merchants/internal/domain/errors"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "X-Merchants-Signature"

const signaturePrefix = "sha256="

// Sign computes the signature for a payload: "sha256=" followed by the
// hex-encoded HMAC-SHA256 of the raw body.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks the signature of a raw webhook body. Verification fails
// closed: with no secret configured every webhook is rejected, so processing
// must be explicitly enabled by setting one. The comparison is constant-time.
func Verify(payload []byte, signature, secret string) error {
	if secret == "" {
		return fmt.Errorf("no webhook secret configured: %w", domainErrors.ErrInvalidSignature)
	}

	encoded, ok := strings.CutPrefix(signature, signaturePrefix)
	if !ok {
		return fmt.Errorf("malformed signature header: %w", domainErrors.ErrInvalidSignature)
	}
	got, err := hex.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("malformed signature header: %w", domainErrors.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return domainErrors.ErrInvalidSignature
	}
	return nil
}
