package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// SignatureHeader is the HTTP header carrying the webhook signature.
const SignatureHeader = "X-Roster-Signature"

// ErrBadSignature is returned when a webhook signature does not verify.
var ErrBadSignature = errors.New("billing: webhook signature mismatch")

// Sign computes the hex-encoded HMAC-SHA256 of the body under the
// shared secret. Used by tests and by provider simulators.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the webhook body against its signature header
// value. The comparison runs in constant time regardless of where the
// signatures diverge.
func VerifySignature(secret, body []byte, signature string) error {
	if len(secret) == 0 {
		return fmt.Errorf("billing: webhook secret not configured")
	}

	want, err := hex.DecodeString(signature)
	if err != nil {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), want) {
		return ErrBadSignature
	}

	return nil
}

// VerifyAndDecode verifies the envelope signature, then decodes the
// event body. Signature failures are reported before any parsing so a
// forged payload never reaches the decoder.
func VerifyAndDecode(secret, body []byte, signature string) (*Event, error) {
	if err := VerifySignature(secret, body, signature); err != nil {
		return nil, err
	}

	return DecodeEvent(body)
}
