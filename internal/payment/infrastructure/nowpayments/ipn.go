package nowpayments

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
)

// ErrSignatureInvalid marks a webhook whose signature did not verify. Logged
// as a potential forgery attempt, never swallowed.
var ErrSignatureInvalid = errors.New("ipn signature invalid")

// SignatureHeader carries the HMAC digest on inbound IPN requests.
const SignatureHeader = "x-nowpayments-sig"

// IPNVerifier proves an inbound webhook body was produced by the processor.
// The processor signs the payload re-serialized with its keys in lexicographic
// order, HMAC-SHA512 keyed with the shared IPN secret.
type IPNVerifier struct {
	secret []byte
}

func NewIPNVerifier(secret string) *IPNVerifier {
	return &IPNVerifier{secret: []byte(secret)}
}

// Verify reports whether signature matches payload. Malformed payloads and
// signature mismatches are both just "not verified"; Verify never panics or
// errors on attacker-controlled input.
func (v *IPNVerifier) Verify(payload []byte, signature string) bool {
	supplied, err := hex.DecodeString(signature)
	if err != nil || len(supplied) == 0 {
		return false
	}

	canonical, err := canonicalize(payload)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, v.secret)
	mac.Write(canonical)
	return hmac.Equal(mac.Sum(nil), supplied)
}

// Sign computes the digest the processor would attach to payload. Used by
// tests and the sandbox tooling.
func (v *IPNVerifier) Sign(payload []byte) (string, error) {
	canonical, err := canonicalize(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, v.secret)
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// canonicalize re-serializes a JSON object with deterministic key order.
// encoding/json marshals map keys sorted, which is exactly the canonical form
// the processor signs. Numbers are kept verbatim via json.Number so amounts
// round-trip byte for byte.
func canonicalize(payload []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}
