// Package signing implements HMAC admin access tokens. The admin surface
// (claims, reconciliation, dashboard lists) is gated by a signed token rather
// than a full identity provider.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates HMAC based admin tokens.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for an operator id and expiry.
func (s *Signer) Sign(operatorID string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	payload := fmt.Sprintf("%s:%d", operatorID, expiresUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// Token issues a bearer token of the form "operator:expires:signature".
func (s *Signer) Token(operatorID string, ttl time.Duration) string {
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("%s:%d:%s", operatorID, expires, s.Sign(operatorID, expires))
}

// Validate checks a token's signature and expiry, returning the operator id.
func (s *Signer) Validate(token string) (string, bool) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return "", false
	}
	operatorID, expiresStr, signature := parts[0], parts[1], parts[2]
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return "", false
	}
	if time.Now().Unix() > expires {
		return "", false
	}
	expected := s.Sign(operatorID, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", false
	}
	return operatorID, true
}
