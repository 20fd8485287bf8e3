// Package signing issues and checks HMAC-signed download links for documents
// kept on the shared upload volume.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrExpired          = errors.New("link expired")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Signer generates and validates HMAC based signatures.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret, now: time.Now}
}

// Sign returns the hex signature for a document id and expiry.
func (s *Signer) Sign(documentID int, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d:%d", documentID, expiresUnix)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedPath returns base with expires and signature query parameters valid
// for ttl.
func (s *Signer) SignedPath(base string, documentID int, ttl time.Duration) string {
	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("signature", s.Sign(documentID, expires))
	return base + "?" + q.Encode()
}

// Verify checks the expires and signature parameters for documentID.
func (s *Signer) Verify(documentID int, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	expected := s.Sign(documentID, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	if time.Unix(exp, 0).Before(s.now()) {
		return ErrExpired
	}
	return nil
}
