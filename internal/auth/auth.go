// Package auth validates the time-bucketed API tokens that gate the relay.
//
// A token is hex(HMAC-SHA256(key, message)) where key is the decimal Unix
// time floored to a 180 second boundary and message is the configured seed
// ("proxy-access" by default). Nothing is stored; validity is derived from
// the wall clock alone.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	relayerr "github.com/qza666/v6relay/internal/errors"
)

const (
	// BucketWidth is the lifetime of a single key.
	BucketWidth = 180 * time.Second

	// DefaultMessage is the HMAC message when no seed is configured.
	DefaultMessage = "proxy-access"

	// HeaderName carries the token on relay requests.
	HeaderName = "API-Token"

	// QueryParam is the alternative token carrier.
	QueryParam = "token"
)

// skew is the number of neighbouring buckets accepted on either side.
const skew = 1

// Authenticator checks API tokens.
type Authenticator struct {
	message  []byte
	required bool
	now      func() time.Time
}

// New returns an Authenticator. An empty message selects DefaultMessage.
func New(message string, required bool) *Authenticator {
	if message == "" {
		message = DefaultMessage
	}
	return &Authenticator{
		message:  []byte(message),
		required: required,
		now:      time.Now,
	}
}

// Required reports whether tokens are enforced.
func (a *Authenticator) Required() bool {
	return a.required
}

// BucketKey returns the HMAC key for the bucket containing t.
func BucketKey(t time.Time) string {
	width := int64(BucketWidth / time.Second)
	unix := t.Unix()
	bucket := unix - mod(unix, width)
	return strconv.FormatInt(bucket, 10)
}

func mod(a, b int64) int64 {
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

// Generate returns the token valid for the bucket containing t.
func (a *Authenticator) Generate(t time.Time) string {
	h := hmac.New(sha256.New, []byte(BucketKey(t)))
	h.Write(a.message)
	return hex.EncodeToString(h.Sum(nil))
}

// Validate reports whether token matches the bucket containing t or one of
// its immediate neighbours. Every candidate is compared so the running time
// does not depend on which bucket, if any, matched.
func (a *Authenticator) Validate(token string, t time.Time) bool {
	given := []byte(token)
	match := 0
	for offset := -skew; offset <= skew; offset++ {
		expected := []byte(a.Generate(t.Add(time.Duration(offset) * BucketWidth)))
		if hmac.Equal(given, expected) {
			match |= 1
		}
	}
	return subtle.ConstantTimeEq(int32(match), 1) == 1
}

// TokenFromRequest returns the API-Token header, falling back to the token
// query parameter.
func TokenFromRequest(r *http.Request) string {
	if tok := r.Header.Get(HeaderName); tok != "" {
		return tok
	}
	return r.URL.Query().Get(QueryParam)
}

// Authenticate checks the token carried by r. It always succeeds when
// tokens are optional.
func (a *Authenticator) Authenticate(r *http.Request) error {
	return a.Check(TokenFromRequest(r))
}

// Check validates a raw token against the current time.
func (a *Authenticator) Check(token string) error {
	if !a.required {
		return nil
	}
	if token == "" {
		return relayerr.Unauthorized("missing API token")
	}
	if !a.Validate(token, a.now()) {
		return relayerr.Unauthorized("invalid API token")
	}
	return nil
}
