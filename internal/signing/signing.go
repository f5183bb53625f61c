// Package signing issues time-limited image URLs carrying an HMAC-SHA256
// signature over the image id and its expiry. A content server holding the
// same secret can validate them without a lookup.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"net/url"
	"strconv"
	"time"
)

const (
	// DefaultValiditySeconds applies when a request omits its validity window.
	DefaultValiditySeconds int64 = 300
	// DefaultHost is the content server that validates issued URLs.
	DefaultHost = "chemistryguru.com.sg"

	imagePath = "/get-image.php"
)

// Request describes a single URL to issue. ValiditySeconds is optional; nil
// means DefaultValiditySeconds.
type Request struct {
	ResourceID      string
	Secret          []byte
	ValiditySeconds *int64
}

// SignedURL is the result of Issue.
type SignedURL struct {
	ResourceID string
	Expires    int64
	Signature  string
	URL        string
}

// Issuer builds signed URLs for a single content host.
type Issuer struct {
	host string
	now  func() time.Time
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithHost overrides the content host embedded in issued URLs.
func WithHost(host string) Option {
	return func(i *Issuer) {
		if host != "" {
			i.host = host
		}
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewIssuer creates an Issuer.
func NewIssuer(opts ...Option) *Issuer {
	i := &Issuer{host: DefaultHost, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Host returns the content host the issuer points at.
func (i *Issuer) Host() string {
	return i.host
}

// Seconds is a convenience for filling Request.ValiditySeconds.
func Seconds(n int64) *int64 {
	return &n
}

// Issue validates req and returns the signed URL. The clock is read exactly
// once so the expiry in the URL is the one that was signed.
func (i *Issuer) Issue(req Request) (SignedURL, error) {
	now := i.now().Unix()
	validity, err := req.validate(now)
	if err != nil {
		return SignedURL{}, err
	}
	expires := now + validity
	sig := Sign(req.Secret, req.ResourceID, expires)
	return SignedURL{
		ResourceID: req.ResourceID,
		Expires:    expires,
		Signature:  sig,
		URL:        i.URL(req.ResourceID, expires, sig),
	}, nil
}

// URL assembles the image URL. The id is query-escaped here, but signatures
// are always computed over the raw id.
func (i *Issuer) URL(resourceID string, expires int64, signature string) string {
	return "https://" + i.host + imagePath +
		"?id=" + url.QueryEscape(resourceID) +
		"&expires=" + strconv.FormatInt(expires, 10) +
		"&sig=" + url.QueryEscape(signature)
}

// CanonicalMessage is the exact string that gets signed: the resource id
// immediately followed by the decimal expiry, with no separator.
func CanonicalMessage(resourceID string, expires int64) string {
	return resourceID + strconv.FormatInt(expires, 10)
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical message.
func Sign(secret []byte, resourceID string, expires int64) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(CanonicalMessage(resourceID, expires)))
	return hex.EncodeToString(mac.Sum(nil))
}

// validate resolves the validity window. Windows that would push the expiry
// past the int64 range are rejected so the expiry is always in the future.
func (r Request) validate(now int64) (int64, error) {
	if r.ResourceID == "" {
		return 0, ErrInvalidResourceID
	}
	if len(r.Secret) == 0 {
		return 0, ErrInvalidSecret
	}
	if r.ValiditySeconds == nil {
		return DefaultValiditySeconds, nil
	}
	if *r.ValiditySeconds <= 0 || *r.ValiditySeconds > math.MaxInt64-now {
		return 0, ErrInvalidValidityWindow
	}
	return *r.ValiditySeconds, nil
}
