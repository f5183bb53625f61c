package signing

import (
	"crypto/hmac"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Verify checks a URL produced by Issuer.URL against secret and returns the
// resource id and expiry it carries. Expired URLs are rejected relative to now.
func Verify(secret []byte, rawURL string, now time.Time) (string, int64, error) {
	if len(secret) == 0 {
		return "", 0, ErrInvalidSecret
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	q := u.Query()
	id, expires, sig := q.Get("id"), q.Get("expires"), q.Get("sig")
	if id == "" || expires == "" || sig == "" {
		return "", 0, fmt.Errorf("%w: missing parameters", ErrMalformedURL)
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: invalid expires", ErrMalformedURL)
	}
	expected := Sign(secret, id, exp)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return "", 0, ErrSignatureMismatch
	}
	if time.Unix(exp, 0).Before(now) {
		return id, exp, ErrExpired
	}
	return id, exp, nil
}
