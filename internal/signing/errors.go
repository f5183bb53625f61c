package signing

import "errors"

// Request validation failures. None of them are retryable.
var (
	ErrInvalidResourceID     = errors.New("image id is required")
	ErrInvalidSecret         = errors.New("secret key is required")
	ErrInvalidValidityWindow = errors.New("expiry seconds must be a positive integer")
)

// Verification failures.
var (
	ErrMalformedURL      = errors.New("malformed signed url")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrExpired           = errors.New("signed url expired")
)

// IsValidation reports whether err is one of the request validation failures.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidResourceID) ||
		errors.Is(err, ErrInvalidSecret) ||
		errors.Is(err, ErrInvalidValidityWindow)
}
