// Package model contains struct definitions shared across packages.
package model

import (
	"time"
)

// IssuanceStatus describes where an issuance is in its lifecycle.
type IssuanceStatus string

const (
	StatusQueued IssuanceStatus = "queued"
	StatusIssued IssuanceStatus = "issued"
	StatusFailed IssuanceStatus = "failed"
)

// Issuance records that a signed URL was (or will be) issued for an image. It
// never holds the secret; the signed URL itself is only kept in the published
// manifest. ExpiresAt stays zero until the URL has been signed.
type Issuance struct {
	ID          string         `json:"id"`
	ResourceID  string         `json:"imageId"`
	ExpiresAt   time.Time      `json:"expiresAt"`
	Status      IssuanceStatus `json:"status"`
	ManifestKey string         `json:"manifestKey,omitempty"`
	Message     string         `json:"message,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}
