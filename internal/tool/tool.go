// Package tool exposes the signer as a pluggable capability: a descriptor the
// host renders as input fields, and a Run entry point taking the host's loosely
// typed parameter bag.
package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/imagesigner/internal/signing"
)

// Parameter names accepted in Params.
const (
	ParamImageID       = "image_id"
	ParamSecretKey     = "secret_key"
	ParamExpirySeconds = "expiry_seconds"
)

// Param describes one input field.
type Param struct {
	Label    string `json:"label"`
	Name     string `json:"name"`
	Type     string `json:"type"`
	Default  any    `json:"default,omitempty"`
	Secret   bool   `json:"secret,omitempty"`
	Optional bool   `json:"optional,omitempty"`
}

// Descriptor is what the host needs to list and render the capability.
type Descriptor struct {
	Label       string  `json:"label"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Icon        string  `json:"icon,omitempty"`
	Category    string  `json:"category"`
	Description string  `json:"description"`
	Inputs      []Param `json:"inputs"`
}

// Describe returns the capability descriptor.
func Describe() Descriptor {
	return Descriptor{
		Label:       "Image Signer Tool",
		Name:        "imageSignerTool",
		Type:        "Tool",
		Icon:        "globe.svg",
		Category:    "Utilities",
		Description: "Signs image_id with token and expiry",
		Inputs: []Param{
			{Label: "Image ID", Name: ParamImageID, Type: "string"},
			{Label: "Secret Key", Name: ParamSecretKey, Type: "string", Secret: true},
			{Label: "Expiry (in seconds)", Name: ParamExpirySeconds, Type: "number", Default: signing.DefaultValiditySeconds, Optional: true},
		},
	}
}

// Params is the parameter bag handed over by the host.
type Params map[string]any

// Result is returned to the host on success.
type Result struct {
	SignedImageURL string `json:"signed_image_url"`
}

// Tool runs the signer on behalf of the host.
type Tool struct {
	issuer *signing.Issuer
}

// New creates a Tool backed by issuer.
func New(issuer *signing.Issuer) *Tool {
	return &Tool{issuer: issuer}
}

// Run validates params and issues a signed URL.
func (t *Tool) Run(params Params) (Result, error) {
	signed, err := t.Issue(params)
	if err != nil {
		return Result{}, err
	}
	return Result{SignedImageURL: signed.URL}, nil
}

// Issue is Run for callers that also need the expiry and signature.
func (t *Tool) Issue(params Params) (signing.SignedURL, error) {
	req, err := ParseRequest(params)
	if err != nil {
		return signing.SignedURL{}, err
	}
	return t.issuer.Issue(req)
}

// ParseRequest converts params into a signing.Request, rejecting anything that
// is missing or of the wrong type.
func ParseRequest(params Params) (signing.Request, error) {
	id, ok := params[ParamImageID].(string)
	if !ok || id == "" {
		return signing.Request{}, signing.ErrInvalidResourceID
	}
	secret, ok := params[ParamSecretKey].(string)
	if !ok || secret == "" {
		return signing.Request{}, signing.ErrInvalidSecret
	}
	req := signing.Request{ResourceID: id, Secret: []byte(secret)}
	raw, present := params[ParamExpirySeconds]
	if !present || raw == nil {
		return req, nil
	}
	seconds, err := ParseSeconds(raw)
	if err != nil {
		return signing.Request{}, err
	}
	req.ValiditySeconds = &seconds
	return req, nil
}

// ParseSeconds accepts the numeric shapes a validity window arrives in: any Go
// integer type, integral floats, json.Number and decimal strings.
func ParseSeconds(v any) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		return fromUint(uint64(x))
	case uint8:
		n = int64(x)
	case uint16:
		n = int64(x)
	case uint32:
		n = int64(x)
	case uint64:
		return fromUint(x)
	case float32:
		return fromFloat(float64(x))
	case float64:
		return fromFloat(x)
	case json.Number:
		parsed, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil {
				return 0, fmt.Errorf("%w: %q is not an integer", signing.ErrInvalidValidityWindow, x.String())
			}
			return fromFloat(f)
		}
		n = parsed
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer", signing.ErrInvalidValidityWindow, x)
		}
		n = parsed
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", signing.ErrInvalidValidityWindow, v)
	}
	if n <= 0 {
		return 0, signing.ErrInvalidValidityWindow
	}
	return n, nil
}

func fromUint(x uint64) (int64, error) {
	if x == 0 || x > math.MaxInt64 {
		return 0, signing.ErrInvalidValidityWindow
	}
	return int64(x), nil
}

func fromFloat(x float64) (int64, error) {
	if x != math.Trunc(x) || math.IsInf(x, 0) || x >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v is not an integer", signing.ErrInvalidValidityWindow, x)
	}
	if x <= 0 {
		return 0, signing.ErrInvalidValidityWindow
	}
	return int64(x), nil
}
