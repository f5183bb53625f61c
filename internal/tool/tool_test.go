package tool

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/imagesigner/internal/signing"
)

func newTestTool() *Tool {
	return New(signing.NewIssuer(signing.WithClock(func() time.Time {
		return time.Unix(1000000000, 0)
	})))
}

func TestRun(t *testing.T) {
	res, err := newTestTool().Run(Params{
		ParamImageID:       "img123",
		ParamSecretKey:     "s3cr3t",
		ParamExpirySeconds: 300,
	})
	require.NoError(t, err)
	assert.Equal(t,
		"https://chemistryguru.com.sg/get-image.php?id=img123&expires=1000000300&sig=068b2e58ee1411152787f536b3ac51fd37492f56b5ca14d27666145aa85ad4c2",
		res.SignedImageURL)
}

func TestRun_DefaultExpiry(t *testing.T) {
	tl := newTestTool()
	explicit, err := tl.Run(Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: 300})
	require.NoError(t, err)

	for name, params := range map[string]Params{
		"absent": {ParamImageID: "img1", ParamSecretKey: "k"},
		"nil":    {ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: nil},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := tl.Run(params)
			require.NoError(t, err)
			assert.Equal(t, explicit, got)
		})
	}
}

func TestParseRequest_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   error
	}{
		{"missing image id", Params{ParamSecretKey: "k"}, signing.ErrInvalidResourceID},
		{"empty image id", Params{ParamImageID: "", ParamSecretKey: "k"}, signing.ErrInvalidResourceID},
		{"numeric image id", Params{ParamImageID: 42, ParamSecretKey: "k"}, signing.ErrInvalidResourceID},
		{"missing secret", Params{ParamImageID: "img1"}, signing.ErrInvalidSecret},
		{"empty secret", Params{ParamImageID: "img1", ParamSecretKey: ""}, signing.ErrInvalidSecret},
		{"negative expiry", Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: -1}, signing.ErrInvalidValidityWindow},
		{"zero expiry", Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: 0}, signing.ErrInvalidValidityWindow},
		{"fractional expiry", Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: 12.5}, signing.ErrInvalidValidityWindow},
		{"text expiry", Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: "soon"}, signing.ErrInvalidValidityWindow},
		{"fractional json number", Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: json.Number("1.5")}, signing.ErrInvalidValidityWindow},
		{"zero uint expiry", Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: uint8(0)}, signing.ErrInvalidValidityWindow},
		{"uint64 beyond int64", Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: uint64(math.MaxUint64)}, signing.ErrInvalidValidityWindow},
		{"bool expiry", Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: true}, signing.ErrInvalidValidityWindow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest(tt.params)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRun_ExpiryOverflow(t *testing.T) {
	tl := newTestTool()
	for _, v := range []any{"9223372036854775807", uint64(math.MaxInt64), json.Number("9223372036854775807")} {
		_, err := tl.Run(Params{ParamImageID: "img1", ParamSecretKey: "k", ParamExpirySeconds: v})
		assert.ErrorIs(t, err, signing.ErrInvalidValidityWindow, "%#v", v)
	}
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in   any
		want int64
	}{
		{300, 300},
		{int8(10), 10},
		{int16(600), 600},
		{int32(45), 45},
		{int64(60), 60},
		{uint(7), 7},
		{uint8(200), 200},
		{uint16(900), 900},
		{uint32(5), 5},
		{uint64(86400), 86400},
		{float32(90), 90},
		{float64(120), 120},
		{json.Number("900"), 900},
		{json.Number("300.0"), 300},
		{" 30 ", 30},
	}
	for _, tt := range tests {
		got, err := ParseSeconds(tt.in)
		require.NoError(t, err, "%#v", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestDescribe(t *testing.T) {
	d := Describe()
	assert.Equal(t, "imageSignerTool", d.Name)
	require.Len(t, d.Inputs, 3)

	byName := map[string]Param{}
	for _, p := range d.Inputs {
		byName[p.Name] = p
	}
	assert.True(t, byName[ParamSecretKey].Secret)
	assert.False(t, byName[ParamImageID].Secret)
	assert.True(t, byName[ParamExpirySeconds].Optional)
	assert.Equal(t, signing.DefaultValiditySeconds, byName[ParamExpirySeconds].Default)
}
