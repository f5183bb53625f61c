package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frozen(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0) }
}

func TestIssue_ConcreteScenario(t *testing.T) {
	issuer := NewIssuer(WithClock(frozen(1000000000)))

	got, err := issuer.Issue(Request{
		ResourceID:      "img123",
		Secret:          []byte("s3cr3t"),
		ValiditySeconds: Seconds(300),
	})
	require.NoError(t, err)

	const sig = "068b2e58ee1411152787f536b3ac51fd37492f56b5ca14d27666145aa85ad4c2"
	assert.Equal(t, int64(1000000300), got.Expires)
	assert.Equal(t, "img1231000000300", CanonicalMessage("img123", got.Expires))
	assert.Equal(t, sig, got.Signature)
	assert.Equal(t,
		"https://chemistryguru.com.sg/get-image.php?id=img123&expires=1000000300&sig="+sig,
		got.URL)
}

func TestSign_MatchesStandardHMAC(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("s3cr3t"))
	mac.Write([]byte("img1231000000300"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, Sign([]byte("s3cr3t"), "img123", 1000000300))
}

func TestIssue_Determinism(t *testing.T) {
	issuer := NewIssuer(WithClock(frozen(1700000000)))
	req := Request{ResourceID: "img1", Secret: []byte("k"), ValiditySeconds: Seconds(60)}

	a, err := issuer.Issue(req)
	require.NoError(t, err)
	b, err := issuer.Issue(req)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestSign_Sensitivity(t *testing.T) {
	base := Sign([]byte("secret-a"), "img1", 1700000000)

	assert.NotEqual(t, base, Sign([]byte("secret-b"), "img1", 1700000000), "key change")
	assert.NotEqual(t, base, Sign([]byte("secret-a"), "img2", 1700000000), "resource change")
	assert.NotEqual(t, base, Sign([]byte("secret-a"), "img1", 1700000001), "expiry change")
}

func TestIssue_ExpiryArithmetic(t *testing.T) {
	const now = 1234567890
	issuer := NewIssuer(WithClock(frozen(now)))

	explicit, err := issuer.Issue(Request{ResourceID: "img1", Secret: []byte("k"), ValiditySeconds: Seconds(300)})
	require.NoError(t, err)
	assert.Equal(t, int64(now+300), explicit.Expires)

	omitted, err := issuer.Issue(Request{ResourceID: "img1", Secret: []byte("k")})
	require.NoError(t, err)
	assert.Equal(t, explicit, omitted)

	short, err := issuer.Issue(Request{ResourceID: "img1", Secret: []byte("k"), ValiditySeconds: Seconds(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(now+1), short.Expires)
}

func TestIssue_Rejection(t *testing.T) {
	issuer := NewIssuer(WithClock(frozen(1000000000)))

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{
			name: "empty image id",
			req:  Request{ResourceID: "", Secret: []byte("s3cr3t"), ValiditySeconds: Seconds(300)},
			want: ErrInvalidResourceID,
		},
		{
			name: "empty secret",
			req:  Request{ResourceID: "img1", Secret: []byte(""), ValiditySeconds: Seconds(300)},
			want: ErrInvalidSecret,
		},
		{
			name: "nil secret",
			req:  Request{ResourceID: "img1", ValiditySeconds: Seconds(300)},
			want: ErrInvalidSecret,
		},
		{
			name: "negative validity",
			req:  Request{ResourceID: "img1", Secret: []byte("s3cr3t"), ValiditySeconds: Seconds(-1)},
			want: ErrInvalidValidityWindow,
		},
		{
			name: "validity overflowing the expiry",
			req:  Request{ResourceID: "img1", Secret: []byte("s3cr3t"), ValiditySeconds: Seconds(math.MaxInt64)},
			want: ErrInvalidValidityWindow,
		},
		{
			name: "validity one past the limit",
			req:  Request{ResourceID: "img1", Secret: []byte("s3cr3t"), ValiditySeconds: Seconds(math.MaxInt64 - 1000000000 + 1)},
			want: ErrInvalidValidityWindow,
		},
		{
			name: "zero validity",
			req:  Request{ResourceID: "img1", Secret: []byte("s3cr3t"), ValiditySeconds: Seconds(0)},
			want: ErrInvalidValidityWindow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := issuer.Issue(tt.req)
			require.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidation(err))
			assert.Empty(t, got.URL)
		})
	}
}

func TestIssue_EscapesReservedCharacters(t *testing.T) {
	issuer := NewIssuer(WithClock(frozen(1000000000)), WithHost("images.example.com"))

	got, err := issuer.Issue(Request{ResourceID: "img/a&b=c", Secret: []byte("topsecret")})
	require.NoError(t, err)

	const sig = "28ae387053bf984ac37cf1405c6902227c07bc9a8a11f19c4daca3adb82d21ee"
	assert.Equal(t, sig, got.Signature, "signature covers the raw id")
	assert.Equal(t,
		"https://images.example.com/get-image.php?id=img%2Fa%26b%3Dc&expires=1000000300&sig="+sig,
		got.URL)
}

func TestIssue_LargestValidity(t *testing.T) {
	issuer := NewIssuer(WithClock(frozen(1000000000)))

	got, err := issuer.Issue(Request{ResourceID: "img1", Secret: []byte("k"), ValiditySeconds: Seconds(math.MaxInt64 - 1000000000)})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got.Expires)
}

func TestWithHost_IgnoresEmpty(t *testing.T) {
	assert.Equal(t, DefaultHost, NewIssuer(WithHost("")).Host())
	assert.Equal(t, "cdn.example.com", NewIssuer(WithHost("cdn.example.com")).Host())
}
