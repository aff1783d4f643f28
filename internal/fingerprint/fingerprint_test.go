package fingerprint_test

import (
	"strings"
	"testing"

	"github.com/jroosing/dnsverdict/internal/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_Valid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "simple", in: "a.b", want: "a.b"},
		{name: "uppercase folds", in: "Ads.Example.COM", want: "ads.example.com"},
		{name: "trailing dot stripped", in: "example.com.", want: "example.com"},
		{name: "punycode label passes through", in: "xn--bcher-kva.example", want: "xn--bcher-kva.example"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fingerprint.Normalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_MaxLength(t *testing.T) {
	label := strings.Repeat("a", 49)
	name := strings.Repeat(label+".", 5) + "com" // 253 chars, exactly at the limit
	got, err := fingerprint.Normalize(name)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), fingerprint.MaxLength)

	tooLong := strings.Repeat("a", 251) + ".co" // 254 chars, one over the limit
	_, err = fingerprint.Normalize(tooLong)
	assert.Error(t, err)
}

func TestNormalize_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "empty", in: ""},
		{name: "no dot", in: "no-dot"},
		{name: "contains space", in: "a b.com"},
		{name: "whitespace only", in: "   "},
		{name: "control char", in: "a.com\x00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fingerprint.Normalize(tt.in)
			assert.ErrorIs(t, err, fingerprint.ErrInvalid)
		})
	}
}

func TestTLD(t *testing.T) {
	assert.Equal(t, "com", fingerprint.TLD("ads.example.com"))
	assert.Equal(t, "ru", fingerprint.TLD("xhk92-z1-kq4.ru"))
}
