// Package fingerprint validates and normalizes DNS names into the canonical
// form used as the cache and dedup key throughout the pipeline.
package fingerprint

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// MaxLength is the longest fingerprint the pipeline will accept, matching the
// DNS wire-format limit on a full domain name.
const MaxLength = 253

// ErrInvalid is returned (wrapped with a reason) for any name that fails
// validation. It never reaches the Orchestrator's tiers.
var ErrInvalid = errors.New("invalid domain fingerprint")

var profile = idna.New(
	idna.MapForLookup(),
	idna.Transitional(false),
	idna.StrictDomainName(false),
)

// Normalize validates and converts name into a Fingerprint: a lowercase,
// ASCII-compatible-encoded DNS name with length <= MaxLength. Internationalized
// names are converted via IDNA (punycode). Invalid names return ErrInvalid
// wrapped with the specific reason.
func Normalize(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", wrap("empty domain")
	}
	if trimmed != name {
		return "", wrap("domain contains leading/trailing whitespace")
	}
	for _, r := range trimmed {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", wrap("domain contains whitespace or control characters")
		}
	}

	ascii, err := profile.ToASCII(trimmed)
	if err != nil {
		return "", wrap("domain is not a valid IDNA name: " + err.Error())
	}

	lower := strings.ToLower(strings.TrimSuffix(ascii, "."))
	if lower == "" {
		return "", wrap("empty domain")
	}
	if !strings.Contains(lower, ".") {
		return "", wrap("domain has no dot")
	}
	if len(lower) > MaxLength {
		return "", wrap("domain exceeds maximum length")
	}

	return lower, nil
}

func wrap(reason string) error {
	return fmt.Errorf("%s: %w", reason, ErrInvalid)
}

// TLD returns the right-most label of a normalized fingerprint.
func TLD(fp string) string {
	idx := strings.LastIndexByte(fp, '.')
	if idx < 0 {
		return fp
	}
	return fp[idx+1:]
}
