// Package heuristics computes fast statistical features of a bare domain
// name and applies the DGA-style detection rule from them.
package heuristics

import (
	"math"
	"strings"
)

// ShannonEntropy returns the base-2 Shannon entropy of s's character
// frequency distribution. Computed over the whole string; registrable-portion
// extraction would need a public-suffix list and the whole-string value is
// close enough for thresholding.
func ShannonEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	counts := make(map[rune]int, len(s))
	for _, r := range s {
		counts[r]++
	}
	n := float64(len(s))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// DigitRatio returns (#digits)/length. Returns 0 for an empty string.
func DigitRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	digits := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	return float64(digits) / float64(len(s))
}

// VowelRatio returns (#{a,e,i,o,u})/length. Returns 0 for an empty string.
func VowelRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	vowels := 0
	for _, r := range strings.ToLower(s) {
		switch r {
		case 'a', 'e', 'i', 'o', 'u':
			vowels++
		}
	}
	return float64(vowels) / float64(len(s))
}

// tldWeights maps a right-most label to a reputation weight. Entries absent
// from the map use the default weight of 1.0.
var tldWeights = map[string]float64{
	"tk":   1.5,
	"ml":   1.5,
	"ga":   1.5,
	"cf":   1.5,
	"gq":   1.5,
	"xyz":  1.3,
	"top":  1.3,
	"biz":  1.2,
	"ru":   1.2,
	"info": 1.1,
}

// TLDWeight returns the reputation weight for a TLD label (case-insensitive).
// Unknown TLDs default to 1.0.
func TLDWeight(tld string) float64 {
	if w, ok := tldWeights[strings.ToLower(tld)]; ok {
		return w
	}
	return 1.0
}

// Features bundles the statistical signals computed over a single domain
// name, shared by the Heuristic and Anomaly engines.
type Features struct {
	Length     int
	Entropy    float64
	DigitRatio float64
	VowelRatio float64
	TLDWeight  float64
}

// Compute extracts Features for name (the whole string; see ShannonEntropy)
// and tld (the right-most label, see fingerprint.TLD).
func Compute(name, tld string) Features {
	return Features{
		Length:     len(name),
		Entropy:    ShannonEntropy(name),
		DigitRatio: DigitRatio(name),
		VowelRatio: VowelRatio(name),
		TLDWeight:  TLDWeight(tld),
	}
}
