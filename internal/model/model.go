// Package model defines the core data types shared across the analysis
// pipeline: upstream log entries, risk verdicts, and learned signatures.
package model

import (
	"encoding/json"
	"time"
)

// Risk is the severity assigned to a Verdict. Ordering is total: Critical is
// the most severe, Unknown the least informative.
type Risk int

const (
	RiskUnknown Risk = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the canonical lowercase-free label used in logs and JSON.
func (r Risk) String() string {
	switch r {
	case RiskCritical:
		return "Critical"
	case RiskHigh:
		return "High"
	case RiskMedium:
		return "Medium"
	case RiskLow:
		return "Low"
	default:
		return "Unknown"
	}
}

// MarshalJSON renders the risk as its string label.
func (r Risk) MarshalJSON() ([]byte, error) {
	return []byte(`"` + r.String() + `"`), nil
}

// UnmarshalJSON parses the string label back into a Risk. Unrecognized
// labels decode as Unknown.
func (r *Risk) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	switch s {
	case "Critical":
		*r = RiskCritical
	case "High":
		*r = RiskHigh
	case "Medium":
		*r = RiskMedium
	case "Low":
		*r = RiskLow
	default:
		*r = RiskUnknown
	}
	return nil
}

// Less reports whether r is strictly less severe than other.
func (r Risk) Less(other Risk) bool { return r < other }

// Category is a free-form label drawn from a known set.
type Category string

const (
	CategoryTracker     Category = "Tracker"
	CategoryAdvertising Category = "Advertising"
	CategoryMalware     Category = "Malware"
	CategorySystem      Category = "System"
	CategoryPrivacy     Category = "Privacy"
	CategoryUnknown     Category = "Unknown"
)

// Source identifies which tier of the pipeline produced a Verdict. It is
// immutable once set on a committed Verdict.
type Source int

const (
	SourceCache Source = iota
	SourceMetadata
	SourceHeuristic
	SourceAnomaly
	SourceReasoning
	SourceFallback
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "Cache"
	case SourceMetadata:
		return "Metadata"
	case SourceHeuristic:
		return "Heuristic"
	case SourceAnomaly:
		return "Anomaly"
	case SourceReasoning:
		return "Reasoning"
	case SourceFallback:
		return "Fallback"
	default:
		return "Unknown"
	}
}

func (s Source) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON parses the string label back into a Source. Unrecognized
// labels decode as Fallback.
func (s *Source) UnmarshalJSON(b []byte) error {
	var label string
	if err := json.Unmarshal(b, &label); err != nil {
		return err
	}
	switch label {
	case "Cache":
		*s = SourceCache
	case "Metadata":
		*s = SourceMetadata
	case "Heuristic":
		*s = SourceHeuristic
	case "Anomaly":
		*s = SourceAnomaly
	case "Reasoning":
		*s = SourceReasoning
	default:
		*s = SourceFallback
	}
	return nil
}

// UpstreamMeta carries the filter metadata attached to a DNS-sinkhole log
// entry. It is opaque beyond the fields the classifier keys on.
type UpstreamMeta struct {
	FilterReason string `json:"filter_reason"`
	FilterRule   string `json:"filter_rule,omitempty"`
	FilterID     string `json:"filter_id,omitempty"`
	Client       string `json:"client,omitempty"`
}

// UpstreamEvent is one entry from the DNS sinkhole query log.
type UpstreamEvent struct {
	Domain     string       `json:"domain"`
	AnsweredAt time.Time    `json:"answered_at"`
	Meta       UpstreamMeta `json:"upstream_meta"`
}

// Verdict is the final classification record for one domain, produced by
// exactly one tier. Once committed, Source is immutable.
type Verdict struct {
	Domain       string        `json:"domain"`
	Risk         Risk          `json:"risk"`
	Category     Category      `json:"category"`
	Summary      string        `json:"summary"`
	IsAnomaly    bool          `json:"is_anomaly"`
	AnomalyScore float64       `json:"anomaly_score"`
	Entropy      float64       `json:"entropy"`
	Source       Source        `json:"source"`
	UpstreamMeta *UpstreamMeta `json:"upstream_meta,omitempty"`
	DecidedAt    time.Time     `json:"decided_at"`
	Manual       bool          `json:"-"`

	// Confidence is the Metadata Classifier's matched-signature confidence
	// (0 for a hardcoded keyword-prior match), carried
	// only so the Pattern Learner's source=Metadata confidence gate can
	// read the real value that produced this Verdict instead of a flat
	// stand-in. Meaningless outside Source == SourceMetadata.
	Confidence float64 `json:"-"`
}

// SignatureKey partitions the space of upstream metadata that the Metadata
// Classifier probes at decreasing specificity.
type SignatureKey struct {
	Reason     string
	FilterID   string
	RulePrefix string
	ClientClass string
}

// Signature is a learned upstream-metadata -> verdict mapping.
type Signature struct {
	Key        SignatureKey
	Category   Category
	Risk       Risk
	Confidence float64
	Hits       int
	LastSeen   time.Time
}
