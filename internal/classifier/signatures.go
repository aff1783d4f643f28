// Package classifier implements the Metadata Classifier: it
// classifies a domain solely from upstream filter metadata and a small
// name-keyword prior set, backed by a learned signature store that the
// Pattern Learner writes and this package reads.
package classifier

import (
	"sync"
	"time"

	"github.com/jroosing/dnsverdict/internal/model"
)

// SignatureStore holds learned signatures with single-writer (Pattern
// Learner), many-reader semantics: readers see a consistent snapshot per
// lookup under an RWMutex.
type SignatureStore struct {
	mu   sync.RWMutex
	data map[model.SignatureKey]*model.Signature
}

// NewSignatureStore returns an empty store.
func NewSignatureStore() *SignatureStore {
	return &SignatureStore{data: map[model.SignatureKey]*model.Signature{}}
}

// LoadSnapshot replaces the store's contents, used when seeding from disk
// (or a baseline set) at startup.
func (s *SignatureStore) LoadSnapshot(sigs []model.Signature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[model.SignatureKey]*model.Signature, len(sigs))
	for i := range sigs {
		sig := sigs[i]
		s.data[sig.Key] = &sig
	}
}

// Snapshot returns a copy of all signatures, for disk persistence.
func (s *SignatureStore) Snapshot() []model.Signature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Signature, 0, len(s.data))
	for _, sig := range s.data {
		out = append(out, *sig)
	}
	return out
}

// Lookup returns the signature for key, if present.
func (s *SignatureStore) Lookup(key model.SignatureKey) (model.Signature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.data[key]
	if !ok {
		return model.Signature{}, false
	}
	return *sig, true
}

// Observe applies the Pattern Learner's update policy: blend
// confidence on an existing key, insert fresh otherwise.
func (s *SignatureStore) Observe(key model.SignatureKey, category model.Category, risk model.Risk, observedConfidence float64, at time.Time) {
	const blendOld, blendNew = 0.8, 0.2

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[key]; ok {
		existing.Hits++
		existing.LastSeen = at
		existing.Confidence = blendOld*existing.Confidence + blendNew*observedConfidence
		existing.Category = category
		existing.Risk = risk
		return
	}
	s.data[key] = &model.Signature{
		Key:        key,
		Category:   category,
		Risk:       risk,
		Confidence: observedConfidence,
		Hits:       1,
		LastSeen:   at,
	}
}

// Len reports the number of learned signatures, used for the
// learned_patterns stat.
func (s *SignatureStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
