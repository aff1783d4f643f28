package store

import (
	"fmt"

	"github.com/jroosing/dnsverdict/internal/model"
)

// LedgerSink implements ledger.Sink over the shared sqlite database, with
// idempotency on (decided_at, domain) enforced by the table's primary key.
type LedgerSink struct {
	db *DB
}

// NewLedgerSink returns a LedgerSink backed by db.
func NewLedgerSink(db *DB) *LedgerSink { return &LedgerSink{db: db} }

// AppendRow inserts v, no-op on a duplicate (decided_at, domain) key.
func (s *LedgerSink) AppendRow(v model.Verdict) error {
	reason, rule := "", ""
	if v.UpstreamMeta != nil {
		reason = v.UpstreamMeta.FilterReason
		rule = v.UpstreamMeta.FilterRule
	}

	_, err := s.db.conn.Exec(`
		INSERT INTO ledger_rows
			(decided_at, domain, risk, category, summary, upstream_reason, upstream_rule, is_anomaly, anomaly_score, entropy)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(decided_at, domain) DO NOTHING
	`, v.DecidedAt.UTC(), v.Domain, v.Risk.String(), string(v.Category), v.Summary, reason, rule, v.IsAnomaly, v.AnomalyScore, v.Entropy)
	if err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}
	return nil
}
