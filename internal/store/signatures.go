package store

import (
	"fmt"

	"github.com/jroosing/dnsverdict/internal/model"
)

// SignatureSnapshot implements learner.SignatureSnapshotStore over the
// shared sqlite database.
type SignatureSnapshot struct {
	db *DB
}

// NewSignatureSnapshot returns a SignatureSnapshot backed by db.
func NewSignatureSnapshot(db *DB) *SignatureSnapshot { return &SignatureSnapshot{db: db} }

// LoadSignatures returns every persisted signature.
func (s *SignatureSnapshot) LoadSignatures() ([]model.Signature, error) {
	rows, err := s.db.conn.Query(`
		SELECT reason, filter_id, rule_prefix, client_class, category, risk, confidence, hits, last_seen
		FROM signatures
	`)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()

	var out []model.Signature
	for rows.Next() {
		var sig model.Signature
		var risk int
		if err := rows.Scan(
			&sig.Key.Reason, &sig.Key.FilterID, &sig.Key.RulePrefix, &sig.Key.ClientClass,
			&sig.Category, &risk, &sig.Confidence, &sig.Hits, &sig.LastSeen,
		); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sig.Risk = model.Risk(risk)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// SaveSignatures replaces the persisted signature set atomically.
func (s *SignatureSnapshot) SaveSignatures(sigs []model.Signature) error {
	tx, err := s.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM signatures"); err != nil {
		return fmt.Errorf("clear signatures: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO signatures (reason, filter_id, rule_prefix, client_class, category, risk, confidence, hits, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, sig := range sigs {
		if _, err := stmt.Exec(
			sig.Key.Reason, sig.Key.FilterID, sig.Key.RulePrefix, sig.Key.ClientClass,
			sig.Category, int(sig.Risk), sig.Confidence, sig.Hits, sig.LastSeen,
		); err != nil {
			return fmt.Errorf("insert signature: %w", err)
		}
	}

	return tx.Commit()
}
