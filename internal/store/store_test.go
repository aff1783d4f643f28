package store_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/jroosing/dnsverdict/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDiskCache_PutGetPurge(t *testing.T) {
	db := openTestDB(t)
	dc := store.NewDiskCache(db)

	dc.Put("a.com", model.Verdict{Domain: "a.com", Risk: model.RiskHigh}, time.Now())
	v, _, ok := dc.Get("a.com")
	require.True(t, ok)
	assert.Equal(t, model.RiskHigh, v.Risk)

	dc.Put("old.com", model.Verdict{Domain: "old.com"}, time.Now().Add(-2*time.Hour))
	dc.PurgeExpired(time.Hour)

	_, _, ok = dc.Get("old.com")
	assert.False(t, ok)
	_, _, ok = dc.Get("a.com")
	assert.True(t, ok)
}

func TestSignatureSnapshot_SaveLoadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	snap := store.NewSignatureSnapshot(db)

	sigs := []model.Signature{
		{Key: model.SignatureKey{Reason: "x"}, Category: model.CategoryMalware, Risk: model.RiskHigh, Confidence: 0.9, Hits: 3, LastSeen: time.Now()},
	}
	require.NoError(t, snap.SaveSignatures(sigs))

	loaded, err := snap.LoadSignatures()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "x", loaded[0].Key.Reason)
	assert.Equal(t, model.RiskHigh, loaded[0].Risk)
}

func TestLedgerSink_AppendIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	sink := store.NewLedgerSink(db)

	decided := time.Now().Truncate(time.Second)
	v := model.Verdict{Domain: "a.com", DecidedAt: decided, Risk: model.RiskLow, Category: model.CategoryUnknown}

	require.NoError(t, sink.AppendRow(v))
	require.NoError(t, sink.AppendRow(v)) // duplicate key, should no-op not error
}
