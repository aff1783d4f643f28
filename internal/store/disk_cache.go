package store

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/jroosing/dnsverdict/internal/model"
	"github.com/jroosing/dnsverdict/internal/pool"
)

// encodeBufPool reuses scratch buffers for the JSON encoding every disk-tier
// write performs.
var encodeBufPool = pool.New(func() *bytes.Buffer { return new(bytes.Buffer) })

// DiskCache implements cache.DiskStore over the shared sqlite database,
// providing the durable-across-restarts tier of the Verdict Cache.
type DiskCache struct {
	db *DB
}

// NewDiskCache returns a DiskCache backed by db.
func NewDiskCache(db *DB) *DiskCache { return &DiskCache{db: db} }

// Get returns the stored verdict and insertion time for domain, if present.
func (d *DiskCache) Get(domain string) (model.Verdict, time.Time, bool) {
	var raw string
	var insertedAt time.Time
	err := d.db.conn.QueryRow(
		"SELECT verdict_json, inserted_at FROM cache_entries WHERE domain = ?", domain,
	).Scan(&raw, &insertedAt)
	if err != nil {
		return model.Verdict{}, time.Time{}, false
	}

	var v model.Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return model.Verdict{}, time.Time{}, false
	}
	return v, insertedAt, true
}

// Put upserts domain's verdict. Best-effort: encode and write errors are
// dropped silently and never reported to the caller.
func (d *DiskCache) Put(domain string, v model.Verdict, insertedAt time.Time) {
	buf := encodeBufPool.Get()
	buf.Reset()
	defer encodeBufPool.Put(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		return
	}
	_, _ = d.db.conn.Exec(`
		INSERT INTO cache_entries (domain, verdict_json, inserted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			verdict_json = excluded.verdict_json,
			inserted_at  = excluded.inserted_at
	`, domain, buf.String(), insertedAt)
}

// PurgeExpired deletes entries older than ttl.
func (d *DiskCache) PurgeExpired(ttl time.Duration) {
	cutoff := time.Now().Add(-ttl)
	_, _ = d.db.conn.Exec("DELETE FROM cache_entries WHERE inserted_at < ?", cutoff)
}
