package ledger

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/iodevs-net/git-gov/internal/ipcproto"
	"github.com/iodevs-net/git-gov/internal/manifest"
)

// schema is the ledger's one and only schema version. The event-store
// this package replaced carried an eight-version migration chain for a
// domain this store no longer has; a provenance ledger has nothing
// comparable to migrate yet, so there is a single pinned schema instead.
const schema = `
CREATE TABLE IF NOT EXISTS manifests (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    commit_tree_hash  TEXT NOT NULL UNIQUE,
    timestamp_ns      INTEGER NOT NULL,
    cns_score         INTEGER NOT NULL,
    credits_charged   REAL NOT NULL,
    credits_debited   REAL NOT NULL,
    difficulty_bits   INTEGER NOT NULL,
    raw_json          BLOB NOT NULL,
    prev_hash         BLOB NOT NULL,
    row_hash          BLOB NOT NULL UNIQUE
);

CREATE INDEX IF NOT EXISTS idx_manifests_timestamp ON manifests(timestamp_ns);
`

// Store is the SQLite-backed provenance ledger. It satisfies the
// daemon.Ledger interface.
type Store struct {
	db *sql.DB

	// mu serializes Insert: row_hash chaining reads the previous row's
	// hash and writes the next one, and sqlite3's single-writer model
	// means concurrent inserts would otherwise race on that read.
	mu sync.Mutex
}

// Open opens or creates the ledger database at path and applies the
// pinned schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("ledger: create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record persists m, chaining its row hash onto the previous record's
// hash. It satisfies daemon.Ledger.
func (s *Store) Record(ctx context.Context, m *manifest.Manifest) error {
	_, err := s.Insert(ctx, m)
	return err
}

// Insert persists m and returns the stored Record, including the chain
// fields computed for it.
func (s *Store) Insert(ctx context.Context, m *manifest.Manifest) (*Record, error) {
	rawJSON, err := manifest.CanonicalJSON(m)
	if err != nil {
		return nil, fmt.Errorf("ledger: canonicalize manifest: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prevHash, err := s.lastRowHash(ctx)
	if err != nil {
		return nil, err
	}

	rowHash := chainHash(prevHash, rawJSON)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO manifests (commit_tree_hash, timestamp_ns, cns_score, credits_charged, credits_debited, difficulty_bits, raw_json, prev_hash, row_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.CommitTreeHash, m.TimestampNs, m.CNSScore, m.CreditsCharged, m.CreditsDebited, m.DifficultyBits, rawJSON, prevHash[:], rowHash[:],
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: insert manifest: %w", err)
	}

	return &Record{
		CommitTreeHash: m.CommitTreeHash,
		TimestampNs:    m.TimestampNs,
		CNSScore:       m.CNSScore,
		CreditsCharged: m.CreditsCharged,
		CreditsDebited: m.CreditsDebited,
		DifficultyBits: m.DifficultyBits,
		RawJSON:        rawJSON,
		PrevHash:       prevHash,
		RowHash:        rowHash,
	}, nil
}

// chainHash computes the next row's hash from the previous row's hash
// and this row's canonical manifest bytes, the tamper-evident
// chain-linking idea the original event store used for its append-only
// event log, adapted here to the manifest ledger's simpler single-table
// shape and without a separate HMAC key, since manifests are already
// Ed25519-signed.
func chainHash(prev [32]byte, rawJSON []byte) [32]byte {
	h := sha256.New()
	h.Write(prev[:])
	h.Write(rawJSON)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func (s *Store) lastRowHash(ctx context.Context) ([32]byte, error) {
	var hash []byte
	err := s.db.QueryRowContext(ctx, `SELECT row_hash FROM manifests ORDER BY id DESC LIMIT 1`).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return [32]byte{}, nil
	}
	if err != nil {
		return [32]byte{}, fmt.Errorf("ledger: read last row hash: %w", err)
	}
	var out [32]byte
	copy(out[:], hash)
	return out, nil
}

// Recent returns the most recent limit manifests, newest first, as the
// history IPC op's response rows. It satisfies daemon.Ledger.
func (s *Store) Recent(ctx context.Context, limit int) ([]ipcproto.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT commit_tree_hash, timestamp_ns, cns_score, credits_charged
		FROM manifests
		ORDER BY id DESC
		LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ledger: query recent: %w", err)
	}
	defer rows.Close()

	var entries []ipcproto.HistoryEntry
	for rows.Next() {
		var e ipcproto.HistoryEntry
		if err := rows.Scan(&e.CommitTreeHash, &e.TimestampNs, &e.CNSScore, &e.CreditsCharged); err != nil {
			return nil, fmt.Errorf("ledger: scan history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate recent: %w", err)
	}
	return entries, nil
}

// GetByTreeHash retrieves the manifest recorded for a given commit tree
// hash, or nil if no manifest was ever recorded for it.
func (s *Store) GetByTreeHash(ctx context.Context, treeHash string) (*Record, error) {
	var r Record
	var prevHash, rowHash []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, commit_tree_hash, timestamp_ns, cns_score, credits_charged, credits_debited, difficulty_bits, raw_json, prev_hash, row_hash
		FROM manifests WHERE commit_tree_hash = ?`, treeHash,
	).Scan(&r.ID, &r.CommitTreeHash, &r.TimestampNs, &r.CNSScore, &r.CreditsCharged, &r.CreditsDebited, &r.DifficultyBits, &r.RawJSON, &prevHash, &rowHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: get by tree hash: %w", err)
	}
	copy(r.PrevHash[:], prevHash)
	copy(r.RowHash[:], rowHash)
	return &r, nil
}
