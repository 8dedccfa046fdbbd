// Package ledger persists signed Provenance Manifests to a local SQLite
// database and answers the `history` IPC op from it. It is the daemon's
// only durable state besides the battery snapshot and identity key.
package ledger

import "github.com/iodevs-net/git-gov/internal/manifest"

// Record is one row of the manifests table: a signed manifest plus the
// chain fields that make tampering with the on-disk history detectable.
type Record struct {
	ID             int64
	CommitTreeHash string
	TimestampNs    uint64
	CNSScore       uint8
	CreditsCharged float64
	CreditsDebited float64
	DifficultyBits uint8
	RawJSON        []byte // canonical manifest.CanonicalJSON encoding
	PrevHash       [32]byte
	RowHash        [32]byte
}

// Manifest decodes the stored canonical JSON back into a manifest.Manifest.
func (r *Record) Manifest() (*manifest.Manifest, error) {
	return manifest.Parse(r.RawJSON)
}
