package battery

import (
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/iodevs-net/git-gov/internal/security"
)

// Battery state file layout, bit-exact:
//   [magic u32][version u32][balance f64][last_hw_counter u64][timestamp_ns u64][signature 64 bytes]
// The signature covers every preceding byte and is produced with the
// node's Ed25519 key, so a battery file cannot be forged or replayed from
// another node without also holding that key.
const (
	stateMagic     uint32 = 0x50484257 // "PHBW"
	stateVersion   uint32 = 1
	stateBodySize         = 4 + 4 + 8 + 8 + 8 // magic + version + balance + counter + timestamp
	stateFileSize         = stateBodySize + ed25519.SignatureSize
)

// ErrStateCorrupt is returned by Load when the file is the wrong size, has
// an unrecognized magic/version, or fails signature verification.
var ErrStateCorrupt = errors.New("battery: corrupt or unsigned state file")

// Save persists the battery's current snapshot to path in the signed
// binary layout, using security's atomic temp-file-then-rename write.
func Save(path string, snap Snapshot, lastHWCounter uint64, signer ed25519.PrivateKey) error {
	body := make([]byte, stateBodySize)
	binary.BigEndian.PutUint32(body[0:4], stateMagic)
	binary.BigEndian.PutUint32(body[4:8], stateVersion)
	binary.BigEndian.PutUint64(body[8:16], math.Float64bits(snap.Credits))
	binary.BigEndian.PutUint64(body[16:24], lastHWCounter)
	binary.BigEndian.PutUint64(body[24:32], uint64(snap.UpdatedAt.UnixNano()))

	sig := ed25519.Sign(signer, body)

	out := make([]byte, 0, stateFileSize)
	out = append(out, body...)
	out = append(out, sig...)

	if err := security.WriteSecretFile(path, out); err != nil {
		return fmt.Errorf("battery: persist state: %w", err)
	}
	return nil
}

// LoadResult carries the decoded state plus the hardware counter value
// recorded alongside it, which the causality validator needs to resume
// cross-checking after a restart.
type LoadResult struct {
	Snapshot      Snapshot
	LastHWCounter uint64
}

// Load reads and verifies a previously persisted battery state file. A
// missing file is reported via the underlying os error, which callers
// should treat as "start fresh at StateEmpty." A present but unsigned or
// mismatched file returns ErrStateCorrupt; per the persistence contract,
// callers must reset to StateEmpty and log a warning rather than trust it.
func Load(path string, pub ed25519.PublicKey) (*LoadResult, error) {
	data, err := security.ReadSecureFile(path, stateFileSize+64)
	if err != nil {
		return nil, err
	}
	if len(data) != stateFileSize {
		return nil, ErrStateCorrupt
	}

	body, sig := data[:stateBodySize], data[stateBodySize:]
	if !ed25519.Verify(pub, body, sig) {
		return nil, ErrStateCorrupt
	}

	magic := binary.BigEndian.Uint32(body[0:4])
	version := binary.BigEndian.Uint32(body[4:8])
	if magic != stateMagic || version != stateVersion {
		return nil, ErrStateCorrupt
	}

	balance := math.Float64frombits(binary.BigEndian.Uint64(body[8:16]))
	hwCounter := binary.BigEndian.Uint64(body[16:24])
	ts := int64(binary.BigEndian.Uint64(body[24:32]))

	return &LoadResult{
		Snapshot: Snapshot{
			State:     classify(Snapshot{Credits: balance}, DefaultConfig()),
			Credits:   balance,
			UpdatedAt: time.Unix(0, ts),
		},
		LastHWCounter: hwCounter,
	}, nil
}
