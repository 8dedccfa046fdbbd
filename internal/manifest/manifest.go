// Package manifest builds, signs, and parses Provenance Manifests: the
// typed record the Commit Gate embeds as a commit-message trailer,
// attesting the measured human-kinematic cost behind one commit.
package manifest

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/iodevs-net/git-gov/internal/schemas"
	"github.com/iodevs-net/git-gov/internal/security"
)

// SchemaVersion is the only manifest schema version this build emits.
// Verifiers reject any other value in the version field.
const SchemaVersion = 1

// TrailerKey is the commit-message trailer key the manifest is embedded
// under, bit-exact per the provenance trailer format.
const TrailerKey = "Pohw-Manifest"

// Metrics is the subset of entropy.Metrics carried into the manifest.
// Raw kinematic samples never appear here, only derived statistics.
type Metrics struct {
	LDLJ        float64 `json:"ldlj"`
	SpecEntropy float64 `json:"spec_entropy"`
	CurvEntropy float64 `json:"curv_entropy"`
	Throughput  float64 `json:"throughput"`
	NCD         float64 `json:"ncd"`
	Burstiness  float64 `json:"burstiness"`
}

// Manifest is the signed record attesting one commit's measured human
// attention cost. Signature is computed over the canonical JSON encoding
// with Signature itself zeroed out.
type Manifest struct {
	Version         int     `json:"version"`
	CommitTreeHash  string  `json:"commit_tree_hash"`
	TimestampNs     uint64  `json:"timestamp_ns"`
	Metrics         Metrics `json:"metrics"`
	CNSScore        uint8   `json:"cns_score"`
	CreditsCharged  float64 `json:"credits_charged"`
	CreditsDebited  float64 `json:"credits_debited"`
	DifficultyBits  uint8   `json:"difficulty_bits"`
	Nonce           uint64  `json:"nonce"`
	PubKey          string  `json:"pubkey"`    // base64, 32 bytes
	Signature       string  `json:"signature"` // base64, 64 bytes

	// Ext carries forward-compatible extension fields under a reserved
	// "ext:" prefix. Verifiers ignore unrecognized keys here; every other
	// unrecognized top-level field is a SchemaError. No normative
	// zero-knowledge range-proof format exists yet, so this is currently
	// always empty on manifests this build produces.
	Ext map[string]json.RawMessage `json:"ext,omitempty"`
}

var zeroSignature = make([]byte, ed25519.SignatureSize)

// Errors returned by Parse and Verify.
var (
	ErrUnsupportedVersion = errors.New("manifest: unsupported schema version")
	ErrUnknownField        = errors.New("manifest: unknown top-level field")
	ErrBadSignature         = errors.New("manifest: signature verification failed")
	ErrBadPubKey            = errors.New("manifest: malformed public key")
	ErrBadSignatureEncoding = errors.New("manifest: malformed signature encoding")
	ErrSchemaInvalid        = errors.New("manifest: failed schema validation")
)

// New builds an unsigned Manifest from its component fields.
func New(treeHash string, timestampNs uint64, m Metrics, cns uint8, charged, debited float64, difficultyBits uint8, nonce uint64, pub ed25519.PublicKey) *Manifest {
	return &Manifest{
		Version:        SchemaVersion,
		CommitTreeHash: treeHash,
		TimestampNs:    timestampNs,
		Metrics:        m,
		CNSScore:       cns,
		CreditsCharged: charged,
		CreditsDebited: debited,
		DifficultyBits: difficultyBits,
		Nonce:          nonce,
		PubKey:         base64.StdEncoding.EncodeToString(pub),
	}
}

// Sign computes the manifest's signing bytes (canonical JSON with
// Signature zeroed) and fills in the Signature field.
func (m *Manifest) Sign(priv ed25519.PrivateKey) error {
	signingBytes, err := m.canonicalBytesForSigning()
	if err != nil {
		return err
	}
	sig := ed25519.Sign(priv, signingBytes)
	m.Signature = base64.StdEncoding.EncodeToString(sig)
	return nil
}

// Verify checks that Signature is a valid Ed25519 signature over the
// manifest's canonical signing bytes, using the manifest's own embedded
// PubKey.
func (m *Manifest) Verify() error {
	if err := security.ValidateBase64String(m.PubKey); err != nil {
		return ErrBadPubKey
	}
	pub, err := base64.StdEncoding.DecodeString(m.PubKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return ErrBadPubKey
	}
	if err := security.ValidateBase64String(m.Signature); err != nil {
		return ErrBadSignatureEncoding
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return ErrBadSignatureEncoding
	}
	signingBytes, err := m.canonicalBytesForSigning()
	if err != nil {
		return err
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), signingBytes, sig) {
		return ErrBadSignature
	}
	return nil
}

// canonicalBytesForSigning returns the canonical JSON encoding of the
// manifest with Signature replaced by its zero value, per the signing
// rule: "signature over the bytes of the manifest with the signature
// field replaced by zeros."
func (m *Manifest) canonicalBytesForSigning() ([]byte, error) {
	clone := *m
	clone.Signature = base64.StdEncoding.EncodeToString(zeroSignature)
	return CanonicalJSON(&clone)
}

// CanonicalJSON encodes m with object keys sorted lexicographically at
// every nesting level and no insignificant whitespace. encoding/json
// writes struct fields in declaration order and sorts only map keys, so
// the struct encoding is decoded into generic maps (numbers kept as their
// literal text) and re-encoded.
func CanonicalJSON(m *Manifest) ([]byte, error) {
	type wire Manifest // avoid recursive MarshalJSON if one is ever added
	raw, err := json.Marshal(wire(*m))
	if err != nil {
		return nil, fmt.Errorf("manifest: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("manifest: re-decode for canonicalization: %w", err)
	}
	return json.Marshal(generic)
}

func marshalSortedKeys(m map[string]json.RawMessage) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, m[k]...)
	}
	buf = append(buf, '}')
	return buf, nil
}

// Parse decodes raw JSON into a Manifest, rejecting any top-level field
// that is not part of the schema, and any schema version other than
// SchemaVersion. Extension fields are accepted only inside the top-level
// "ext" object; a top-level key such as "ext:foo" is an unknown field.
func Parse(raw []byte) (*Manifest, error) {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}

	known := map[string]bool{
		"version": true, "commit_tree_hash": true, "timestamp_ns": true,
		"metrics": true, "cns_score": true, "credits_charged": true,
		"credits_debited": true, "difficulty_bits": true, "nonce": true,
		"pubkey": true, "signature": true, "ext": true,
	}
	for k := range generic {
		if !known[k] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, k)
		}
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("manifest: decode: %w", err)
	}
	if m.Version != SchemaVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrUnsupportedVersion, m.Version, SchemaVersion)
	}
	if err := schemas.ValidateManifest(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}
	return &m, nil
}

// EncodeTrailer produces the commit-message trailer line for m:
// "Pohw-Manifest: <base64(canonical-json(manifest))>".
func EncodeTrailer(m *Manifest) (string, error) {
	raw, err := CanonicalJSON(m)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %s", TrailerKey, base64.StdEncoding.EncodeToString(raw)), nil
}

// DecodeTrailerValue base64-decodes and parses a manifest from the value
// half of a "Pohw-Manifest: <value>" trailer line.
func DecodeTrailerValue(value string) (*Manifest, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("manifest: decode trailer base64: %w", err)
	}
	return Parse(raw)
}

// ErrTrailerNotFound is returned by ExtractTrailer when the commit
// message carries no Pohw-Manifest trailer line.
var ErrTrailerNotFound = errors.New("manifest: no Pohw-Manifest trailer found")

// ExtractTrailer scans commitMessage for a "Pohw-Manifest: <value>" line
// and returns its base64 value. Git trailers are conventionally the last
// contiguous block of "Key: value" lines, but this scans the whole
// message and returns the last match so a trailer appended by a hook
// after other tooling runs is still found.
func ExtractTrailer(commitMessage string) (string, error) {
	prefix := TrailerKey + ":"
	value := ""
	found := false
	for _, line := range strings.Split(commitMessage, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, prefix) {
			value = strings.TrimSpace(trimmed[len(prefix):])
			found = true
		}
	}
	if !found {
		return "", ErrTrailerNotFound
	}
	return value, nil
}
