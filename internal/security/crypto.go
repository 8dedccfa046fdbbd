package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Errors surfaced by the key-generation and key-derivation helpers
// below, used to distinguish a caller bug from a starved entropy
// source.
var (
	ErrInsufficientEntropy = errors.New("security: insufficient entropy")
	ErrWeakKey             = errors.New("security: key is too weak")
	ErrInvalidKeySize      = errors.New("security: invalid key size")
)

// MinKeySize is the smallest key GenerateKey/DeriveKey/
// ValidateKeyStrength will accept.
const MinKeySize = 16 // 128 bits

// RecommendedKeySize matches an Ed25519 seed and AES-256 key size.
const RecommendedKeySize = 32 // 256 bits

// GenerateSecureRandom fills data with output from crypto/rand,
// treating a short read as a hard failure rather than silently
// returning partially-random bytes.
func GenerateSecureRandom(data []byte) error {
	n, err := rand.Read(data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInsufficientEntropy, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: only got %d of %d bytes", ErrInsufficientEntropy, n, len(data))
	}
	return nil
}

// GenerateKey returns size bytes of cryptographically secure random
// data, rejecting anything below MinKeySize.
func GenerateKey(size int) ([]byte, error) {
	if size < MinKeySize {
		return nil, fmt.Errorf("%w: minimum %d bytes required", ErrInvalidKeySize, MinKeySize)
	}

	key := make([]byte, size)
	if err := GenerateSecureRandom(key); err != nil {
		return nil, err
	}

	return key, nil
}

// DeriveKey runs HKDF-SHA256 over masterKey to produce keySize bytes,
// used wherever pohwd needs several independent keys from one root
// secret instead of storing each separately.
func DeriveKey(masterKey, salt, info []byte, keySize int) ([]byte, error) {
	if len(masterKey) < MinKeySize {
		return nil, fmt.Errorf("%w: master key is %d bytes, minimum %d required",
			ErrWeakKey, len(masterKey), MinKeySize)
	}

	if keySize < MinKeySize {
		return nil, fmt.Errorf("%w: minimum %d bytes required", ErrInvalidKeySize, MinKeySize)
	}

	reader := hkdf.New(sha256.New, masterKey, salt, info)

	derivedKey := make([]byte, keySize)
	if _, err := io.ReadFull(reader, derivedKey); err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	return derivedKey, nil
}

// DeriveKeyWithLabel is DeriveKey with the label folded into HKDF's
// info parameter, so two callers deriving from the same master key
// with different labels never collide.
func DeriveKeyWithLabel(masterKey []byte, label string, keySize int) ([]byte, error) {
	info := []byte("pohwd:" + label)
	return DeriveKey(masterKey, nil, info, keySize)
}

// SecureCompare compares a and b in constant time, for comparing
// signatures or MACs where a timing side channel would leak
// information about the correct value.
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// SecureCompareHash is SecureCompare specialized for fixed-size
// 32-byte digests (tree hashes, checkpoint hashes).
func SecureCompareHash(a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// ValidateKeyStrength rejects a key that's too short, all zero, or a
// single repeated byte — cheap sanity checks that catch an
// uninitialized buffer being used as a key by mistake.
func ValidateKeyStrength(key []byte) error {
	if len(key) < MinKeySize {
		return fmt.Errorf("%w: key is %d bytes, minimum %d required",
			ErrWeakKey, len(key), MinKeySize)
	}

	var allZero = true
	for _, b := range key {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return fmt.Errorf("%w: key is all zeros", ErrWeakKey)
	}

	if len(key) >= 4 {
		pattern := key[0]
		allSame := true
		for _, b := range key {
			if b != pattern {
				allSame = false
				break
			}
		}
		if allSame {
			return fmt.Errorf("%w: key has repeating pattern", ErrWeakKey)
		}
	}

	return nil
}

// HashDomainSeparated hashes domain's length-prefixed name ahead of
// data, so the same bytes hashed under two different domains (for
// example, DeriveNodeID's "node-id" domain) never collide.
func HashDomainSeparated(domain string, data ...[]byte) [32]byte {
	h := sha256.New()

	prefix := []byte(domain)
	h.Write([]byte{byte(len(prefix))})
	h.Write(prefix)

	for _, d := range data {
		h.Write(d)
	}

	var result [32]byte
	copy(result[:], h.Sum(nil))
	return result
}

// ConstantTimeSelect returns a if choice is 1, b if choice is 0,
// without branching on choice, for code paths where which branch ran
// must not be observable.
func ConstantTimeSelect(choice int, a, b []byte) []byte {
	if len(a) != len(b) {
		return nil
	}

	result := make([]byte, len(a))
	subtle.ConstantTimeCopy(choice, result, a)
	subtle.ConstantTimeCopy(1-choice, result, b)
	return result
}

// ZeroizeOnPanic wipes data if the deferred call's enclosing function
// panics, then re-panics:
//
//	defer ZeroizeOnPanic(key)()
func ZeroizeOnPanic(data []byte) func() {
	return func() {
		if r := recover(); r != nil {
			Wipe(data)
			panic(r)
		}
	}
}

// SecureString holds a sensitive string as a mutable byte slice so it
// can be wiped, unlike Go's immutable string type.
type SecureString struct {
	data []byte
}

// NewSecureString copies s into a wipeable SecureString. The original
// s remains in memory until garbage collected — Go strings can't be
// wiped in place.
func NewSecureString(s string) *SecureString {
	ss := &SecureString{
		data: make([]byte, len(s)),
	}
	copy(ss.data, s)
	return ss
}

// String returns the current value as a Go string.
func (ss *SecureString) String() string {
	return string(ss.data)
}

// Bytes returns the underlying mutable byte slice.
func (ss *SecureString) Bytes() []byte {
	return ss.data
}

// Destroy wipes the underlying bytes and releases them.
func (ss *SecureString) Destroy() {
	Wipe(ss.data)
	ss.data = nil
}

// Len returns the string's length in bytes.
func (ss *SecureString) Len() int {
	return len(ss.data)
}
