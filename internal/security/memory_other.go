//go:build !unix
// +build !unix

package security

// Fallback implementations for non-Unix systems

import (
	"crypto/rand"
	"crypto/subtle"
	"runtime"
	"sync"
	"unsafe"
)

// SecureBytes is a byte slice that gets zeroed when freed.
// Use this for sensitive data like keys, passwords, and seeds.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// NewSecureBytes creates a new SecureBytes with the given capacity.
func NewSecureBytes(size int) (*SecureBytes, error) {
	sb := &SecureBytes{
		data: make([]byte, size),
	}

	// Register finalizer to ensure cleanup
	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})

	return sb, nil
}

// FromBytes creates SecureBytes from existing data.
// The original data is zeroed after copying.
func FromBytes(data []byte) (*SecureBytes, error) {
	sb, err := NewSecureBytes(len(data))
	if err != nil {
		return nil, err
	}

	copy(sb.data, data)
	Wipe(data)

	return sb, nil
}

// Bytes returns the underlying byte slice.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Copy creates a copy of the data.
func (s *SecureBytes) Copy() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return nil
	}

	result := make([]byte, len(s.data))
	copy(result, s.data)
	return result
}

// Len returns the length of the secure bytes.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Destroy securely wipes the memory.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	wipeBytes(s.data)
	s.data = nil
}

// lock is a no-op on non-Unix systems
func (s *SecureBytes) lock() error {
	return nil
}

// unlock is a no-op on non-Unix systems
func (s *SecureBytes) unlock() {
}

// Wipe overwrites a byte slice with zeros.
func Wipe(data []byte) {
	wipeBytes(data)
}

func wipeBytes(data []byte) {
	if len(data) == 0 {
		return
	}
	for i := range data {
		data[i] = 0
	}
	runtime.KeepAlive(data)
}

// WipeString overwrites a string's underlying bytes with zeros.
// Warning: this only works for strings backed by mutable memory, never
// for string literals.
func WipeString(s *string) {
	if s == nil || len(*s) == 0 {
		return
	}
	header := (*[2]uintptr)(unsafe.Pointer(s))
	if header[0] == 0 || header[1] == 0 {
		return
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(header[0])), header[1])
	wipeBytes(data)
}

// ConstantTimeCompare compares two byte slices in constant time.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ConstantTimeEqual compares two fixed-size arrays in constant time.
func ConstantTimeEqual[T comparable](a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// GuardedExec executes fn with automatic key cleanup.
func GuardedExec(key []byte, fn func([]byte) error) error {
	defer Wipe(key)
	return fn(key)
}

// GuardedSecure executes fn with SecureBytes cleanup.
func GuardedSecure(sb *SecureBytes, fn func(*SecureBytes) error) error {
	defer sb.Destroy()
	return fn(sb)
}

// SecureRandom fills data with cryptographically secure random bytes.
func SecureRandom(data []byte) error {
	_, err := rand.Read(data)
	return err
}
