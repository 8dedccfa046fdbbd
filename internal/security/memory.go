//go:build unix
// +build unix

package security

import (
	"crypto/rand"
	"crypto/subtle"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// SecureBytes wraps a byte slice that mlocks itself against swapping
// and wipes itself on Destroy or garbage collection, for holding a
// signing key or seed for longer than a single function call.
type SecureBytes struct {
	data   []byte
	locked bool
	mu     sync.Mutex
}

// NewSecureBytes allocates size bytes and tries to mlock them.
// A failed mlock (no CAP_IPC_LOCK, or an OS that doesn't support it)
// is not fatal: the data is still wiped on Destroy, it just isn't
// swap-protected in the meantime.
func NewSecureBytes(size int) (*SecureBytes, error) {
	sb := &SecureBytes{
		data: make([]byte, size),
	}

	sb.lock()

	runtime.SetFinalizer(sb, func(s *SecureBytes) {
		s.Destroy()
	})

	return sb, nil
}

// FromBytes copies data into a new SecureBytes and wipes the original
// slice, for converting a key that arrived as a plain []byte.
func FromBytes(data []byte) (*SecureBytes, error) {
	sb, err := NewSecureBytes(len(data))
	if err != nil {
		return nil, err
	}

	copy(sb.data, data)
	Wipe(data)

	return sb, nil
}

// Bytes returns the underlying slice. Callers should use it
// immediately rather than storing the reference past Destroy.
func (s *SecureBytes) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Copy returns an independent copy of the data; the caller owns
// wiping it when done.
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

// Len returns the number of bytes held.
func (s *SecureBytes) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Destroy wipes the data and releases any memory lock.
func (s *SecureBytes) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		return
	}

	wipeBytes(s.data)

	if s.locked {
		s.unlock()
	}

	s.data = nil
}

// lock mlocks the underlying buffer.
func (s *SecureBytes) lock() error {
	if len(s.data) == 0 {
		return nil
	}

	ptr := unsafe.Pointer(&s.data[0])
	size := uintptr(len(s.data))

	err := unix.Mlock((*[1 << 30]byte)(ptr)[:size:size])
	if err != nil {
		return err
	}

	s.locked = true
	return nil
}

// unlock munlocks the underlying buffer.
func (s *SecureBytes) unlock() {
	if len(s.data) == 0 {
		return
	}

	ptr := unsafe.Pointer(&s.data[0])
	size := uintptr(len(s.data))

	unix.Munlock((*[1 << 30]byte)(ptr)[:size:size])
	s.locked = false
}

// Wipe zeros data in place, used on every private key and passphrase
// buffer once this package is done with it.
func Wipe(data []byte) {
	wipeBytes(data)
}

// wipeBytes does the actual zeroing behind Wipe.
func wipeBytes(data []byte) {
	if len(data) == 0 {
		return
	}

	for i := range data {
		data[i] = 0
	}

	runtime.KeepAlive(data)
}

// WipeString zeros a string's backing bytes through an unsafe cast.
// Only effective on a string built from mutable bytes (string(buf));
// a literal or interned string lives in read-only memory and can't be
// wiped this way.
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

// ConstantTimeCompare reports whether a and b are equal without a
// timing side channel.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// ConstantTimeEqual is ConstantTimeCompare specialized for fixed-size
// 32-byte digests.
func ConstantTimeEqual[T comparable](a, b [32]byte) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// SecureRandom fills data from crypto/rand. Prefer
// GenerateSecureRandom in crypto.go, which also rejects a short read.
// Nothing in the module calls SecureRandom.
func SecureRandom(data []byte) error {
	_, err := rand.Read(data)
	return err
}

// GuardedExec runs fn with key, wiping key afterward regardless of
// whether fn returned an error.
func GuardedExec(key []byte, fn func([]byte) error) error {
	defer Wipe(key)
	return fn(key)
}

// GuardedSecure runs fn with sb, destroying sb afterward regardless of
// whether fn returned an error.
func GuardedSecure(sb *SecureBytes, fn func(*SecureBytes) error) error {
	defer sb.Destroy()
	return fn(sb)
}
