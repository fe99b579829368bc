package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrEmpty is returned when sealing an empty value.
var ErrEmpty = errors.New("secure: cannot seal an empty value")

// ErrDestroyed is returned by Reveal after Destroy.
var ErrDestroyed = errors.New("secure: value destroyed")

// Sealed is an encrypted in-memory string.
type Sealed struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
}

// Seal encrypts value into a new enclave.
func Seal(value string) (*Sealed, error) {
	if value == "" {
		return nil, ErrEmpty
	}
	// memguard wipes the slice it is given; the string itself is untouched.
	enclave := memguard.NewEnclave([]byte(value))
	if enclave == nil {
		return nil, ErrEmpty
	}
	return &Sealed{enclave: enclave}, nil
}

// Reveal decrypts the value. The plaintext is copied out of the locked
// buffer, which is wiped before Reveal returns.
func (s *Sealed) Reveal() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.enclave == nil {
		return "", ErrDestroyed
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	return string(locked.Bytes()), nil
}

// Destroy drops the enclave. It is idempotent.
func (s *Sealed) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enclave = nil
}
