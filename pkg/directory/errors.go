package directory

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotConnected classifies data operations attempted on a disconnected backend.
	ErrNotConnected = errors.New("backend not connected")
	// ErrUserNotFound classifies lookups and mutations of unknown user ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidUser classifies records a backend refuses to store.
	ErrInvalidUser = errors.New("invalid user")
	// ErrInvalidDescriptor classifies connection descriptors a backend cannot use.
	ErrInvalidDescriptor = errors.New("invalid connection descriptor")
	// ErrUnsupportedQuery classifies queries a backend cannot execute.
	ErrUnsupportedQuery = errors.New("unsupported query")
)

// ValidateUser checks the invariants every backend enforces before storing a record.
// An empty name would be indistinguishable from the not-found sentinel.
func ValidateUser(name string, age int) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if age < 0 {
		return fmt.Errorf("%w: age must not be negative (got %d)", ErrInvalidUser, age)
	}
	return nil
}

// ErrorState holds the last failure recorded by a backend.
// The zero value is ready to use and safe for concurrent use.
type ErrorState struct {
	mu  sync.RWMutex
	err error
}

// Record stores err as the last failure. A nil err is ignored.
func (s *ErrorState) Record(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Err returns the last recorded failure.
func (s *ErrorState) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Message returns the last failure message, or "".
func (s *ErrorState) Message() string {
	if err := s.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// Clear resets the recorded failure.
func (s *ErrorState) Clear() {
	s.mu.Lock()
	s.err = nil
	s.mu.Unlock()
}
