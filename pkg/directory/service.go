package directory

import (
	"fmt"

	"github.com/nimburion/userdirectory/pkg/observability/logger"
)

// Service gates data operations behind an initialization latch and a live
// connectivity check, then delegates to a Backend.
//
// Failures surface as sentinel values (false, "", CountUnavailable), never as
// panics. Service holds no lock: concurrent callers must serialize access.
type Service struct {
	backend     Backend
	initialized bool
	logger      logger.Logger
	onReject    func(operation, reason string)
}

// Gating rejection reasons passed to the WithRejectionHook callback.
const (
	RejectNotInitialized = "not_initialized"
	RejectDisconnected   = "disconnected"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for gating and latch diagnostics.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithRejectionHook registers fn to be called whenever the gate refuses an operation.
func WithRejectionHook(fn func(operation, reason string)) Option {
	return func(s *Service) {
		s.onReject = fn
	}
}

// NewService creates a Service over backend. The backend is owned by the
// caller and may be nil, in which case every operation fails.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		logger:  logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize connects the backend with descriptor. On success the service is
// latched as initialized; the latch is never reset.
func (s *Service) Initialize(descriptor string) bool {
	if s.backend == nil {
		s.logger.Warn("initialize skipped: no backend configured")
		return false
	}

	if !s.backend.Connect(descriptor) {
		s.logger.Warn("backend connect failed", "error", s.backend.GetLastError())
		return false
	}

	s.initialized = true
	s.logger.Info("user directory initialized")
	return true
}

// Initialized reports whether a previous Initialize succeeded.
func (s *Service) Initialized() bool {
	return s.initialized
}

// CreateRecord stores a new user. Name and age are passed through unvalidated.
func (s *Service) CreateRecord(name string, age int) bool {
	if !s.ready("create") {
		return false
	}
	return s.backend.InsertUser(name, age)
}

// FetchSummary returns "Name: <name>, Age: <age>" for userID, or "" when the
// service is not ready or the user does not exist.
//
// Name and age are read with two separate backend calls; a concurrent
// mutation between them can yield a mixed summary.
func (s *Service) FetchSummary(userID int) string {
	if !s.ready("fetch") {
		return ""
	}

	name := s.backend.GetUserName(userID)
	age := s.backend.GetUserAge(userID)
	if name == "" {
		return ""
	}
	return formatSummary(name, age)
}

// UpdateRecord replaces the name and age of userID.
func (s *Service) UpdateRecord(userID int, name string, age int) bool {
	if !s.ready("update") {
		return false
	}
	return s.backend.UpdateUser(userID, name, age)
}

// RemoveRecord deletes userID.
func (s *Service) RemoveRecord(userID int) bool {
	if !s.ready("remove") {
		return false
	}
	return s.backend.DeleteUser(userID)
}

// CountRecords returns the backend count verbatim, or CountUnavailable when
// the service is not ready.
func (s *Service) CountRecords() int {
	if !s.ready("count") {
		return CountUnavailable
	}
	return s.backend.GetUserCount()
}

// ListNames returns every stored name. The boolean is false when the service
// is not ready.
func (s *Service) ListNames() ([]string, bool) {
	if !s.ready("list") {
		return nil, false
	}
	return s.backend.GetAllUserNames(), true
}

// ready is the gating check. The latch is tested first so an uninitialized
// service never touches the backend.
func (s *Service) ready(op string) bool {
	if !s.initialized {
		s.reject(op, RejectNotInitialized)
		return false
	}
	if !s.backend.IsConnected() {
		s.reject(op, RejectDisconnected)
		return false
	}
	return true
}

func (s *Service) reject(op, reason string) {
	s.logger.Debug("operation rejected", "operation", op, "reason", reason)
	if s.onReject != nil {
		s.onReject(op, reason)
	}
}

func formatSummary(name string, age int) string {
	return fmt.Sprintf("Name: %s, Age: %d", name, age)
}
