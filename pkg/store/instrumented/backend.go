// Package instrumented decorates a directory.Backend with metrics and spans.
package instrumented

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/observability/metrics"
	"github.com/nimburion/userdirectory/pkg/observability/tracing"
)

// Operation label values.
const (
	OpConnect         = "connect"
	OpDisconnect      = "disconnect"
	OpInsertUser      = "insert_user"
	OpGetUserName     = "get_user_name"
	OpGetUserAge      = "get_user_age"
	OpUpdateUser      = "update_user"
	OpDeleteUser      = "delete_user"
	OpGetAllUserNames = "get_all_user_names"
	OpGetUserCount    = "get_user_count"
	OpExecuteQuery    = "execute_query"
)

// Backend forwards every call to the wrapped backend unchanged.
type Backend struct {
	next       directory.Backend
	name       string
	table      string
	collectors *metrics.BackendCollectors
	tracer     trace.Tracer
	ctx        context.Context
	now        func() time.Time
}

var _ directory.Backend = (*Backend)(nil)

// Option configures Wrap.
type Option func(*Backend)

// WithName sets the backend label, e.g. "postgres".
func WithName(name string) Option {
	return func(b *Backend) { b.name = name }
}

// WithTable adds the table or collection name to spans.
func WithTable(table string) Option {
	return func(b *Backend) { b.table = table }
}

// WithCollectors enables metrics.
func WithCollectors(c *metrics.BackendCollectors) Option {
	return func(b *Backend) { b.collectors = c }
}

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(b *Backend) { b.tracer = t }
}

// WithContext sets the parent context of every span.
func WithContext(ctx context.Context) Option {
	return func(b *Backend) { b.ctx = ctx }
}

// Wrap returns next decorated with the configured instrumentation.
func Wrap(next directory.Backend, opts ...Option) *Backend {
	b := &Backend{
		next: next,
		name: "unknown",
		ctx:  context.Background(),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.tracer == nil {
		b.tracer = otel.Tracer(tracing.InstrumentationName)
	}
	return b
}

// Unwrap returns the decorated backend.
func (b *Backend) Unwrap() directory.Backend {
	return b.next
}

// observe runs fn inside a span and records its outcome. A failure carries the
// backend's last error only when fn changed it; an unchanged message belongs to
// an earlier call.
func (b *Backend) observe(op string, spanOp tracing.SpanOperation, fn func() bool, opts ...tracing.DatabaseSpanOption) bool {
	opts = append(opts, tracing.WithDBSystem(b.name))
	if b.table != "" {
		opts = append(opts, tracing.WithDBTable(b.table))
	}
	_, span := tracing.StartDatabaseSpanWith(b.ctx, b.tracer, spanOp, opts...)
	defer span.End()

	before := b.next.GetLastError()
	start := b.now()
	ok := fn()
	if b.collectors != nil {
		b.collectors.ObserveOperation(b.name, op, ok, b.now().Sub(start))
	}

	if ok {
		tracing.RecordSuccess(span)
	} else if msg := b.next.GetLastError(); msg != "" && msg != before {
		tracing.RecordError(span, errors.New(msg))
	} else {
		tracing.RecordError(span, fmt.Errorf("%s failed", op))
	}
	return ok
}

func (b *Backend) setConnected() {
	if b.collectors != nil {
		b.collectors.SetConnected(b.name, b.next.IsConnected())
	}
}

func (b *Backend) Connect(descriptor string) bool {
	ok := b.observe(OpConnect, tracing.SpanOperationDBConnect, func() bool {
		return b.next.Connect(descriptor)
	})
	b.setConnected()
	return ok
}

func (b *Backend) Disconnect() {
	b.observe(OpDisconnect, tracing.SpanOperationDBDisconnect, func() bool {
		b.next.Disconnect()
		return true
	})
	b.setConnected()
}

func (b *Backend) IsConnected() bool {
	return b.next.IsConnected()
}

func (b *Backend) InsertUser(name string, age int) bool {
	return b.observe(OpInsertUser, tracing.SpanOperationDBInsert, func() bool {
		return b.next.InsertUser(name, age)
	})
}

func (b *Backend) GetUserName(userID int) string {
	var name string
	b.observe(OpGetUserName, tracing.SpanOperationDBQuery, func() bool {
		name = b.next.GetUserName(userID)
		return name != ""
	}, tracing.WithUserID(userID))
	return name
}

func (b *Backend) GetUserAge(userID int) int {
	var age int
	b.observe(OpGetUserAge, tracing.SpanOperationDBQuery, func() bool {
		age = b.next.GetUserAge(userID)
		return age != directory.AgeNotFound
	}, tracing.WithUserID(userID))
	return age
}

func (b *Backend) UpdateUser(userID int, name string, age int) bool {
	return b.observe(OpUpdateUser, tracing.SpanOperationDBUpdate, func() bool {
		return b.next.UpdateUser(userID, name, age)
	}, tracing.WithUserID(userID))
}

func (b *Backend) DeleteUser(userID int) bool {
	return b.observe(OpDeleteUser, tracing.SpanOperationDBDelete, func() bool {
		return b.next.DeleteUser(userID)
	}, tracing.WithUserID(userID))
}

func (b *Backend) GetAllUserNames() []string {
	var names []string
	b.observe(OpGetAllUserNames, tracing.SpanOperationDBQuery, func() bool {
		names = b.next.GetAllUserNames()
		return true
	})
	return names
}

// GetUserCount is recorded as a failure when the backend was disconnected,
// since the count alone cannot tell an empty store from an error.
func (b *Backend) GetUserCount() int {
	var count int
	b.observe(OpGetUserCount, tracing.SpanOperationDBCount, func() bool {
		count = b.next.GetUserCount()
		return count > 0 || b.next.IsConnected()
	})
	return count
}

func (b *Backend) ExecuteQuery(query string) ([]string, bool) {
	var rows []string
	ok := b.observe(OpExecuteQuery, tracing.SpanOperationDBQuery, func() bool {
		var ok bool
		rows, ok = b.next.ExecuteQuery(query)
		return ok
	}, tracing.WithDBStatement(query))
	return rows, ok
}

func (b *Backend) GetLastError() string {
	return b.next.GetLastError()
}

func (b *Backend) ClearError() {
	b.next.ClearError()
}
