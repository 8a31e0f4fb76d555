package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer scope used for backend spans.
const InstrumentationName = "github.com/nimburion/userdirectory/pkg/store"

// SpanOperation represents a traced operation type.
type SpanOperation string

// Span operation constants
const (
	SpanOperationDBConnect    SpanOperation = "db.connect"
	SpanOperationDBDisconnect SpanOperation = "db.disconnect"
	SpanOperationDBQuery      SpanOperation = "db.query"
	SpanOperationDBInsert     SpanOperation = "db.insert"
	SpanOperationDBUpdate     SpanOperation = "db.update"
	SpanOperationDBDelete     SpanOperation = "db.delete"
	SpanOperationDBCount      SpanOperation = "db.count"
)

// StartDatabaseSpan creates a client span for a database operation on the
// global tracer provider.
func StartDatabaseSpan(ctx context.Context, operation SpanOperation, opts ...DatabaseSpanOption) (context.Context, trace.Span) {
	return StartDatabaseSpanWith(ctx, otel.Tracer(InstrumentationName), operation, opts...)
}

// StartDatabaseSpanWith is StartDatabaseSpan on an explicit tracer.
func StartDatabaseSpanWith(ctx context.Context, tracer trace.Tracer, operation SpanOperation, opts ...DatabaseSpanOption) (context.Context, trace.Span) {
	spanOpts := &databaseSpanOptions{
		attributes: []attribute.KeyValue{
			attribute.String("db.operation", string(operation)),
		},
	}
	for _, opt := range opts {
		opt(spanOpts)
	}

	spanName := fmt.Sprintf("DB %s", operation)
	if spanOpts.table != "" {
		spanName = fmt.Sprintf("DB %s %s", operation, spanOpts.table)
	}

	ctx, span := tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(spanOpts.attributes...)
	return ctx, span
}

// DatabaseSpanOption configures a database span.
type DatabaseSpanOption func(*databaseSpanOptions)

type databaseSpanOptions struct {
	table      string
	attributes []attribute.KeyValue
}

// WithDBTable sets the table or collection name.
func WithDBTable(table string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.table = table
		opts.attributes = append(opts.attributes, attribute.String("db.table", table))
	}
}

// WithDBSystem sets the database system (e.g., "postgres", "redis").
func WithDBSystem(system string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.system", system))
	}
}

// WithDBStatement sets the native query.
func WithDBStatement(statement string) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.String("db.statement", statement))
	}
}

// WithUserID sets the user id the operation targets.
func WithUserID(userID int) DatabaseSpanOption {
	return func(opts *databaseSpanOptions) {
		opts.attributes = append(opts.attributes, attribute.Int("userdir.user_id", userID))
	}
}

// RecordError records err on span and marks it failed.
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// RecordSuccess sets the span status to OK.
func RecordSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
