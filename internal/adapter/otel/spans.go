package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "komodo-core"

// StartPollSpan starts a span for one server's status poll.
func StartPollSpan(ctx context.Context, serverID, serverName string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "poll",
		trace.WithAttributes(
			attribute.String("server.id", serverID),
			attribute.String("server.name", serverName),
		),
	)
}

// StartExecuteSpan starts a span for one execution-handler operation
// against a Periphery agent.
func StartExecuteSpan(ctx context.Context, operation, targetKind, targetID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "execute",
		trace.WithAttributes(
			attribute.String("execute.operation", operation),
			attribute.String("target.kind", targetKind),
			attribute.String("target.id", targetID),
		),
	)
}

// StartSyncSpan starts a span for a resource sync refresh or apply.
func StartSyncSpan(ctx context.Context, syncID, mode string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "sync",
		trace.WithAttributes(
			attribute.String("sync.id", syncID),
			attribute.String("sync.mode", mode),
		),
	)
}
