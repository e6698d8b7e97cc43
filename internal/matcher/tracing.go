package matcher

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/issuematch-mcp/pkg/types"
)

// TracerName is the instrumentation scope of pipeline spans
const TracerName = "github.com/dshills/issuematch-mcp/internal/matcher"

// startMatchSpan starts the root span of a Match call
func startMatchSpan(ctx context.Context, issue types.IssueQuery, fileCount int) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "matcher.match",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("issuematch.issue.title", issue.Title),
			attribute.String("issuematch.issue.repo", repoName(issue)),
			attribute.Int("issuematch.files.requested", fileCount),
		),
	)
}

// startStageSpan starts a child span for one pipeline stage
func startStageSpan(ctx context.Context, stage Stage, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(TracerName)
	return tracer.Start(ctx, "matcher."+string(stage),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(append(attrs, attribute.String("issuematch.stage", string(stage)))...),
	)
}

// endSpan records err on span, if any, and ends it
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
