package orchestrator

import (
	"context"

	"promochat/pkg/chat/state"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "promochat/orchestrator"

// beginSpan opens the span covering one request/response cycle. Any span
// still open is ended as abandoned.
func (o *Orchestrator) beginSpan(name string) {
	o.endSpan(nil, "abandoned")
	_, o.span = otel.Tracer(tracerName).Start(context.Background(), name,
		trace.WithAttributes(
			attribute.String("chat.session_id", o.sessionID),
			attribute.String("chat.user_id", o.opts.UserID),
			attribute.Int("chat.turn", o.turn),
		),
	)
}

func (o *Orchestrator) spanStage(stage state.Stage) {
	if o.span == nil {
		return
	}
	o.span.AddEvent("stage", trace.WithAttributes(attribute.String("chat.stage", string(stage))))
}

func (o *Orchestrator) endSpan(err error, outcome string) {
	if o.span == nil {
		return
	}
	o.span.SetAttributes(
		attribute.String("chat.outcome", outcome),
		attribute.String("chat.session_id", o.sessionID),
	)
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	} else {
		o.span.SetStatus(codes.Ok, outcome)
	}
	o.span.End()
	o.span = nil
}
