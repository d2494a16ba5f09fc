package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KirkDiggler/rpg-skill-engine/internal/errors"
	"github.com/KirkDiggler/rpg-skill-engine/internal/pkg/clock"
)

// InstrumentationName names the engine's tracer
const InstrumentationName = "github.com/KirkDiggler/rpg-skill-engine"

// Observer times operations, traces them and reports them to a sink
type Observer struct {
	tracer trace.Tracer
	sink   Sink
	clock  clock.Clock
}

// ObserverConfig configures an Observer. Every field is optional.
type ObserverConfig struct {
	Tracer trace.Tracer
	Sink   Sink
	Clock  clock.Clock
}

// NewObserver creates an observer. The tracer defaults to the global provider.
func NewObserver(cfg ObserverConfig) *Observer {
	o := &Observer{tracer: cfg.Tracer, sink: cfg.Sink, clock: cfg.Clock}
	if o.tracer == nil {
		o.tracer = otel.Tracer(InstrumentationName)
	}
	if o.sink == nil {
		o.sink = Discard
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	return o
}

// Operation is one observed call
type Operation struct {
	observer *Observer
	span     trace.Span
	result   OperationResult
}

// Start begins an operation span
func (o *Observer) Start(ctx context.Context, operation, sessionID string) (context.Context, *Operation) {
	ctx, span := o.tracer.Start(ctx, "skills."+operation, trace.WithAttributes(
		attribute.String("skills.session_id", sessionID),
	))
	return ctx, &Operation{
		observer: o,
		span:     span,
		result: OperationResult{
			Operation: operation,
			SessionID: sessionID,
			At:        o.clock.Now(),
		},
	}
}

// SetActor tags the operation with an actor and skill
func (op *Operation) SetActor(actorID, skillID string) {
	op.result.ActorID = actorID
	op.result.SkillID = skillID
	op.span.SetAttributes(
		attribute.String("skills.actor_id", actorID),
		attribute.String("skills.skill_id", skillID),
	)
}

// SetRound tags the operation with the session round
func (op *Operation) SetRound(round int) {
	op.result.Round = round
	op.span.SetAttributes(attribute.Int("skills.round", round))
}

// End finishes the span and reports the result. err may be nil.
func (op *Operation) End(ctx context.Context, err error) {
	op.result.Duration = op.observer.clock.Now().Sub(op.result.At)
	op.result.Success = err == nil
	if err != nil {
		op.result.ErrorCode = errors.GetCode(err).String()
		op.result.Reason = errors.GetReason(err).String()
		op.result.Message = errors.GetMessage(err)
		op.span.RecordError(err)
		op.span.SetStatus(codes.Error, op.result.ErrorCode)
		op.span.SetAttributes(attribute.String("skills.reason", op.result.Reason))
	} else {
		op.span.SetStatus(codes.Ok, "")
	}
	op.span.End()
	op.observer.sink.Record(ctx, op.result)
}
