package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/actionlog"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/call"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/notify"
	phonelogPrometheus "git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/prometheus"
	"go.uber.org/zap"
)

const outcomeFailed = "failed"

// ErrNoCallRecord is returned by Replay when the call has not been started
// yet, so the event is kept until its Start has been replayed.
var ErrNoCallRecord = errors.New("no call record for replayed event")

// ActionLog stores the raw request URL of a callback.
type ActionLog interface {
	Create(ctx context.Context, rawURL string) (*actionlog.Entry, error)
}

// DeadLetter keeps events whose processing failed on the store.
type DeadLetter interface {
	MarkEvent(ctx context.Context, callID string, params event.Params, receivedAt time.Time, errMsg string) error
}

// Notifier receives every persisted state change.
type Notifier interface {
	Notify(ctx context.Context, change notify.StateChange)
}

// Pipeline turns raw callback parameters into call record updates.
type Pipeline struct {
	Processor  *call.Processor
	ActionLog  ActionLog
	DeadLetter DeadLetter
	Notifier   Notifier
	now        func() time.Time
}

type Option func(*Pipeline)

func WithActionLog(actionLog ActionLog) Option {
	return func(p *Pipeline) {
		p.ActionLog = actionLog
	}
}

func WithDeadLetter(deadLetter DeadLetter) Option {
	return func(p *Pipeline) {
		p.DeadLetter = deadLetter
	}
}

func WithNotifier(notifier Notifier) Option {
	return func(p *Pipeline) {
		p.Notifier = notifier
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

func NewPipeline(processor *call.Processor, opts ...Option) *Pipeline {
	pipeline := &Pipeline{
		Processor: processor,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(pipeline)
	}

	return pipeline
}

// Handle logs rawURL when it is set, then processes params. The returned
// error is a store failure; dropped events are not errors.
func (p *Pipeline) Handle(ctx context.Context, params event.Params, rawURL string) (call.Result, error) {
	receivedAt := p.now()

	if rawURL != "" && p.ActionLog != nil {
		_, err := p.ActionLog.Create(ctx, rawURL)
		if err != nil {
			logging.Logger.Warn("[Handle] Failed to store action log entry",
				zap.String("url", rawURL),
				zap.String("error", err.Error()),
			)
		}
	}

	result, evt, err := p.process(ctx, params, receivedAt)
	if err != nil && p.DeadLetter != nil && evt.CallID != "" {
		markErr := p.DeadLetter.MarkEvent(ctx, evt.CallID, params, receivedAt, err.Error())
		if markErr != nil {
			logging.Logger.Error("[Handle] Failed to dead-letter event",
				zap.String("call_id", evt.CallID),
				zap.String("error", markErr.Error()),
			)
		}
	}

	return result, err
}

// Replay processes params again with their original receipt time. Replayed
// events are neither logged nor dead-lettered a second time.
func (p *Pipeline) Replay(ctx context.Context, params event.Params, receivedAt time.Time) error {
	result, evt, err := p.process(ctx, params, receivedAt)
	if err != nil {
		return err
	}

	if result.Outcome == call.OutcomeOrphan {
		return fmt.Errorf("%w: %s", ErrNoCallRecord, evt.CallID)
	}

	return nil
}

func (p *Pipeline) process(ctx context.Context, params event.Params, receivedAt time.Time) (call.Result, event.Event, error) {
	evt, err := event.Normalize(params, receivedAt)
	if errors.Is(err, event.ErrUnknownDialect) {
		phonelogPrometheus.EventsTotal.WithLabelValues(string(event.DialectUnknown), event.KindUnknown.String(),
			string(call.OutcomeIgnored)).Inc()
		logging.Logger.Warn("Unknown phone dialect, dropping event",
			zap.Any("params", params),
		)

		return call.Result{Outcome: call.OutcomeIgnored}, evt, nil
	}

	if err != nil {
		return call.Result{}, evt, err
	}

	if evt.Kind == event.KindUnknown {
		logging.Logger.Debug("Unknown event kind, dropping",
			zap.String("event", evt.Name),
			zap.String("call_id", evt.CallID),
		)
	}

	start := time.Now()

	result, err := p.Processor.Process(ctx, evt)

	phonelogPrometheus.EventProcessingDuration.WithLabelValues(evt.Kind.String()).Observe(time.Since(start).Seconds())

	if err != nil {
		phonelogPrometheus.EventsTotal.WithLabelValues(string(evt.Dialect), evt.Kind.String(), outcomeFailed).Inc()
		logging.Logger.Error("[Handle] Failed to process event",
			zap.String("call_id", evt.CallID),
			zap.String("event", evt.Name),
			zap.String("error", err.Error()),
			zap.Bool("is_context_error", ctx.Err() != nil),
		)

		return result, evt, err
	}

	phonelogPrometheus.EventsTotal.WithLabelValues(string(evt.Dialect), evt.Kind.String(), string(result.Outcome)).Inc()

	if result.Changed() && p.Notifier != nil {
		change, err := notify.NewStateChange(evt, result)
		if err == nil {
			p.Notifier.Notify(ctx, change)
		}
	}

	return result, evt, nil
}
