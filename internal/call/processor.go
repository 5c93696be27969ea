package call

import (
	"context"
	"errors"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/keylock"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	phonelogPrometheus "git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/prometheus"
	"github.com/avast/retry-go"
	"go.uber.org/zap"
)

const (
	conflictRetryDelay    = 5 * time.Millisecond
	conflictRetryMaxDelay = 100 * time.Millisecond
)

type Outcome string

const (
	// OutcomeCreated means a Start event created the record.
	OutcomeCreated Outcome = "created"
	// OutcomeUpdated means the record was changed and written.
	OutcomeUpdated Outcome = "updated"
	// OutcomeDuplicate means a Start event found the record already present.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeOrphan means a non-Start event had no record to apply to.
	OutcomeOrphan Outcome = "orphan"
	// OutcomeIgnored means nothing was written.
	OutcomeIgnored Outcome = "ignored"
)

type Result struct {
	Outcome        Outcome
	Record         *Record
	PreviousStatus string
}

// Changed reports whether the event was persisted.
func (r Result) Changed() bool {
	return r.Outcome == OutcomeCreated || r.Outcome == OutcomeUpdated
}

type handlerFunc func(ctx context.Context, evt event.Event) (Result, error)

// Processor folds normalized events into call records. Events of one call are
// applied one at a time.
type Processor struct {
	store       Store
	locker      keylock.Locker
	now         func() time.Time
	maxAttempts uint
	handlers    map[event.Kind]handlerFunc
}

type Option func(*Processor)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func WithLocker(locker keylock.Locker) Option {
	return func(p *Processor) {
		p.locker = locker
	}
}

// WithMaxAttempts bounds how often an update is retried after a version
// conflict.
func WithMaxAttempts(attempts uint) Option {
	return func(p *Processor) {
		p.maxAttempts = attempts
	}
}

func NewProcessor(store Store, opts ...Option) *Processor {
	processor := &Processor{
		store:       store,
		locker:      keylock.NewKeyedMutex(),
		now:         time.Now,
		maxAttempts: config.Conf.ProcessorMaxAttempts,
	}

	for _, opt := range opts {
		opt(processor)
	}

	if processor.maxAttempts == 0 {
		processor.maxAttempts = 1
	}

	processor.handlers = map[event.Kind]handlerFunc{
		event.KindUnknown:     processor.ignore,
		event.KindStart:       processor.start,
		event.KindEstablished: processor.transition(establish),
		event.KindHold:        processor.transition(hold),
		event.KindResume:      processor.transition(resume),
		event.KindTransfer:    processor.transition(transfer),
		event.KindEnd:         processor.transition(end),
	}

	return processor
}

// Process applies evt to its call record. Only store and lock failures are
// returned as errors; events that do not apply are reported via the Outcome.
func (p *Processor) Process(ctx context.Context, evt event.Event) (Result, error) {
	handler, ok := p.handlers[evt.Kind]
	if !ok || evt.Kind == event.KindUnknown {
		return Result{Outcome: OutcomeIgnored}, nil
	}

	waitStart := time.Now()

	unlock, err := p.locker.Lock(ctx, evt.CallID)
	if err != nil {
		logging.Logger.Error("[Process] Failed to acquire call lock",
			zap.String("call_id", evt.CallID),
			zap.String("error", err.Error()),
			zap.Bool("is_context_error", ctx.Err() != nil),
		)

		return Result{}, err
	}
	defer unlock()

	phonelogPrometheus.LockWaitDuration.Observe(time.Since(waitStart).Seconds())

	result, err := handler(ctx, evt)
	if err != nil {
		return Result{}, err
	}

	switch result.Outcome {
	case OutcomeOrphan:
		logging.Logger.Debug("[Process] No call record for event, dropping",
			zap.String("call_id", evt.CallID),
			zap.String("event", evt.Name),
		)
	case OutcomeDuplicate:
		logging.Logger.Debug("[Process] Call already started",
			zap.String("call_id", evt.CallID),
		)
	default:
	}

	return result, nil
}

// eventTime is when evt was received, so replayed events keep their original
// timing. Events without a receipt time use the processor clock.
func (p *Processor) eventTime(evt event.Event) time.Time {
	if evt.ReceivedAt.IsZero() {
		return p.now()
	}

	return evt.ReceivedAt
}

func (p *Processor) ignore(context.Context, event.Event) (Result, error) {
	return Result{Outcome: OutcomeIgnored}, nil
}

func (p *Processor) start(ctx context.Context, evt event.Event) (Result, error) {
	existing, err := p.store.FindByCallID(ctx, evt.CallID)
	if err == nil {
		return Result{Outcome: OutcomeDuplicate, Record: existing, PreviousStatus: existing.Status}, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return Result{}, err
	}

	record := newRecord(evt, p.eventTime(evt))

	err = p.store.Create(ctx, record)
	if errors.Is(err, ErrAlreadyExists) {
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	if err != nil {
		return Result{}, err
	}

	logging.Logger.Info("call started",
		zap.String("call_id", record.CallID),
		zap.String("direction", record.Direction),
		zap.String("phone_mac", record.PhoneMAC),
	)

	return Result{Outcome: OutcomeCreated, Record: record}, nil
}

// transition wraps a record mutation in a read-modify-write that is retried
// when another writer won the version race.
func (p *Processor) transition(apply transitionFunc) handlerFunc {
	return func(ctx context.Context, evt event.Event) (Result, error) {
		var result Result

		err := retry.Do(
			func() error {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				record, err := p.store.FindByCallID(ctx, evt.CallID)
				if errors.Is(err, ErrNotFound) {
					result = Result{Outcome: OutcomeOrphan}
					return nil
				}

				if err != nil {
					return err
				}

				previous := record.Status

				if !apply(record, evt, p.eventTime(evt)) {
					result = Result{Outcome: OutcomeIgnored, Record: record, PreviousStatus: previous}
					return nil
				}

				err = p.store.Update(ctx, record)
				if err != nil {
					return err
				}

				result = Result{Outcome: OutcomeUpdated, Record: record, PreviousStatus: previous}

				return nil
			},
			retry.Attempts(p.maxAttempts),
			retry.DelayType(retry.BackOffDelay),
			retry.Delay(conflictRetryDelay),
			retry.MaxDelay(conflictRetryMaxDelay),
			retry.RetryIf(func(err error) bool {
				return errors.Is(err, ErrVersionConflict)
			}),
			retry.OnRetry(func(attempt uint, err error) {
				logging.Logger.Debug("[Process] Retrying after version conflict",
					zap.String("call_id", evt.CallID),
					zap.Uint("attempt", attempt),
				)
			}),
			retry.LastErrorOnly(true),
		)

		return result, err
	}
}
