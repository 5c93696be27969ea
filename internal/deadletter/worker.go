package deadletter

import (
	"context"
	"sync"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

type DeadLetterWorker struct {
	WorkerPool   *ants.Pool
	DLService    *DeadLetterService
	DLRepository *DeadLetterRepository
	Interval     time.Duration
}

func NewWorker(dlService *DeadLetterService) (*DeadLetterWorker, error) {
	workerPool, err := ants.NewPool(config.Conf.DeadLetterPoolSize, ants.WithPreAlloc(true))
	if err != nil {
		return nil, err
	}

	return &DeadLetterWorker{
		WorkerPool:   workerPool,
		DLService:    dlService,
		DLRepository: dlService.DLRepository,
		Interval:     time.Duration(config.Conf.DeadLetterEventInterval) * time.Minute,
	}, nil
}

// Run replays pending events every Interval until ctx is canceled.
func (dlWorker *DeadLetterWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(dlWorker.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			dlWorker.ProcessPending(ctx)
		}
	}
}

// ProcessPending runs one replay round and waits for it to finish. Events of
// one call are replayed in receipt order on a single worker, and the rest of
// a call's events wait for the next round once one of them fails.
func (dlWorker *DeadLetterWorker) ProcessPending(ctx context.Context) {
	err := dlWorker.DLRepository.ReleaseStaleClaims(ctx)
	if err != nil {
		logging.Logger.Warn("failed to release stale dead letter claims", zap.String("error", err.Error()))
	}

	dlEvents, err := dlWorker.DLRepository.GetPendingEvents(ctx)
	if err != nil {
		return
	}

	if len(dlEvents) == 0 {
		logging.Logger.Debug("no dead letter events are pending")
		return
	}

	groups := groupByCallID(dlEvents)

	logging.Logger.Info("start processing dead letter events",
		zap.Int("count_dl_events", len(dlEvents)),
		zap.Int("count_calls", len(groups)),
	)

	var waitGroup sync.WaitGroup

	for _, group := range groups {
		waitGroup.Add(1)

		err := dlWorker.WorkerPool.Submit(func() {
			defer waitGroup.Done()

			for _, dlEvent := range group {
				if !dlWorker.DLService.ProcessDeadLetterEvent(ctx, dlEvent) {
					return
				}
			}
		})
		if err != nil {
			waitGroup.Done()
			logging.Logger.Error("failed to submit dead letter worker pool",
				zap.String("call_id", group[0].CallID),
				zap.String("error", err.Error()),
			)
		}
	}

	waitGroup.Wait()
}

// groupByCallID splits dlEvents per call, keeping their order.
func groupByCallID(dlEvents []Event) [][]*Event {
	var groups [][]*Event

	index := make(map[string]int)

	for idx := range dlEvents {
		dlEvent := &dlEvents[idx]

		pos, ok := index[dlEvent.CallID]
		if !ok {
			pos = len(groups)
			index[dlEvent.CallID] = pos
			groups = append(groups, nil)
		}

		groups[pos] = append(groups[pos], dlEvent)
	}

	return groups
}

func (dlWorker *DeadLetterWorker) Close() {
	dlWorker.WorkerPool.Release()
}
