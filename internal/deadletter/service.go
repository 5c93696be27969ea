package deadletter

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/logging"
	phonelogPrometheus "git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/prometheus"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// Replayer runs stored callback parameters through event processing again.
type Replayer interface {
	Replay(ctx context.Context, params event.Params, receivedAt time.Time) error
}

type DeadLetterService struct {
	DLRepository *DeadLetterRepository
	Replayer     Replayer
}

func NewService(dlRepository *DeadLetterRepository) *DeadLetterService {
	return &DeadLetterService{
		DLRepository: dlRepository,
	}
}

// SetReplayer completes construction once the pipeline exists, since the
// pipeline itself marks events.
func (dlService *DeadLetterService) SetReplayer(replayer Replayer) {
	dlService.Replayer = replayer
}

func (dlService *DeadLetterService) MarkEvent(
	ctx context.Context,
	callID string,
	params event.Params,
	receivedAt time.Time,
	errMsg string,
) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return err
	}

	dlEvent, err := dlService.DLRepository.CreateEvent(ctx, callID, payload, receivedAt, errMsg)
	if err != nil {
		return err
	}

	phonelogPrometheus.DeadLetterEventsTotal.WithLabelValues("marked").Inc()
	logging.Logger.Info("mark event as dead letter",
		zap.String("call_id", callID),
		zap.String("id", dlEvent.ID.String()),
	)

	return nil
}

// ProcessDeadLetterEvent claims and replays dlEvent. It reports whether the
// event was replayed and deleted.
func (dlService *DeadLetterService) ProcessDeadLetterEvent(ctx context.Context, dlEvent *Event) bool {
	err := dlService.DLRepository.Claim(ctx, dlEvent)
	if err != nil {
		logging.Logger.Info("skip dead letter event, claim failed",
			zap.String("id", dlEvent.ID.String()),
			zap.String("error", err.Error()),
		)

		return false
	}

	var params event.Params

	err = json.Unmarshal(dlEvent.Params, &params)
	if err != nil {
		logging.Logger.Error("failed to decode dead letter params",
			zap.String("id", dlEvent.ID.String()),
			zap.String("error", err.Error()),
		)
		dlService.retryLater(ctx, dlEvent, err)

		return false
	}

	err = dlService.Replayer.Replay(ctx, params, dlEvent.ReceivedAt)
	if err != nil {
		logging.Logger.Error("failed to replay dead letter event",
			zap.String("id", dlEvent.ID.String()),
			zap.String("call_id", dlEvent.CallID),
			zap.String("error", err.Error()),
		)
		dlService.retryLater(ctx, dlEvent, err)

		return false
	}

	phonelogPrometheus.DeadLetterEventsTotal.WithLabelValues("replayed").Inc()
	logging.Logger.Info("dead letter event replayed successfully",
		zap.String("id", dlEvent.ID.String()),
		zap.String("call_id", dlEvent.CallID),
	)

	err = dlService.DLRepository.Delete(ctx, dlEvent)
	if err != nil {
		logging.Logger.Warn("failed to delete replayed dead letter event",
			zap.String("id", dlEvent.ID.String()),
			zap.String("error", err.Error()),
		)
	}

	return true
}

func (dlService *DeadLetterService) retryLater(ctx context.Context, dlEvent *Event, cause error) {
	phonelogPrometheus.DeadLetterEventsTotal.WithLabelValues("failed").Inc()

	err := dlService.DLRepository.IncreaseRetryCount(ctx, dlEvent, cause.Error())
	if err != nil {
		logging.Logger.Warn("failed to record dead letter retry",
			zap.String("id", dlEvent.ID.String()),
			zap.String("error", err.Error()),
		)
	}
}
