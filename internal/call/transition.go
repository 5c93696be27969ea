package call

import (
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/phonelog/internal/event"
	"gorm.io/datatypes"
)

// A call lasting longer than this many seconds counts as successful even if
// it was never reported as answered.
const successfulDurationThreshold = 5

// transitionFunc mutates record for evt and reports whether anything changed.
type transitionFunc func(record *Record, evt event.Event, now time.Time) bool

func newRecord(evt event.Event, now time.Time) *Record {
	record := &Record{
		CallID:    evt.CallID,
		PhoneMAC:  evt.Endpoint,
		Started:   now,
		Direction: DirectionOutgoing,
		Status:    StatusInProgress,
		Transfers: datatypes.JSONSlice[string]{},
	}

	if evt.Incoming() {
		record.Direction = DirectionIncoming
		record.FromNumber = evt.Counterparty
		record.ToNumber = evt.Endpoint
	} else {
		record.FromNumber = evt.Endpoint
		record.ToNumber = evt.Counterparty
	}

	return record
}

func setStatus(record *Record, status string) bool {
	if record.Terminal() || record.Status == status {
		return false
	}

	record.Status = status

	return true
}

func establish(record *Record, _ event.Event, _ time.Time) bool {
	return setStatus(record, StatusAnswered)
}

func hold(record *Record, _ event.Event, _ time.Time) bool {
	return setStatus(record, StatusOnHold)
}

func resume(record *Record, _ event.Event, _ time.Time) bool {
	return setStatus(record, StatusAnswered)
}

func transfer(record *Record, evt event.Event, _ time.Time) bool {
	record.Transfers = append(record.Transfers, evt.TransferTarget)
	return true
}

func end(record *Record, evt event.Event, now time.Time) bool {
	if record.Finished != nil {
		return false
	}

	duration := resolveDuration(record, evt, now)

	status := StatusUnsuccessful
	if record.Status == StatusAnswered || duration > successfulDurationThreshold {
		status = StatusSuccessful
	}

	finished := now
	record.Finished = &finished
	record.TotalDuration = &duration
	record.Status = status

	return true
}

// resolveDuration prefers the duration reported by the phone, then the time
// since the call started.
func resolveDuration(record *Record, evt event.Event, now time.Time) int {
	if evt.Duration != nil {
		return *evt.Duration
	}

	if record.Started.IsZero() {
		return 0
	}

	elapsed := int(now.Sub(record.Started) / time.Second)
	if elapsed < 0 {
		return 0
	}

	return elapsed
}
