package event

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrUnknownDialect = errors.New("unknown phone dialect")

const callIDTimeLayout = "20060102150405"

// Event is a vendor independent action URL notification.
type Event struct {
	Dialect Dialect
	Kind    Kind
	// Name is the lowercased event parameter as sent by the phone.
	Name              string
	CallID            string
	CallIDSynthesized bool
	Endpoint          string
	Counterparty      string
	// Duration is set only when the phone sent a parseable integer.
	Duration       *int
	RawDuration    string
	TransferTarget string
	ReceivedAt     time.Time
}

func (e Event) Incoming() bool {
	return e.Name == NameIncomingCall
}

// Normalize builds an Event from raw callback parameters. It returns
// ErrUnknownDialect when neither vendor address key is present.
func Normalize(params Params, receivedAt time.Time) (Event, error) {
	dialect := ClassifyDialect(params)
	if dialect == DialectUnknown {
		return Event{}, ErrUnknownDialect
	}

	name := strings.ToLower(strings.TrimSpace(params.Get(ParamEvent)))

	evt := Event{
		Dialect:    dialect,
		Kind:       ParseKind(name),
		Name:       name,
		CallID:     params.Get(ParamCallID),
		ReceivedAt: receivedAt,
	}

	switch dialect {
	case DialectYealink:
		evt.Endpoint = params.Get(ParamPhone)
		evt.Counterparty = ResolveParam(params, ParamRemoteNumber, params.Get(ParamNumber))
		evt.TransferTarget = params.Get(ParamTransferTo)
	case DialectCisco:
		evt.Endpoint = params.Get(ParamMAC)
		evt.Counterparty = params.Get(ParamNumber)
		evt.TransferTarget = params.Get(ParamTransfer)
	}

	if evt.CallID == DefaultParam {
		evt.CallID = SynthesizeCallID(evt.Endpoint, receivedAt)
		evt.CallIDSynthesized = true
	}

	if params.Has(ParamDuration) {
		evt.RawDuration = params.Get(ParamDuration)

		duration, err := strconv.Atoi(strings.TrimSpace(evt.RawDuration))
		if err == nil {
			evt.Duration = &duration
		}
	}

	return evt, nil
}

// SynthesizeCallID builds an id for phones that omit callid, with second
// precision.
func SynthesizeCallID(endpoint string, at time.Time) string {
	return endpoint + "_" + at.Format(callIDTimeLayout)
}
