package event

import "strings"

type Dialect string

const (
	DialectYealink Dialect = "yealink"
	DialectCisco   Dialect = "cisco"
	DialectUnknown Dialect = "unknown"
)

// ClassifyDialect tells the vendor from the address key. phone wins when both
// keys are present.
func ClassifyDialect(params Params) Dialect {
	switch {
	case params.Has(ParamPhone):
		return DialectYealink
	case params.Has(ParamMAC):
		return DialectCisco
	default:
		return DialectUnknown
	}
}

type Kind int

const (
	KindUnknown Kind = iota
	KindStart
	KindEstablished
	KindHold
	KindResume
	KindTransfer
	KindEnd
)

// Kinds lists every kind, KindUnknown included.
var Kinds = []Kind{KindUnknown, KindStart, KindEstablished, KindHold, KindResume, KindTransfer, KindEnd}

const (
	NameCallStart        = "call-start"
	NameIncomingCall     = "incoming-call"
	NameCallEstablished  = "call-established"
	NameCallConnected    = "call-connected"
	NameHold             = "hold"
	NameCallHold         = "call-hold"
	NameResume           = "resume"
	NameCallResume       = "call-resume"
	NameTransfer         = "transfer"
	NameCallTransfer     = "call-transfer"
	NameAttendedTransfer = "attended-transfer"
	NameCallEnd          = "call-end"
)

var kindByName = map[string]Kind{
	NameCallStart:        KindStart,
	NameIncomingCall:     KindStart,
	NameCallEstablished:  KindEstablished,
	NameCallConnected:    KindEstablished,
	NameHold:             KindHold,
	NameCallHold:         KindHold,
	NameResume:           KindResume,
	NameCallResume:       KindResume,
	NameTransfer:         KindTransfer,
	NameCallTransfer:     KindTransfer,
	NameAttendedTransfer: KindTransfer,
	NameCallEnd:          KindEnd,
}

// ParseKind maps an event name to its kind, ignoring case and surrounding
// whitespace.
func ParseKind(name string) Kind {
	return kindByName[strings.ToLower(strings.TrimSpace(name))]
}

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindEstablished:
		return "established"
	case KindHold:
		return "hold"
	case KindResume:
		return "resume"
	case KindTransfer:
		return "transfer"
	case KindEnd:
		return "end"
	default:
		return "unknown"
	}
}
