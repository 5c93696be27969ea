package event

import "net/url"

// DefaultParam is returned for parameters the phone did not send.
const DefaultParam = "unknown"

const (
	ParamEvent        = "event"
	ParamPhone        = "phone"
	ParamMAC          = "mac"
	ParamCallID       = "callid"
	ParamNumber       = "number"
	ParamRemoteNumber = "remotenumber"
	ParamDuration     = "duration"
	ParamTransferTo   = "transfer_to"
	ParamTransfer     = "transfer"
)

// Params holds the query string of an action URL callback.
type Params map[string][]string

func FromQuery(values url.Values) Params {
	return Params(values)
}

func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// ResolveParam returns the first value of name, or def when the phone did not
// send it.
func ResolveParam(params Params, name, def string) string {
	values, ok := params[name]
	if !ok || len(values) == 0 {
		return def
	}

	return values[0]
}

// Get is ResolveParam with DefaultParam.
func (p Params) Get(name string) string {
	return ResolveParam(p, name, DefaultParam)
}
