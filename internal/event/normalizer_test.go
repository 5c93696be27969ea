package event

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var receivedAt = time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

func TestResolveParam(t *testing.T) {
	params := Params{
		"single": {"a"},
		"multi":  {"first", "second"},
		"empty":  {},
	}

	assert.Equal(t, "a", ResolveParam(params, "single", DefaultParam))
	assert.Equal(t, "first", ResolveParam(params, "multi", DefaultParam))
	assert.Equal(t, "unknown", ResolveParam(params, "missing", DefaultParam))
	assert.Equal(t, "fallback", ResolveParam(params, "missing", "fallback"))
	assert.Equal(t, "unknown", params.Get("empty"))
}

func TestClassifyDialect(t *testing.T) {
	tests := []struct {
		name   string
		params Params
		want   Dialect
	}{
		{"yealink", Params{"phone": {"AA:BB"}}, DialectYealink},
		{"cisco", Params{"mac": {"00:11"}}, DialectCisco},
		{"phone wins", Params{"phone": {"AA:BB"}, "mac": {"00:11"}}, DialectYealink},
		{"empty value still counts", Params{"mac": {""}}, DialectCisco},
		{"neither", Params{"callid": {"C1"}}, DialectUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyDialect(tt.params))
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{
		"call-start":        KindStart,
		"incoming-call":     KindStart,
		"Call-Established":  KindEstablished,
		"call-connected":    KindEstablished,
		"HOLD":              KindHold,
		"call-hold":         KindHold,
		"resume":            KindResume,
		"call-resume":       KindResume,
		"transfer":          KindTransfer,
		"call-transfer":     KindTransfer,
		"attended-transfer": KindTransfer,
		" call-end ":        KindEnd,
		"ringing":           KindUnknown,
		"":                  KindUnknown,
	}

	for name, want := range tests {
		assert.Equal(t, want, ParseKind(name), name)
	}
}

func TestKindsHaveNames(t *testing.T) {
	seen := map[string]bool{}

	for _, kind := range Kinds {
		seen[kind.String()] = true
	}

	assert.Len(t, seen, len(Kinds))
}

func TestNormalizeYealinkIncoming(t *testing.T) {
	params := FromQuery(url.Values{
		"event":  {"incoming-call"},
		"phone":  {"AA:BB"},
		"callid": {"C1"},
		"number": {"555"},
	})

	evt, err := Normalize(params, receivedAt)
	require.NoError(t, err)

	assert.Equal(t, DialectYealink, evt.Dialect)
	assert.Equal(t, KindStart, evt.Kind)
	assert.True(t, evt.Incoming())
	assert.Equal(t, "C1", evt.CallID)
	assert.False(t, evt.CallIDSynthesized)
	assert.Equal(t, "AA:BB", evt.Endpoint)
	assert.Equal(t, "555", evt.Counterparty)
	assert.Nil(t, evt.Duration)
	assert.Equal(t, receivedAt, evt.ReceivedAt)
}

func TestNormalizeYealinkPrefersRemoteNumber(t *testing.T) {
	params := Params{
		"event":        {"call-start"},
		"phone":        {"AA:BB"},
		"callid":       {"C1"},
		"number":       {"555"},
		"remotenumber": {"777"},
	}

	evt, err := Normalize(params, receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "777", evt.Counterparty)
	assert.False(t, evt.Incoming())
}

func TestNormalizeCisco(t *testing.T) {
	params := Params{
		"event":        {"call-transfer"},
		"mac":          {"00:11"},
		"callid":       {"C9"},
		"number":       {"555"},
		"remotenumber": {"777"},
		"transfer":     {"200"},
		"transfer_to":  {"300"},
	}

	evt, err := Normalize(params, receivedAt)
	require.NoError(t, err)

	assert.Equal(t, DialectCisco, evt.Dialect)
	assert.Equal(t, KindTransfer, evt.Kind)
	assert.Equal(t, "00:11", evt.Endpoint)
	assert.Equal(t, "555", evt.Counterparty)
	assert.Equal(t, "200", evt.TransferTarget)
}

func TestNormalizeTransferTargetDefaults(t *testing.T) {
	evt, err := Normalize(Params{"event": {"transfer"}, "phone": {"AA"}, "callid": {"C"}}, receivedAt)
	require.NoError(t, err)
	assert.Equal(t, "unknown", evt.TransferTarget)

	evt, err = Normalize(Params{"event": {"transfer"}, "phone": {"AA"}, "transfer_to": {"42"}}, receivedAt)
	require.NoError(t, err)
	assert.Equal(t, "42", evt.TransferTarget)
}

func TestNormalizeSynthesizesCallID(t *testing.T) {
	evt, err := Normalize(Params{"event": {"call-start"}, "phone": {"AA:BB"}}, receivedAt)
	require.NoError(t, err)

	assert.Equal(t, "AA:BB_20240309140507", evt.CallID)
	assert.True(t, evt.CallIDSynthesized)
	assert.Equal(t, "unknown", evt.Counterparty)
}

func TestNormalizeDuration(t *testing.T) {
	evt, err := Normalize(Params{"event": {"call-end"}, "mac": {"00:11"}, "duration": {"12"}}, receivedAt)
	require.NoError(t, err)
	require.NotNil(t, evt.Duration)
	assert.Equal(t, 12, *evt.Duration)

	evt, err = Normalize(Params{"event": {"call-end"}, "mac": {"00:11"}, "duration": {"12s"}}, receivedAt)
	require.NoError(t, err)
	assert.Nil(t, evt.Duration)
	assert.Equal(t, "12s", evt.RawDuration)
}

func TestNormalizeUnknownDialect(t *testing.T) {
	_, err := Normalize(Params{"event": {"call-start"}, "callid": {"C1"}}, receivedAt)
	require.ErrorIs(t, err, ErrUnknownDialect)
}

func TestNormalizeUnknownKindStillNormalizes(t *testing.T) {
	evt, err := Normalize(Params{"event": {"ringing"}, "phone": {"AA"}, "callid": {"C1"}}, receivedAt)
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, evt.Kind)
	assert.Equal(t, "ringing", evt.Name)
}
