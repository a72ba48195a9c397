package catalog

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/flowmap/types"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"tcp-handshake", KindTCPHandshake},
		{" TCP-Teardown ", KindTCPTeardown},
		{"dns-query", KindDNSQuery},
		{"ssh-secure", KindSSHSecure},
		{"flood", KindFlood},
		{"quic-0rtt", KindUnknown},
		{"", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKind(tt.in))
		})
	}
}

func TestEveryKindHasStages(t *testing.T) {
	for _, k := range append(Kinds(), KindUnknown) {
		e := Lookup(k, Options{})
		require.NotEmpty(t, e.Stages, k.String())
		assert.NotEmpty(t, e.FinalState, k.String())
		for _, s := range e.Stages {
			assert.GreaterOrEqual(t, s.DurationMs, 0.0)
		}
	}
}

func TestHandshakeTable(t *testing.T) {
	e := Lookup(KindTCPHandshake, Options{})
	require.Len(t, e.Stages, 3)
	assert.Equal(t, "SYN", e.Stages[0].Key)
	assert.Equal(t, types.DirectionBackward, e.Stages[1].Direction)
	assert.Equal(t, "established", e.FinalState)
	var total float64
	for _, s := range e.Stages {
		total += s.DurationMs
	}
	assert.Equal(t, 1500.0, total)
}

func TestLookupDoesNotShareStages(t *testing.T) {
	custom := Lookup(KindHTTPRequest, Options{StatusCode: 404})
	plain := Lookup(KindHTTPRequest, Options{})

	assert.Equal(t, "404 Not Found", custom.Stages[3].Label)
	assert.Equal(t, ColorOrange, custom.Stages[3].Color)
	assert.Equal(t, "200 OK", plain.Stages[3].Label)
	assert.Equal(t, ColorGreen, plain.Stages[3].Color)
}

func TestCustomization(t *testing.T) {
	t.Run("status_class", func(t *testing.T) {
		assert.Equal(t, ColorRed, Lookup(KindHTTPSRequest, Options{StatusCode: 503}).Stages[3].Color)
		assert.Equal(t, ColorBlue, Lookup(KindHTTPRequest, Options{StatusCode: 301}).Stages[3].Color)
		assert.Equal(t, ColorSlate, Lookup(KindHTTPRequest, Options{StatusCode: 99}).Stages[3].Color)
	})
	t.Run("dns", func(t *testing.T) {
		e := Lookup(KindDNSQuery, Options{ResolvedIP: "93.184.216.34"})
		assert.Equal(t, "Resolved: 93.184.216.34", e.Stages[2].Label)
	})
	t.Run("icmp", func(t *testing.T) {
		e := Lookup(KindICMPPing, Options{RTTMs: 12.5})
		assert.Equal(t, "Pong! (12.5ms)", e.Stages[1].Label)
	})
}

func TestConnectionStyles(t *testing.T) {
	assert.Equal(t, StyleDashed, Lookup(KindUDPTransfer, Options{}).ConnectionStyle)
	assert.Equal(t, StyleEncrypted, Lookup(KindSSHSecure, Options{}).ConnectionStyle)
	assert.Equal(t, StyleSolid, Lookup(KindTCPHandshake, Options{}).ConnectionStyle)
	assert.Equal(t, "encrypted", StyleEncrypted.String())
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#3b82f6", color.NRGBA{0x3b, 0x82, 0xf6, 0xff}, true},
		{"#fff", color.NRGBA{0xff, 0xff, 0xff, 0xff}, true},
		{"#00000080", color.NRGBA{0, 0, 0, 0x80}, true},
		{"transparent", color.NRGBA{}, true},
		{"blue", color.NRGBA{}, false},
		{"#12345", color.NRGBA{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseColor(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, "#3b82f6", Hex(ColorBlue))
	assert.Equal(t, "#00000080", Hex(color.NRGBA{0, 0, 0, 0x80}))
}

func TestGradient(t *testing.T) {
	stops := []color.NRGBA{{0, 0, 0, 255}, {200, 100, 0, 255}, {200, 100, 100, 255}}
	assert.Equal(t, stops[0], Gradient(stops, 0))
	assert.Equal(t, stops[2], Gradient(stops, 1))
	assert.Equal(t, color.NRGBA{100, 50, 0, 255}, Gradient(stops, 0.25))
	assert.Equal(t, stops[1], Gradient(stops, 0.5))
	assert.Equal(t, color.NRGBA{}, Gradient(nil, 0.3))
}

func TestProtocolColor(t *testing.T) {
	assert.Equal(t, color.NRGBA{0x38, 0xbd, 0xf8, 0xff}, ProtocolColor("TCP"))
	assert.Equal(t, ColorSlate, ProtocolColor("sctp"))
}

func TestAttackTypes(t *testing.T) {
	all := AllAttackTypes()
	require.Len(t, all, 9)
	assert.Equal(t, "URG-PSH-FIN Attack", all[0].Name)
	assert.Equal(t, NormalTraffic, all[len(all)-1].Name)

	assert.True(t, IsAttack("SYN Flood"))
	assert.True(t, IsHighThreat("SYN Flood"))
	assert.False(t, IsHighThreat("RST Attack"))
	assert.False(t, IsAttack(NormalTraffic))
	assert.False(t, IsAttack("made up"))
	assert.Equal(t, NormalTraffic, LookupAttack("made up").Name)
}
