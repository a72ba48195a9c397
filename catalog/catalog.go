// Package catalog holds the static stage sequences of every animated protocol
// exchange, keyed by a closed set of kinds.
package catalog

import (
	"fmt"
	"image/color"
	"net/http"
	"strings"

	"github.com/samaelod/flowmap/types"
)

// Kind names a protocol exchange. Unrecognised keys map to KindUnknown.
type Kind int

const (
	KindUnknown Kind = iota
	KindTCPHandshake
	KindTCPTeardown
	KindDNSQuery
	KindHTTPRequest
	KindHTTPSRequest
	KindTimeout
	KindUDPTransfer
	KindICMPPing
	KindSSHSecure
	KindFlood
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	KindTCPHandshake: "tcp-handshake",
	KindTCPTeardown:  "tcp-teardown",
	KindDNSQuery:     "dns-query",
	KindHTTPRequest:  "http-request",
	KindHTTPSRequest: "https-request",
	KindTimeout:      "timeout",
	KindUDPTransfer:  "udp-transfer",
	KindICMPPing:     "icmp-ping",
	KindSSHSecure:    "ssh-secure",
	KindFlood:        "flood",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps a protocol-type key to its Kind.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// ConnectionStyle is how an edge line is drawn.
type ConnectionStyle int

const (
	StyleSolid ConnectionStyle = iota
	StyleDashed
	StyleEncrypted
)

func (s ConnectionStyle) String() string {
	switch s {
	case StyleDashed:
		return "dashed"
	case StyleEncrypted:
		return "encrypted"
	default:
		return "solid"
	}
}

func (s ConnectionStyle) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stage is one step of an exchange.
type Stage struct {
	Key        string
	Label      string
	Direction  types.Direction
	Color      color.NRGBA // zero means "use the protocol color"
	DurationMs float64
	Blinking   bool
	Spinning   bool
	Pulsing    bool
	Opacity    float64 // zero means fully opaque
	Unreliable bool
	Encrypted  bool
	StatusCode int
}

// Entry is the full description of a kind.
type Entry struct {
	Kind            Kind
	Stages          []Stage
	FinalState      string
	FinalColor      color.NRGBA
	ColorTransition []color.NRGBA
	ConnectionStyle ConnectionStyle // StyleSolid means "derive from the stage"
	Description     string
}

// Options customise an entry for one concrete connection.
type Options struct {
	StatusCode int
	ResolvedIP string
	RTTMs      float64
}

var statusClassColors = map[int]color.NRGBA{
	2: ColorGreen,
	3: ColorBlue,
	4: ColorOrange,
	5: ColorRed,
}

func requestStages(tls color.NRGBA) []Stage {
	return []Stage{
		{Key: "TLS Handshake", Label: "TLS handshake", Direction: types.DirectionBoth, Color: tls, DurationMs: 800, Encrypted: true},
		{Key: "GET", Label: "Sending request", Direction: types.DirectionForward, Color: ColorCyan, DurationMs: 200},
		{Key: "Processing", Label: "Awaiting response", Direction: types.DirectionWait, Color: ColorCyan, DurationMs: 300, Pulsing: true},
		{Key: "200 OK", Label: "200 OK", Direction: types.DirectionBackward, Color: ColorGreen, DurationMs: 200, StatusCode: 200},
	}
}

var entries = map[Kind]Entry{
	KindTCPHandshake: {
		Stages: []Stage{
			{Key: "SYN", Label: "SYN sent", Direction: types.DirectionForward, Color: ColorBlue, DurationMs: 500},
			{Key: "SYN-ACK", Label: "SYN-ACK reply", Direction: types.DirectionBackward, Color: ColorGreen, DurationMs: 500},
			{Key: "ACK", Label: "ACK confirm", Direction: types.DirectionForward, Color: ColorAmber, DurationMs: 500},
		},
		FinalState:  "established",
		FinalColor:  ColorGreen,
		Description: "TCP three-way handshake",
	},
	KindTCPTeardown: {
		Stages: []Stage{
			{Key: "FIN", Label: "Close requested", Direction: types.DirectionForward, Color: ColorOrange, DurationMs: 400},
			{Key: "ACK", Label: "Close acknowledged", Direction: types.DirectionBackward, Color: ColorOrange, DurationMs: 400},
			{Key: "FIN", Label: "Peer closing", Direction: types.DirectionBackward, Color: ColorOrange, DurationMs: 400},
			{Key: "ACK", Label: "Fully closed", Direction: types.DirectionForward, Color: ColorOrange, DurationMs: 400},
		},
		FinalState:      "closed",
		FinalColor:      ColorSlate,
		ColorTransition: []color.NRGBA{ColorGreen, ColorOrange, ColorSlate, {0x6b, 0x72, 0x80, 0x00}},
		Description:     "TCP four-way teardown",
	},
	KindDNSQuery: {
		Stages: []Stage{
			{Key: "Query", Label: "DNS query", Direction: types.DirectionForward, Color: ColorViolet, DurationMs: 100},
			{Key: "Resolving", Label: "Resolving...", Direction: types.DirectionWait, Color: ColorViolet, DurationMs: 200, Spinning: true},
			{Key: "Response", Label: "Resolved", Direction: types.DirectionBackward, Color: ColorViolet, DurationMs: 100},
		},
		FinalState:  "resolved",
		FinalColor:  ColorGreen,
		Description: "DNS name resolution",
	},
	KindHTTPRequest: {
		Stages:      requestStages(ColorGold),
		FinalState:  "completed",
		Description: "HTTP request and response",
	},
	KindHTTPSRequest: {
		Stages:      requestStages(ColorEmerald),
		FinalState:  "completed",
		Description: "HTTPS request and response",
	},
	KindTimeout: {
		Stages: []Stage{
			{Key: "Request", Label: "Awaiting response...", Direction: types.DirectionForward, Color: ColorGold, DurationMs: 1000},
			{Key: "Waiting", Label: "Response delayed", Direction: types.DirectionWait, Color: ColorAmber, DurationMs: 2000},
			{Key: "Timeout", Label: "Connection timed out", Direction: types.DirectionNone, Color: ColorRed, DurationMs: 1000, Blinking: true},
		},
		FinalState:      "timeout",
		FinalColor:      ColorRed,
		ColorTransition: []color.NRGBA{ColorGreen, ColorGold, ColorAmber, ColorRed},
		Description:     "Connection timeout",
	},
	KindUDPTransfer: {
		Stages: []Stage{
			{Key: "Transfer", Label: "UDP transfer", Direction: types.DirectionForward, Color: ColorSky, DurationMs: 300, Unreliable: true, Opacity: 0.7},
		},
		FinalState:      "sent",
		FinalColor:      ColorSky,
		ConnectionStyle: StyleDashed,
		Description:     "Unreliable UDP transfer",
	},
	KindICMPPing: {
		Stages: []Stage{
			{Key: "Echo Request", Label: "Ping...", Direction: types.DirectionForward, Color: ColorSnow, DurationMs: 50},
			{Key: "Echo Reply", Label: "Pong!", Direction: types.DirectionBackward, Color: ColorSnow, DurationMs: 50},
		},
		FinalState:  "completed",
		FinalColor:  ColorGreen,
		Description: "ICMP echo",
	},
	KindSSHSecure: {
		Stages: []Stage{
			{Key: "Handshake", Label: "Key exchange", Direction: types.DirectionBoth, Color: ColorGold, DurationMs: 1000, Encrypted: true, Blinking: true},
			{Key: "Established", Label: "Secure channel up", Direction: types.DirectionNone, Color: ColorGreen, DurationMs: 500},
			{Key: "Transfer", Label: "Encrypted transfer", Direction: types.DirectionBoth, Color: ColorGreen, DurationMs: 2000, Encrypted: true},
		},
		FinalState:      "secure",
		FinalColor:      ColorGreen,
		ConnectionStyle: StyleEncrypted,
		Description:     "SSH/TLS secure session",
	},
	KindFlood: {
		Stages: []Stage{
			{Key: "SYN", Label: "SYN flood", Direction: types.DirectionForward, Color: ColorRed, DurationMs: 600, Blinking: true},
		},
		FinalState:  "attack",
		FinalColor:  ColorRed,
		Description: "Handshake-less SYN burst toward one service",
	},
	KindUnknown: {
		Stages: []Stage{
			{Key: "Transfer", Label: "Transfer", Direction: types.DirectionForward, DurationMs: 1000},
		},
		FinalState:  "completed",
		Description: "Unclassified exchange",
	},
}

// Lookup returns a private copy of the kind's entry with opts applied.
func Lookup(kind Kind, opts Options) Entry {
	base, ok := entries[kind]
	if !ok {
		kind = KindUnknown
		base = entries[KindUnknown]
	}

	e := base
	e.Kind = kind
	e.Stages = append([]Stage(nil), base.Stages...)
	e.ColorTransition = append([]color.NRGBA(nil), base.ColorTransition...)

	last := &e.Stages[len(e.Stages)-1]
	switch kind {
	case KindHTTPRequest, KindHTTPSRequest:
		if opts.StatusCode > 0 {
			c, ok := statusClassColors[opts.StatusCode/100]
			if !ok {
				c = ColorSlate
			}
			text := http.StatusText(opts.StatusCode)
			if text == "" {
				text = "Unknown"
			}
			last.Color = c
			last.Key = fmt.Sprintf("%d", opts.StatusCode)
			last.Label = fmt.Sprintf("%d %s", opts.StatusCode, text)
			last.StatusCode = opts.StatusCode
		}
	case KindDNSQuery:
		if opts.ResolvedIP != "" {
			last.Label = "Resolved: " + opts.ResolvedIP
		}
	case KindICMPPing:
		if opts.RTTMs > 0 {
			last.Label = fmt.Sprintf("Pong! (%gms)", opts.RTTMs)
		}
	}

	return e
}

// Kinds lists every known kind except KindUnknown, in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(kindNames)-1)
	for k := KindTCPHandshake; k <= KindFlood; k++ {
		out = append(out, k)
	}
	return out
}

// StagesFromSpecs converts stages embedded in a timeline.
func StagesFromSpecs(specs []types.StageSpec) []Stage {
	out := make([]Stage, 0, len(specs))
	for _, s := range specs {
		c, _ := ParseColor(s.Color)
		out = append(out, Stage{
			Key:        s.Key,
			Label:      s.Label,
			Direction:  types.ParseDirection(s.Direction),
			Color:      c,
			DurationMs: s.DurationMs,
			Blinking:   s.Blinking,
			Spinning:   s.Spinning,
			Pulsing:    s.Pulsing,
			Opacity:    s.Opacity,
			Unreliable: s.Unreliable,
			Encrypted:  s.Encrypted,
		})
	}
	return out
}

// OptionsFromMetrics extracts catalog options from analyzer metrics.
func OptionsFromMetrics(m types.Metrics) Options {
	return Options{StatusCode: m.StatusCode, ResolvedIP: m.ResolvedIP, RTTMs: m.RTTMs}
}
