package types

import "sort"

// Dataset is everything a loader hands to the orchestrator: the connection
// timelines plus the raw packets behind them.
type Dataset struct {
	Timelines   []Timeline     `json:"timelines" validate:"dive"`
	Packets     []PacketRecord `json:"packets,omitempty" validate:"dive"`
	SourceFiles []string       `json:"sourceFiles,omitempty"`
	GeneratedAt string         `json:"generatedAt,omitempty"`

	PacketsByConnection map[string][]PacketRecord `json:"-"` // Pre-indexed packets by connection id, sorted by timestamp
}

// IndexPackets populates PacketsByConnection for O(1) lookup by connection id.
func (d *Dataset) IndexPackets() {
	d.PacketsByConnection = make(map[string][]PacketRecord, len(d.Timelines))
	for _, p := range d.Packets {
		d.PacketsByConnection[p.ConnectionID] = append(d.PacketsByConnection[p.ConnectionID], p)
	}
	for id, pkts := range d.PacketsByConnection {
		sort.SliceStable(pkts, func(i, j int) bool { return pkts[i].Timestamp < pkts[j].Timestamp })
		d.PacketsByConnection[id] = pkts
	}
}

// Timeline is the per-connection record produced by the traffic analyzer.
type Timeline struct {
	ID           string      `json:"id" validate:"required"`
	Protocol     string      `json:"protocol"`
	ProtocolType string      `json:"protocolType"`
	Stages       []StageSpec `json:"stages,omitempty" validate:"dive"`
	Metrics      Metrics     `json:"metrics,omitempty"`
}

// StageSpec is a stage embedded in a timeline. When a timeline carries no
// stages the catalog entry for its protocol type is used instead.
type StageSpec struct {
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Direction  string  `json:"direction"`
	Color      string  `json:"color,omitempty"`
	DurationMs float64 `json:"durationMs" validate:"gte=0"`
	Blinking   bool    `json:"blinking,omitempty"`
	Spinning   bool    `json:"spinning,omitempty"`
	Pulsing    bool    `json:"pulsing,omitempty"`
	Opacity    float64 `json:"opacity,omitempty" validate:"gte=0,lte=1"`
	Unreliable bool    `json:"unreliable,omitempty"`
	Encrypted  bool    `json:"encrypted,omitempty"`
}

// Metrics carries analyzer facts that customise catalog stages.
type Metrics struct {
	PacketCount int     `json:"packetCount,omitempty"`
	StatusCode  int     `json:"statusCode,omitempty"`
	ResolvedIP  string  `json:"resolvedIp,omitempty"`
	RTTMs       float64 `json:"rttMs,omitempty"`
	Attack      string  `json:"attack,omitempty"`
}

// PacketRecord is one captured packet.
type PacketRecord struct {
	ConnectionID string    `json:"connectionId" validate:"required"`
	Index        int       `json:"index"`
	Timestamp    float64   `json:"timestamp"` // seconds
	Length       int       `json:"length" validate:"gte=0"`
	FiveTuple    FiveTuple `json:"fiveTuple"`
	Headers      Headers   `json:"headers"`
	ErrorType    string    `json:"errorType,omitempty"`
}

// FiveTuple identifies the packet's endpoints. Ports are kept as strings so
// the virtual flood port "0" survives round trips unchanged.
type FiveTuple struct {
	SrcIP    string `json:"srcIp"`
	SrcPort  string `json:"srcPort"`
	DstIP    string `json:"dstIp"`
	DstPort  string `json:"dstPort"`
	Protocol string `json:"protocol"`
}

type Headers struct {
	TCP *TCPHeader `json:"tcp,omitempty"`
	UDP *UDPHeader `json:"udp,omitempty"`
}

type TCPHeader struct {
	Flags []string `json:"flags"`
}

// HasFlag reports whether the header carries flag (upper case, e.g. "SYN").
func (h *TCPHeader) HasFlag(flag string) bool {
	if h == nil {
		return false
	}
	for _, f := range h.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

type UDPHeader struct {
	Length int `json:"length"`
}

// Direction of a stage's motion along its edge.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
	DirectionBoth
	DirectionWait
	DirectionNone
)

// ParseDirection maps a direction keyword; unknown keywords are forward.
func ParseDirection(s string) Direction {
	switch s {
	case "backward":
		return DirectionBackward
	case "both":
		return DirectionBoth
	case "wait":
		return DirectionWait
	case "none":
		return DirectionNone
	default:
		return DirectionForward
	}
}

func (d Direction) String() string {
	switch d {
	case DirectionBackward:
		return "backward"
	case DirectionBoth:
		return "both"
	case DirectionWait:
		return "wait"
	case DirectionNone:
		return "none"
	default:
		return "forward"
	}
}
