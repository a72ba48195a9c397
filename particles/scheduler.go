// Package particles schedules the packet particles of one connection on the
// shared master clock.
package particles

import (
	"fmt"
	"image/color"
	"math"
	"sort"
	"strings"

	"github.com/samaelod/flowmap/catalog"
	"github.com/samaelod/flowmap/numeric"
	"github.com/samaelod/flowmap/topology"
	"github.com/samaelod/flowmap/types"
)

const (
	DefaultMinTravelMs = 100.0
	DefaultMaxTravelMs = 1000.0
	DefaultDurationMs  = 20000.0

	// lastGap is the normalized gap assumed after the final packet.
	lastGap = 0.1

	minSize = 2.0
	maxSize = 8.0

	stepEpsilon = 1e-9
)

// Options configure a Scheduler. Zero travel bounds use the defaults.
type Options struct {
	ConnectionID string
	MinTravelMs  float64
	MaxTravelMs  float64
	Loop         bool
	ShowLabels   bool
}

type slot struct {
	packet  types.PacketRecord
	number  int
	start   float64 // normalized spawn time
	gap     float64 // normalized distance to the next packet
	forward bool
}

// Scheduler maps packet timestamps of one connection onto master time. It
// holds no particle state; ActiveParticles derives them on every call.
type Scheduler struct {
	opts  Options
	slots []slot

	firstTs float64
	spanSec float64

	durationMs float64
	elapsedMs  float64
	progress   float64
}

// New normalizes the packets of one connection. Packets are ordered by
// timestamp; a zero time span spaces them evenly.
func New(packets []types.PacketRecord, opts Options) *Scheduler {
	if opts.MinTravelMs <= 0 {
		opts.MinTravelMs = DefaultMinTravelMs
	}
	if opts.MaxTravelMs < opts.MinTravelMs {
		opts.MaxTravelMs = math.Max(DefaultMaxTravelMs, opts.MinTravelMs)
	}

	s := &Scheduler{opts: opts, durationMs: DefaultDurationMs}
	sorted := append([]types.PacketRecord(nil), packets...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	n := len(sorted)
	if n == 0 {
		return s
	}
	s.firstTs = sorted[0].Timestamp
	s.spanSec = sorted[n-1].Timestamp - s.firstTs
	if !numeric.Finite(s.spanSec) || s.spanSec < 0 {
		s.spanSec = 0
	}

	src, hasSrc := topology.ParseConnectionID(opts.ConnectionID)
	s.slots = make([]slot, n)
	for i, p := range sorted {
		sl := slot{packet: p, number: p.Index, forward: true}
		if sl.number <= 0 {
			sl.number = i + 1
		}
		switch {
		case s.spanSec > 0:
			sl.start = numeric.Clamp((p.Timestamp-s.firstTs)/s.spanSec, 0, 1)
		case n > 1:
			sl.start = float64(i) / float64(n-1)
		}
		if hasSrc {
			sl.forward = isForward(p.FiveTuple, src)
		}
		s.slots[i] = sl
	}
	for i := range s.slots {
		if i+1 < n {
			s.slots[i].gap = s.slots[i+1].start - s.slots[i].start
		} else {
			s.slots[i].gap = lastGap
		}
	}
	return s
}

// isForward compares the packet source with the nominal connection source.
// A virtual port of "0" (flood aggregates) compares addresses only.
func isForward(ft types.FiveTuple, src topology.ConnectionKey) bool {
	if src.SrcPort == "0" {
		return ft.SrcIP == src.SrcIP
	}
	return ft.SrcIP == src.SrcIP && ft.SrcPort == src.SrcPort
}

func (s *Scheduler) ConnectionID() string { return s.opts.ConnectionID }

// SetLoop switches wrap-around handling and re-applies the current time.
func (s *Scheduler) SetLoop(loop bool) {
	s.opts.Loop = loop
	s.SetGlobalTime(s.elapsedMs, s.durationMs)
}

func (s *Scheduler) SetShowLabels(show bool) { s.opts.ShowLabels = show }

func (s *Scheduler) Len() int { return len(s.slots) }

// SpanSec is the real time between the first and last packet.
func (s *Scheduler) SpanSec() float64 { return s.spanSec }

func (s *Scheduler) Progress() float64 { return s.progress }

func (s *Scheduler) DurationMs() float64 { return s.durationMs }

// CurrentTimestamp maps the current progress back onto capture time.
func (s *Scheduler) CurrentTimestamp() float64 {
	return s.firstTs + s.progress*s.spanSec
}

// SetGlobalTime moves the scheduler to a master time. A non-positive
// duration falls back to DefaultDurationMs.
func (s *Scheduler) SetGlobalTime(elapsedMs, durationMs float64) {
	if durationMs <= 0 || !numeric.Finite(durationMs) {
		durationMs = DefaultDurationMs
	}
	if !numeric.Finite(elapsedMs) {
		elapsedMs = 0
	}
	s.durationMs = durationMs
	s.elapsedMs = elapsedMs
	p := elapsedMs / durationMs
	if s.opts.Loop {
		s.progress = numeric.Wrap(p)
	} else {
		s.progress = numeric.Clamp(p, 0, 1)
	}
}

// window is the fraction of the master duration a particle spends in
// flight: half the gap to the next packet, clamped in wall time.
func (s *Scheduler) window(sl slot) float64 {
	travel := numeric.Clamp(0.5*sl.gap*s.durationMs, s.opts.MinTravelMs, s.opts.MaxTravelMs)
	return travel / s.durationMs
}

// travel returns how far along its window the slot is at progress p.
func (s *Scheduler) travel(sl slot, p float64) (float64, bool) {
	w := s.window(sl)
	if p >= sl.start && p < sl.start+w {
		return (p - sl.start) / w, true
	}
	if s.opts.Loop {
		if q := p + 1; q >= sl.start && q < sl.start+w {
			return (q - sl.start) / w, true
		}
	}
	return 0, false
}

// ActiveParticles returns the packets currently in flight, in capture order.
func (s *Scheduler) ActiveParticles() []Particle {
	var out []Particle
	for _, sl := range s.slots {
		t, ok := s.travel(sl, s.progress)
		if !ok {
			continue
		}
		out = append(out, s.particle(sl, t))
	}
	return out
}

func (s *Scheduler) particle(sl slot, t float64) Particle {
	pos := t
	dir := types.DirectionForward
	if !sl.forward {
		pos = 1 - t
		dir = types.DirectionBackward
	}
	phase, scale, opacity, local := Lifecycle(t)
	base := BaseSize(sl.packet.Length)

	p := Particle{
		Index:         sl.number,
		ConnectionID:  sl.packet.ConnectionID,
		Position:      numeric.Clamp(pos, 0, 1),
		Travel:        t,
		Direction:     dir.String(),
		Forward:       sl.forward,
		BaseSize:      base,
		Size:          base * scale,
		Scale:         scale,
		Opacity:       opacity,
		Phase:         phase,
		PhaseProgress: local,
		Color:         catalog.Hex(Color(sl.packet)),
		IsError:       sl.packet.ErrorType != "",
		ErrorType:     sl.packet.ErrorType,
	}
	if s.opts.ShowLabels {
		p.Label = Label(sl.packet, sl.number)
	}
	return p
}

// NextPacketMs returns the master time of the first packet after the
// current position. When looping it wraps to the first packet.
func (s *Scheduler) NextPacketMs() (float64, bool) {
	for _, sl := range s.slots {
		if sl.start > s.progress+stepEpsilon {
			return sl.start * s.durationMs, true
		}
	}
	if s.opts.Loop && len(s.slots) > 0 {
		return s.slots[0].start * s.durationMs, true
	}
	return 0, false
}

// PrevPacketMs is the mirror of NextPacketMs.
func (s *Scheduler) PrevPacketMs() (float64, bool) {
	for i := len(s.slots) - 1; i >= 0; i-- {
		if s.slots[i].start < s.progress-stepEpsilon {
			return s.slots[i].start * s.durationMs, true
		}
	}
	if s.opts.Loop && len(s.slots) > 0 {
		return s.slots[len(s.slots)-1].start * s.durationMs, true
	}
	return 0, false
}

// BaseSize grows with the logarithm of the packet length.
func BaseSize(length int) float64 {
	if length < 0 {
		length = 0
	}
	size := minSize + math.Log(float64(length)+1)/math.Log(65536)*(maxSize-minSize)
	return numeric.Clamp(size, minSize, maxSize)
}

// Color picks the particle color: error type, then TCP control flags, then
// UDP, then the default.
func Color(p types.PacketRecord) color.NRGBA {
	switch {
	case p.ErrorType != "":
		return catalog.ColorRed
	case p.Headers.TCP != nil:
		tcp := p.Headers.TCP
		if tcp.HasFlag("SYN") {
			return catalog.ColorEmerald
		}
		if tcp.HasFlag("FIN") || tcp.HasFlag("RST") {
			return catalog.ColorAmber
		}
	case p.Headers.UDP != nil:
		return catalog.ColorPurple
	}
	return catalog.ColorSky
}

// Label formats "#<n> <FLAGS|UDP|ICMP> <size>".
func Label(p types.PacketRecord, number int) string {
	parts := []string{fmt.Sprintf("#%d", number)}
	switch {
	case p.Headers.TCP != nil && len(p.Headers.TCP.Flags) > 0:
		parts = append(parts, strings.Join(p.Headers.TCP.Flags, "|"))
	case p.Headers.TCP != nil:
		parts = append(parts, "TCP")
	case p.Headers.UDP != nil:
		parts = append(parts, "UDP")
	case strings.EqualFold(p.FiveTuple.Protocol, "icmp"):
		parts = append(parts, "ICMP")
	}
	if p.Length > 1024 {
		parts = append(parts, fmt.Sprintf("%.1fKB", float64(p.Length)/1024))
	} else {
		parts = append(parts, fmt.Sprintf("%dB", p.Length))
	}
	return strings.Join(parts, " ")
}
