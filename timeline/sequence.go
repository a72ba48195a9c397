// Package timeline drives one connection's multi-stage protocol exchange.
//
// Sequence and the package-level functions are pure: they map a stage list
// and an elapsed time to a State. Controller wraps them with the mutable
// playback cursor and the stage-enter and completion hooks.
package timeline

import (
	"math"
	"sort"

	"github.com/samaelod/flowmap/catalog"
	"github.com/samaelod/flowmap/numeric"
	"github.com/samaelod/flowmap/types"
)

// MinTotalDurationMs replaces a non-positive stage total so playback still
// terminates.
const MinTotalDurationMs = 1.0

// State is the playback cursor of one connection.
type State struct {
	StageIndex int
	ElapsedMs  float64
	Completed  bool
}

// Sequence is an immutable stage list with its prefix sums.
type Sequence struct {
	stages []catalog.Stage
	ends   []float64
	total  float64
}

func NewSequence(stages []catalog.Stage) Sequence {
	s := Sequence{
		stages: append([]catalog.Stage(nil), stages...),
		ends:   make([]float64, len(stages)),
	}
	var acc float64
	for i, st := range s.stages {
		d := st.DurationMs
		if !numeric.Finite(d) || d < 0 {
			d = 0
		}
		s.stages[i].DurationMs = d
		acc += d
		s.ends[i] = acc
	}
	s.total = acc
	if s.total <= 0 {
		s.total = MinTotalDurationMs
	}
	return s
}

func (s Sequence) Len() int { return len(s.stages) }

func (s Sequence) TotalMs() float64 { return s.total }

func (s Sequence) Stage(i int) catalog.Stage {
	if i < 0 || i >= len(s.stages) {
		return catalog.Stage{}
	}
	return s.stages[i]
}

// StartMs is the elapsed time at which stage i begins.
func (s Sequence) StartMs(i int) float64 {
	if i <= 0 || len(s.ends) == 0 {
		return 0
	}
	if i > len(s.ends) {
		i = len(s.ends)
	}
	return s.ends[i-1]
}

// Resolve returns the state for an elapsed time, clamped to [0, total].
// The first stage whose cumulative end is at or beyond elapsed wins;
// reaching the total completes the sequence on its last stage.
func (s Sequence) Resolve(elapsedMs float64) State {
	if !numeric.Finite(elapsedMs) {
		elapsedMs = 0
	}
	elapsedMs = numeric.Clamp(elapsedMs, 0, s.total)
	last := len(s.stages) - 1
	if last < 0 {
		return State{ElapsedMs: elapsedMs, Completed: elapsedMs >= s.total}
	}
	if elapsedMs >= s.total {
		return State{StageIndex: last, ElapsedMs: s.total, Completed: true}
	}
	i := sort.SearchFloat64s(s.ends, elapsedMs)
	if i > last {
		i = last
	}
	return State{StageIndex: i, ElapsedMs: elapsedMs}
}

// Advance moves st forward by deltaMs scaled by speed. Negative or
// non-finite deltas leave the cursor in place.
func Advance(s Sequence, st State, deltaMs, speed float64) State {
	if st.Completed {
		return st
	}
	step := deltaMs * speed
	if !numeric.Finite(step) || step < 0 {
		step = 0
	}
	return s.Resolve(st.ElapsedMs + step)
}

// Seek jumps to an absolute elapsed time.
func Seek(s Sequence, ms float64) State {
	return s.Resolve(ms)
}

// SeekToProgress jumps to a fraction of the total.
func SeekToProgress(s Sequence, p float64) State {
	if !numeric.Finite(p) {
		p = 0
	}
	return s.Resolve(numeric.Clamp(p, 0, 1) * s.total)
}

// Progress is elapsed/total in [0,1].
func Progress(s Sequence, st State) float64 {
	return numeric.Clamp(st.ElapsedMs/s.total, 0, 1)
}

// StageProgress is the fraction of the current stage already played.
// A zero-length stage counts as fully played.
func StageProgress(s Sequence, st State) float64 {
	if s.Len() == 0 {
		return 0
	}
	d := s.Stage(st.StageIndex).DurationMs
	if d <= 0 {
		return 1
	}
	return numeric.Clamp((st.ElapsedMs-s.StartMs(st.StageIndex))/d, 0, 1)
}

// DotPosition maps stage progress to a position along the edge in [0,1].
func DotPosition(dir types.Direction, p float64) float64 {
	switch dir {
	case types.DirectionForward:
		return p
	case types.DirectionBackward:
		return 1 - p
	case types.DirectionBoth:
		return math.Sin(p*2*math.Pi)*0.5 + 0.5
	default:
		return 0.5
	}
}
