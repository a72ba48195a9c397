package particles

import "math"

// Phase of a particle along its path.
type Phase string

const (
	PhaseSpawn    Phase = "spawn"
	PhaseTransfer Phase = "transfer"
	PhaseArrive   Phase = "arrive"
)

const (
	spawnEnd    = 0.12
	arriveStart = 0.88

	overshoot = 1.4
	maxScale  = 1.3
	minScale  = 0.1
)

// Particle is one packet in flight.
type Particle struct {
	Index         int     `json:"index"`
	ConnectionID  string  `json:"connectionId"`
	Position      float64 `json:"position"` // along the edge, source end is 0
	Travel        float64 `json:"travel"`   // progress through the visibility window
	Direction     string  `json:"direction"`
	Forward       bool    `json:"-"`
	Size          float64 `json:"size"`
	BaseSize      float64 `json:"baseSize"`
	Scale         float64 `json:"scale"`
	Opacity       float64 `json:"opacity"`
	Phase         Phase   `json:"phase"`
	PhaseProgress float64 `json:"phaseProgress"`
	Color         string  `json:"color"`
	IsError       bool    `json:"isError"`
	ErrorType     string  `json:"errorType,omitempty"`
	Label         string  `json:"label,omitempty"`
}

// Lifecycle maps travel progress t in [0,1] to a phase, a scale, an opacity
// and the progress inside that phase. Spawn pops out with an ease-out-back
// overshoot; arrive shrinks with an ease-in curve.
func Lifecycle(t float64) (Phase, float64, float64, float64) {
	switch {
	case t < spawnEnd:
		local := t / spawnEnd
		u := local - 1
		scale := 1 + u*u*((overshoot+1)*u+overshoot)
		return PhaseSpawn, math.Max(0, math.Min(maxScale, scale)), math.Min(1, 2*local), local
	case t >= arriveStart:
		local := math.Min(1, (t-arriveStart)/(1-arriveStart))
		eased := local * local
		return PhaseArrive, math.Max(minScale, 1-0.9*eased), 1 - 0.8*eased, local
	default:
		return PhaseTransfer, 1, 1, (t - spawnEnd) / (arriveStart - spawnEnd)
	}
}
