package layout

import (
	"math"
	"math/rand"
	"sort"

	"github.com/samaelod/flowmap/numeric"
)

// NodeSpec seeds one node.
type NodeSpec struct {
	ID       string
	Protocol string // primary protocol, selects the seeding sector
	Hub      bool
}

// Config tunes an Engine. Zero fields fall back to derived defaults.
type Config struct {
	Width                  float64
	Height                 float64
	Padding                float64
	Damping                float64
	SpringStrength         float64
	StableThreshold        float64 // mean kinetic energy per free node
	PreStabilizeIterations int
	Seed                   int64
}

// maxPreStabilizePairs bounds the pair evaluations spent before first render.
const maxPreStabilizePairs = 50_000_000

// Engine owns the node position map. It is not safe for concurrent use;
// the orchestrator drives it from a single goroutine.
type Engine struct {
	params Params
	nodes  []Node
	edges  []Edge
	index  map[string]int
	hub    string

	front map[string]Vec
	back  map[string]Vec

	stableThreshold float64
	kinetic         float64
	stable          bool
	stableReported  bool
	recovered       int
	ticks           int
}

// New seeds the nodes in per-protocol angular sectors around the center,
// pins the hub and pre-stabilizes.
func New(specs []NodeSpec, edges []Edge, cfg Config) *Engine {
	p := DeriveParams(len(specs), cfg.Width, cfg.Height)
	if cfg.Padding > 0 {
		p.Padding = cfg.Padding
		p.BoundaryMargin = 2 * cfg.Padding
		p.BoundaryStrength = 0.5 * p.MaxVelocity * cfg.Padding * cfg.Padding
	}
	if cfg.Damping > 0 && cfg.Damping < 1 {
		p.Damping = cfg.Damping
	}
	if cfg.SpringStrength > 0 {
		p.SpringStrength = cfg.SpringStrength
	}

	e := &Engine{
		params: p,
		edges:  append([]Edge(nil), edges...),
		index:  make(map[string]int, len(specs)),
		front:  make(map[string]Vec, len(specs)),
		back:   make(map[string]Vec, len(specs)),
	}
	e.stableThreshold = cfg.StableThreshold
	if e.stableThreshold <= 0 {
		v := 0.01 * p.MaxVelocity
		e.stableThreshold = 0.5 * v * v
	}

	e.seed(specs, rand.New(rand.NewSource(cfg.Seed)))
	e.publish()

	iters := cfg.PreStabilizeIterations
	if n := len(e.nodes); n > 1 && iters*n*n > maxPreStabilizePairs {
		iters = max(1, maxPreStabilizePairs/(n*n))
	}
	for i := 0; i < iters; i++ {
		e.Tick()
	}
	return e
}

func (e *Engine) seed(specs []NodeSpec, rng *rand.Rand) {
	sectors := map[string]int{}
	for _, s := range specs {
		sectors[s.Protocol] = 0
	}
	protocols := make([]string, 0, len(sectors))
	for p := range sectors {
		protocols = append(protocols, p)
	}
	sort.Strings(protocols)
	for i, p := range protocols {
		sectors[p] = i
	}
	width := 2 * math.Pi / float64(max(len(protocols), 1))
	size := math.Min(e.params.Width, e.params.Height)
	center := e.params.Center()

	e.nodes = make([]Node, 0, len(specs))
	for _, s := range specs {
		if _, dup := e.index[s.ID]; dup {
			continue
		}
		nd := Node{ID: s.ID, Pinned: s.Hub && e.hub == ""}
		if nd.Pinned {
			e.hub = s.ID
			nd.Pos = center
		} else {
			angle := (float64(sectors[s.Protocol]) + rng.Float64()) * width
			radius := (0.15 + 0.3*rng.Float64()) * size
			nd.Pos = clampToCanvas(Vec{
				X: center.X + radius*math.Cos(angle),
				Y: center.Y + radius*math.Sin(angle),
			}, e.params)
		}
		e.index[s.ID] = len(e.nodes)
		e.nodes = append(e.nodes, nd)
	}
}

// Tick runs one force/integration step and publishes the new positions
// in one swap.
func (e *Engine) Tick() {
	forces := ComputeForces(e.nodes, e.edges, e.params)
	nodes, recovered := Integrate(e.nodes, forces, e.params)
	e.nodes = nodes
	e.recovered += recovered
	e.ticks++

	var ke float64
	free := 0
	for _, nd := range e.nodes {
		if nd.Pinned || nd.Dragged {
			continue
		}
		ke += 0.5 * (nd.Vel.X*nd.Vel.X + nd.Vel.Y*nd.Vel.Y)
		free++
	}
	if free > 0 {
		ke /= float64(free)
	}
	e.kinetic = ke
	e.stable = ke < e.stableThreshold
	e.publish()
}

func (e *Engine) publish() {
	clear(e.back)
	for _, nd := range e.nodes {
		e.back[nd.ID] = nd.Pos
	}
	e.front, e.back = e.back, e.front
}

// Positions is the published position map. It is read-only and valid until
// the next Tick.
func (e *Engine) Positions() map[string]Vec {
	return e.front
}

func (e *Engine) Position(id string) (Vec, bool) {
	v, ok := e.front[id]
	return v, ok
}

// Nodes returns a copy of the physical state.
func (e *Engine) Nodes() []Node {
	return append([]Node(nil), e.nodes...)
}

func (e *Engine) Params() Params { return e.params }

func (e *Engine) Hub() string { return e.hub }

func (e *Engine) KineticEnergy() float64 { return e.kinetic }

func (e *Engine) Stable() bool { return e.stable }

// Recovered counts nodes reset to the center after going non-finite.
func (e *Engine) Recovered() int { return e.recovered }

func (e *Engine) Ticks() int { return e.ticks }

// ConsumeStable returns true exactly once, the first time the layout is
// observed stable.
func (e *Engine) ConsumeStable() bool {
	if !e.stable || e.stableReported {
		return false
	}
	e.stableReported = true
	return true
}

// BeginDrag takes ownership of a node's position until EndDrag.
func (e *Engine) BeginDrag(id string) bool {
	i, ok := e.index[id]
	if !ok {
		return false
	}
	e.nodes[i].Dragged = true
	e.nodes[i].Vel = Vec{}
	return true
}

// DragTo moves a dragged node; the position is clamped to the canvas.
func (e *Engine) DragTo(id string, x, y float64) bool {
	i, ok := e.index[id]
	if !ok || !e.nodes[i].Dragged || !numeric.Finite(x, y) {
		return false
	}
	pos := clampToCanvas(Vec{x, y}, e.params)
	e.nodes[i].Pos = pos
	e.front[id] = pos
	return true
}

// EndDrag hands the node back to the simulation. A dragged hub stays
// pinned where it was dropped.
func (e *Engine) EndDrag(id string) {
	if i, ok := e.index[id]; ok {
		e.nodes[i].Dragged = false
		e.nodes[i].Vel = Vec{}
	}
}
