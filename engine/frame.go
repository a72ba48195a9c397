package engine

import (
	"github.com/samaelod/flowmap/particles"
	"github.com/samaelod/flowmap/timeline"
	"github.com/samaelod/flowmap/topology"
)

// Frame is an immutable snapshot of one tick, built after the layout has
// published its positions.
type Frame struct {
	DatasetID    string  `json:"datasetId"`
	Tick         int     `json:"tick"`
	MasterMs     float64 `json:"masterMs"`
	DurationMs   float64 `json:"durationMs"`
	Progress     float64 `json:"progress"`
	Playing      bool    `json:"playing"`
	Loop         bool    `json:"loop"`
	Speed        float64 `json:"speed"`
	DiagramSpeed float64 `json:"diagramSpeed"`
	Stable       bool    `json:"stable"`
	Width        float64 `json:"width"`
	Height       float64 `json:"height"`

	Nodes       []NodeState          `json:"nodes"`
	Connections []ConnectionState    `json:"connections"`
	Aggregates  []topology.Aggregate `json:"aggregates"`
	Particles   []particles.Particle `json:"particles"`
	Active      string               `json:"activeConnection,omitempty"`
	ActiveTime  float64              `json:"activeTimestamp,omitempty"`
}

type NodeState struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	IsCenter  bool     `json:"isCenter"`
	Degree    int      `json:"degree"`
	Protocols []string `json:"protocols"`
}

// ConnectionState is a controller's renderable state plus its endpoints.
type ConnectionState struct {
	timeline.Renderable
	Source    string `json:"source"`
	Target    string `json:"target"`
	Aggregate string `json:"aggregate"`
}

// Frame builds the renderable snapshot. Connections whose endpoints have
// no position are left out.
func (e *Engine) Frame() Frame {
	f := Frame{
		DatasetID:    e.datasetID,
		Tick:         e.ticks,
		MasterMs:     e.masterMs,
		DurationMs:   e.durationMs,
		Progress:     e.Progress(),
		Playing:      e.playing,
		Loop:         e.loop,
		Speed:        e.speed,
		DiagramSpeed: e.diagramSpeed,
		Width:        e.cfg.Canvas.Width,
		Height:       e.cfg.Canvas.Height,
		Aggregates:   e.graph.Aggregates,
		Active:       e.active,
	}
	if e.layout == nil {
		return f
	}

	p := e.layout.Params()
	f.Width, f.Height = p.Width, p.Height
	f.Stable = e.layout.Stable()

	pos := e.layout.Positions()
	f.Nodes = make([]NodeState, 0, len(e.graph.Nodes))
	for _, n := range e.graph.Nodes {
		v, ok := pos[n.ID]
		if !ok {
			continue
		}
		f.Nodes = append(f.Nodes, NodeState{
			ID:        n.ID,
			Label:     n.Label,
			X:         v.X,
			Y:         v.Y,
			IsCenter:  n.IsHub,
			Degree:    n.Degree,
			Protocols: n.Protocols,
		})
	}

	f.Connections = make([]ConnectionState, 0, len(e.graph.Edges))
	for _, edge := range e.graph.Edges {
		if _, ok := pos[edge.Source]; !ok {
			continue
		}
		if _, ok := pos[edge.Target]; !ok {
			continue
		}
		f.Connections = append(f.Connections, ConnectionState{
			Renderable: e.controller(edge).ctrl.Renderable(),
			Source:     edge.Source,
			Target:     edge.Target,
			Aggregate:  edge.Aggregate,
		})
	}

	if e.scheduler != nil {
		f.Particles = e.scheduler.ActiveParticles()
		f.ActiveTime = e.scheduler.CurrentTimestamp()
	}
	e.Metrics.ParticlesActive.Set(float64(len(f.Particles)))
	return f
}
