// Package layout implements the continuous force-directed layout of the
// endpoint graph.
package layout

import (
	"math"

	"github.com/samaelod/flowmap/numeric"
)

// Vec is a 2D point or force.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (v Vec) Add(o Vec) Vec { return Vec{v.X + o.X, v.Y + o.Y} }

func (v Vec) Sub(o Vec) Vec { return Vec{v.X - o.X, v.Y - o.Y} }

func (v Vec) Scale(f float64) Vec { return Vec{v.X * f, v.Y * f} }

func (v Vec) Len() float64 { return math.Hypot(v.X, v.Y) }

func (v Vec) finite() bool { return numeric.Finite(v.X, v.Y) }

// Node is the physical state of one endpoint.
type Node struct {
	ID      string
	Pos     Vec
	Vel     Vec
	Pinned  bool // the hub; never integrated
	Dragged bool // held by the user; never integrated
}

// Edge is a spring between two node ids.
type Edge struct {
	Source string
	Target string
}

// Terms selects which forces ComputeForces applies.
type Terms uint8

const (
	TermRepulsion Terms = 1 << iota
	TermSpring
	TermGravity
	TermCollision
	TermBoundary

	TermAll = TermRepulsion | TermSpring | TermGravity | TermCollision | TermBoundary
)

// Params are the physical constants of one dataset.
type Params struct {
	Width   float64
	Height  float64
	Padding float64

	Repulsion         float64
	LinkDistance      float64
	SpringStrength    float64
	Gravity           float64
	CollisionRadius   float64
	CollisionStrength float64
	BoundaryMargin    float64
	BoundaryStrength  float64

	Damping     float64
	MaxVelocity float64
	Epsilon     float64

	Terms Terms
}

const (
	DefaultSpringStrength = 0.05
	DefaultDamping        = 0.6
)

// DeriveParams scales the constants with the square root of the node count
// and linearly with the canvas size.
func DeriveParams(nodeCount int, width, height float64) Params {
	if width <= 0 {
		width = 1000
	}
	if height <= 0 {
		height = width
	}
	size := math.Min(width, height)
	density := math.Sqrt(math.Max(float64(nodeCount), 1))

	link := numeric.Clamp(size/(1.5*density), 0.05*size, 0.3*size)
	padding := 0.04 * size
	maxVel := 0.02 * size

	return Params{
		Width:             width,
		Height:            height,
		Padding:           padding,
		Repulsion:         0.01 * link * link * link,
		LinkDistance:      link,
		SpringStrength:    DefaultSpringStrength,
		Gravity:           0.01 / density,
		CollisionRadius:   0.15 * link,
		CollisionStrength: 0.5,
		BoundaryMargin:    2 * padding,
		BoundaryStrength:  0.5 * maxVel * padding * padding,
		Damping:           DefaultDamping,
		MaxVelocity:       maxVel,
		Epsilon:           0.01,
		Terms:             TermAll,
	}
}

// Center of the canvas.
func (p Params) Center() Vec {
	return Vec{p.Width / 2, p.Height / 2}
}

// ComputeForces returns the net force on every node. Pair terms are applied
// anti-symmetrically; gravity and boundary terms skip pinned and dragged
// nodes.
func ComputeForces(nodes []Node, edges []Edge, p Params) map[string]Vec {
	n := len(nodes)
	forces := make([]Vec, n)
	index := make(map[string]int, n)
	for i, nd := range nodes {
		index[nd.ID] = i
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := nodes[i].Pos.Sub(nodes[j].Pos)
			dist := d.Len()
			if !numeric.Finite(dist) {
				continue
			}

			if p.Terms&TermRepulsion != 0 && dist >= p.Epsilon {
				f := d.Scale(p.Repulsion / (dist * dist * dist))
				forces[i] = forces[i].Add(f)
				forces[j] = forces[j].Sub(f)
			}

			if p.Terms&TermCollision != 0 && dist < 2*p.CollisionRadius {
				dir := d.Scale(1 / dist)
				if dist < p.Epsilon {
					// Coincident nodes: pick a fixed direction from the pair.
					a := float64(i*31+j) * 0.618033988749895 * 2 * math.Pi
					dir = Vec{math.Cos(a), math.Sin(a)}
				}
				f := dir.Scale((2*p.CollisionRadius - dist) * p.CollisionStrength)
				forces[i] = forces[i].Add(f)
				forces[j] = forces[j].Sub(f)
			}
		}
	}

	if p.Terms&TermSpring != 0 {
		for _, e := range edges {
			i, ok := index[e.Source]
			if !ok {
				continue
			}
			j, ok := index[e.Target]
			if !ok || i == j {
				continue
			}
			d := nodes[j].Pos.Sub(nodes[i].Pos)
			dist := d.Len()
			if !numeric.Finite(dist) || dist < p.Epsilon {
				continue
			}
			f := d.Scale(p.SpringStrength * (dist - p.LinkDistance) / dist)
			forces[i] = forces[i].Add(f)
			forces[j] = forces[j].Sub(f)
		}
	}

	center := p.Center()
	for i, nd := range nodes {
		if nd.Pinned || nd.Dragged {
			continue
		}
		if p.Terms&TermGravity != 0 {
			forces[i] = forces[i].Add(center.Sub(nd.Pos).Scale(p.Gravity))
		}
		if p.Terms&TermBoundary != 0 {
			forces[i] = forces[i].Add(boundaryForce(nd.Pos, p))
		}
	}

	out := make(map[string]Vec, n)
	for i, nd := range nodes {
		out[nd.ID] = forces[i]
	}
	return out
}

// boundaryForce pushes nodes inside the margin back with an inverse-square
// force, plus a radial push toward the center in corners.
func boundaryForce(pos Vec, p Params) Vec {
	var f Vec
	push := func(dist float64) float64 {
		dist = math.Max(dist, p.Epsilon)
		return p.BoundaryStrength / (dist * dist)
	}
	nearX, nearY := false, false
	if pos.X < p.BoundaryMargin {
		f.X += push(pos.X)
		nearX = true
	}
	if r := p.Width - pos.X; r < p.BoundaryMargin {
		f.X -= push(r)
		nearX = true
	}
	if pos.Y < p.BoundaryMargin {
		f.Y += push(pos.Y)
		nearY = true
	}
	if b := p.Height - pos.Y; b < p.BoundaryMargin {
		f.Y -= push(b)
		nearY = true
	}
	if nearX && nearY {
		toCenter := p.Center().Sub(pos)
		if l := toCenter.Len(); l > p.Epsilon {
			f = f.Add(toCenter.Scale(push(p.BoundaryMargin) / l))
		}
	}
	return f
}

// Integrate applies forces to free nodes and returns the updated copy plus
// the number of nodes reset after going non-finite.
func Integrate(nodes []Node, forces map[string]Vec, p Params) ([]Node, int) {
	out := make([]Node, len(nodes))
	recovered := 0
	for i, nd := range nodes {
		if !nd.Pinned && !nd.Dragged {
			nd.Vel = nd.Vel.Add(forces[nd.ID]).Scale(p.Damping)
			if speed := nd.Vel.Len(); speed > p.MaxVelocity {
				nd.Vel = nd.Vel.Scale(p.MaxVelocity / speed)
			}
			nd.Pos = clampToCanvas(nd.Pos.Add(nd.Vel), p)
		} else {
			nd.Vel = Vec{}
		}
		if !nd.Pos.finite() || !nd.Vel.finite() {
			nd.Pos = p.Center()
			nd.Vel = Vec{}
			recovered++
		}
		out[i] = nd
	}
	return out, recovered
}

func clampToCanvas(v Vec, p Params) Vec {
	return Vec{
		X: numeric.Clamp(v.X, p.Padding, p.Width-p.Padding),
		Y: numeric.Clamp(v.Y, p.Padding, p.Height-p.Padding),
	}
}
