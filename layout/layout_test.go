package layout

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomGraph(n, m int, seed int64) ([]NodeSpec, []Edge) {
	rng := rand.New(rand.NewSource(seed))
	protocols := []string{"TCP", "UDP", "HTTP"}
	specs := make([]NodeSpec, n)
	for i := range specs {
		specs[i] = NodeSpec{ID: fmt.Sprintf("10.0.%d.%d", i/250, i%250), Protocol: protocols[i%len(protocols)]}
	}
	specs[0].Hub = true
	edges := make([]Edge, m)
	for i := range edges {
		edges[i] = Edge{Source: specs[rng.Intn(n)].ID, Target: specs[rng.Intn(n)].ID}
	}
	return specs, edges
}

func TestPairForcesAreAntiSymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	nodes := make([]Node, 40)
	for i := range nodes {
		nodes[i] = Node{ID: fmt.Sprint(i), Pos: Vec{rng.Float64() * 800, rng.Float64() * 800}}
	}
	// Two coincident nodes exercise the collision fallback direction.
	nodes[1].Pos = nodes[0].Pos
	edges := []Edge{{"0", "5"}, {"3", "9"}, {"12", "30"}, {"7", "7"}, {"8", "missing"}}

	p := DeriveParams(len(nodes), 800, 800)
	p.Terms = TermRepulsion | TermSpring | TermCollision

	var sum Vec
	var magnitude float64
	for _, f := range ComputeForces(nodes, edges, p) {
		sum = sum.Add(f)
		magnitude += f.Len()
	}
	require.Greater(t, magnitude, 0.0)
	assert.Less(t, sum.Len(), 1e-9*magnitude)
}

func TestTwoNodeSpringConverges(t *testing.T) {
	p := Params{
		Width: 2000, Height: 2000, Padding: 40,
		LinkDistance: 200, SpringStrength: 0.05,
		CollisionRadius: 10, CollisionStrength: 0.5,
		BoundaryMargin: 80, BoundaryStrength: 1,
		Damping: 0.6, MaxVelocity: 40, Epsilon: 0.01,
		Terms: TermSpring | TermCollision | TermBoundary,
	}
	nodes := []Node{
		{ID: "hub", Pos: Vec{1000, 1000}, Pinned: true},
		{ID: "leaf", Pos: Vec{1050, 1000}},
	}
	edges := []Edge{{"hub", "leaf"}}

	prev := 50.0
	for i := 0; i < 300; i++ {
		nodes, _ = Integrate(nodes, ComputeForces(nodes, edges, p), p)
		d := nodes[1].Pos.Sub(nodes[0].Pos).Len()
		require.GreaterOrEqual(t, d, prev-1e-9, "iteration %d", i)
		require.LessOrEqual(t, d, 2*p.LinkDistance, "iteration %d", i)
		prev = d
	}
	assert.InDelta(t, 200, prev, 1)
	assert.Equal(t, Vec{1000, 1000}, nodes[0].Pos)
}

func TestPositionsStayInBounds(t *testing.T) {
	specs, edges := randomGraph(500, 700, 3)
	e := New(specs, edges, Config{Width: 1200, Height: 900, Seed: 1})
	p := e.Params()

	for tick := 0; tick < 60; tick++ {
		e.Tick()
		for id, pos := range e.Positions() {
			if pos.X < p.Padding || pos.X > p.Width-p.Padding || pos.Y < p.Padding || pos.Y > p.Height-p.Padding {
				t.Fatalf("tick %d: node %s escaped to %+v", tick, id, pos)
			}
		}
	}
	assert.Equal(t, 0, e.Recovered())
}

func TestHubIsPinnedAtCenter(t *testing.T) {
	specs, edges := randomGraph(30, 40, 11)
	e := New(specs, edges, Config{Width: 1000, Height: 1000, PreStabilizeIterations: 20})
	for i := 0; i < 20; i++ {
		e.Tick()
	}
	assert.Equal(t, specs[0].ID, e.Hub())
	pos, ok := e.Position(specs[0].ID)
	require.True(t, ok)
	assert.Equal(t, Vec{500, 500}, pos)
}

func TestNonFiniteNodesRecover(t *testing.T) {
	p := DeriveParams(3, 1000, 1000)
	nodes := []Node{
		{ID: "a", Pos: Vec{math.NaN(), 10}},
		{ID: "b", Pos: Vec{300, 300}, Vel: Vec{math.Inf(1), 0}},
		{ID: "c", Pos: Vec{600, 600}},
	}
	out, recovered := Integrate(nodes, map[string]Vec{"c": {X: math.NaN()}}, p)
	assert.Equal(t, 3, recovered)
	for _, nd := range out {
		assert.Equal(t, p.Center(), nd.Pos, nd.ID)
		assert.Equal(t, Vec{}, nd.Vel, nd.ID)
	}
}

func TestSeedingUsesProtocolSectors(t *testing.T) {
	var specs []NodeSpec
	for i := 0; i < 20; i++ {
		proto := "TCP"
		if i%2 == 1 {
			proto = "UDP"
		}
		specs = append(specs, NodeSpec{ID: fmt.Sprint(i), Protocol: proto})
	}
	e := New(specs, nil, Config{Width: 1000, Height: 1000, Seed: 5})
	for _, s := range specs {
		pos, ok := e.Position(s.ID)
		require.True(t, ok)
		if s.Protocol == "TCP" {
			assert.GreaterOrEqual(t, pos.Y, 500.0, s.ID)
		} else {
			assert.LessOrEqual(t, pos.Y, 500.0, s.ID)
		}
		assert.Greater(t, math.Hypot(pos.X-500, pos.Y-500), 100.0)
	}
}

func TestDragSuspendsPhysics(t *testing.T) {
	specs, edges := randomGraph(10, 15, 2)
	e := New(specs, edges, Config{Width: 1000, Height: 1000})
	id := specs[4].ID

	require.True(t, e.BeginDrag(id))
	require.True(t, e.DragTo(id, -500, 2000))
	p := e.Params()
	want := Vec{p.Padding, p.Height - p.Padding}
	for i := 0; i < 10; i++ {
		e.Tick()
		pos, _ := e.Position(id)
		require.Equal(t, want, pos)
	}

	e.EndDrag(id)
	e.Tick()
	e.Tick()
	pos, _ := e.Position(id)
	assert.NotEqual(t, want, pos)

	assert.False(t, e.BeginDrag("nope"))
	assert.False(t, e.DragTo(id, 1, 1), "not dragged any more")
}

func TestStableIsReportedOnce(t *testing.T) {
	specs, edges := randomGraph(6, 6, 9)
	e := New(specs, edges, Config{Width: 1000, Height: 1000})
	reported := 0
	for i := 0; i < 3000; i++ {
		e.Tick()
		if e.ConsumeStable() {
			reported++
		}
	}
	assert.True(t, e.Stable())
	assert.Equal(t, 1, reported)
}

func TestDeriveParamsScaling(t *testing.T) {
	small := DeriveParams(5, 1000, 1000)
	large := DeriveParams(5000, 1000, 1000)
	assert.Greater(t, small.LinkDistance, large.LinkDistance)
	assert.GreaterOrEqual(t, large.LinkDistance, 50.0)
	assert.LessOrEqual(t, small.LinkDistance, 300.0)

	doubled := DeriveParams(50, 2000, 2000)
	base := DeriveParams(50, 1000, 1000)
	assert.InDelta(t, 2*base.LinkDistance, doubled.LinkDistance, 1e-9)
	assert.InDelta(t, 2*base.Padding, doubled.Padding, 1e-9)
	assert.InDelta(t, 2*base.MaxVelocity, doubled.MaxVelocity, 1e-9)
}

func TestForceProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	p := DeriveParams(10, 800, 800)
	coord := gen.Float64Range(0, 800)

	properties.Property("pair forces cancel out", prop.ForAll(
		func(ax, ay, bx, by, cx, cy float64) bool {
			nodes := []Node{
				{ID: "a", Pos: Vec{ax, ay}},
				{ID: "b", Pos: Vec{bx, by}},
				{ID: "c", Pos: Vec{cx, cy}},
			}
			q := p
			q.Terms = TermRepulsion | TermSpring | TermCollision
			var sum Vec
			var magnitude float64
			for _, f := range ComputeForces(nodes, []Edge{{"a", "b"}, {"b", "c"}}, q) {
				sum = sum.Add(f)
				magnitude += f.Len()
			}
			return sum.Len() <= 1e-9*magnitude+1e-12
		},
		coord, coord, coord, coord, coord, coord,
	))

	properties.Property("integration keeps nodes on the canvas", prop.ForAll(
		func(x, y, fx, fy float64) bool {
			nodes := []Node{{ID: "n", Pos: Vec{x, y}}}
			out, _ := Integrate(nodes, map[string]Vec{"n": {fx, fy}}, p)
			pos := out[0].Pos
			return pos.X >= p.Padding && pos.X <= p.Width-p.Padding &&
				pos.Y >= p.Padding && pos.Y <= p.Height-p.Padding
		},
		coord, coord, gen.Float64Range(-1e6, 1e6), gen.Float64Range(-1e6, 1e6),
	))

	properties.TestingRun(t)
}
