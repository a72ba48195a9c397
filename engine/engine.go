package engine

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/samaelod/flowmap/catalog"
	"github.com/samaelod/flowmap/config"
	"github.com/samaelod/flowmap/layout"
	"github.com/samaelod/flowmap/metrics"
	"github.com/samaelod/flowmap/numeric"
	"github.com/samaelod/flowmap/particles"
	"github.com/samaelod/flowmap/timeline"
	"github.com/samaelod/flowmap/topology"
	"github.com/samaelod/flowmap/types"
)

const (
	MinSpeed = 0.1
	MaxSpeed = 10.0
)

// Engine is the global clock: it owns master time, the timeline controllers
// of every connection, the particle scheduler of the selected connection and
// the layout. It is not safe for concurrent use; Run serializes access when
// it is driven from several goroutines.
type Engine struct {
	Log     *Logger
	Metrics *metrics.Registry

	cfg *config.Config

	dataset   *types.Dataset
	datasetID string
	graph     *topology.Graph
	layout    *layout.Engine

	controllers map[string]*slot
	scheduler   *particles.Scheduler
	active      string

	masterMs     float64
	durationMs   float64
	playing      bool
	loop         bool
	speed        float64
	diagramSpeed float64

	ticks        int
	stableLogged bool
	recovered    int // layout recoveries already reported

	commands chan Command
}

// slot is a lazily created controller plus the time it has been held in
// the completed state.
type slot struct {
	ctrl   *timeline.Controller
	heldMs float64
}

// NewEngine creates an orchestrator with no dataset. A nil cfg uses the
// defaults; a nil registry gets a private one.
func NewEngine(cfg *config.Config, logPath string, reg *metrics.Registry) *Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	e := &Engine{
		Log:          NewLogger(logPath, cfg.LogLines, ParseLevel(cfg.LogLevel)),
		Metrics:      reg,
		cfg:          cfg,
		graph:        topology.Build(nil),
		controllers:  make(map[string]*slot),
		loop:         cfg.Playback.Loop,
		speed:        numeric.Clamp(cfg.Playback.Speed, MinSpeed, MaxSpeed),
		diagramSpeed: numeric.Clamp(cfg.Playback.DiagramSpeed, 0, MaxSpeed),
		commands:     make(chan Command, 64),
	}
	e.durationMs = e.baseDurationMs()
	return e
}

func (e *Engine) Config() *config.Config { return e.cfg }

// LoadDataset replaces the current dataset. All controllers and the
// particle scheduler are released; a selection whose connection is still
// present is rebuilt from the new packets. Master time rewinds to zero.
func (e *Engine) LoadDataset(ds *types.Dataset) {
	if ds == nil {
		ds = &types.Dataset{}
	}
	if ds.PacketsByConnection == nil {
		ds.IndexPackets()
	}

	g := topology.Build(ds.Timelines)
	dropped := map[string]int{}
	for _, d := range g.Dropped {
		dropped[d.Reason]++
		e.Log.Debugf("Dropped connection %q (%s)", d.ID, d.Reason)
	}

	// Every controller and the scheduler hold the old timeline and packets,
	// so none of them survive a reload. Controllers come back lazily.
	pruned := len(e.controllers)
	clear(e.controllers)
	reselect := e.active
	if reselect != "" && !g.HasEdge(reselect) {
		e.Log.Infof("Selected connection %s is gone, clearing selection", reselect)
		reselect = ""
	}
	e.clearSelection()

	specs := make([]layout.NodeSpec, len(g.Nodes))
	for i, n := range g.Nodes {
		specs[i] = layout.NodeSpec{ID: n.ID, Protocol: n.PrimaryProtocol(), Hub: n.IsHub}
	}
	edges := make([]layout.Edge, len(g.Edges))
	for i, ed := range g.Edges {
		edges[i] = layout.Edge{Source: ed.Source, Target: ed.Target}
	}

	lc := e.cfg.Layout
	e.layout = layout.New(specs, edges, layout.Config{
		Width:                  e.cfg.Canvas.Width,
		Height:                 e.cfg.Canvas.Height,
		Padding:                e.cfg.Canvas.Padding,
		Damping:                lc.Damping,
		SpringStrength:         lc.SpringStrength,
		StableThreshold:        lc.StableThreshold,
		PreStabilizeIterations: lc.PreStabilizeIterations,
		Seed:                   lc.Seed,
	})
	e.stableLogged = false
	e.recovered = 0

	e.dataset = ds
	e.graph = g
	e.datasetID = uuid.New().String()

	e.Log.Infof("Loaded %d connections between %d endpoints (hub %s, %d dropped, %d controllers pruned)",
		len(g.Edges), len(g.Nodes), g.Hub, len(g.Dropped), pruned)
	e.Metrics.RecordDataset(len(g.Nodes), len(g.Edges), dropped, pruned)
	e.Metrics.ControllersActive.Set(float64(len(e.controllers)))

	if reselect != "" && e.SelectConnection(reselect) {
		return
	}
	e.Seek(0)
}

func (e *Engine) Dataset() *types.Dataset { return e.dataset }

func (e *Engine) DatasetID() string { return e.datasetID }

func (e *Engine) Graph() *topology.Graph { return e.graph }

func (e *Engine) Layout() *layout.Engine { return e.layout }

// controller returns the controller of edge, creating it on first use.
func (e *Engine) controller(edge topology.Edge) *slot {
	if s, ok := e.controllers[edge.ID]; ok {
		return s
	}
	kind := catalog.ParseKind(edge.ProtocolType).String()
	ctrl := timeline.New(edge.Timeline, timeline.Hooks{
		OnStageEnter: func(id string, index int, stage catalog.Stage) {
			e.Log.Debugf("%s: stage %d %s", id, index, stage.Label)
			e.Metrics.RecordStageEnter(kind)
		},
		OnComplete: func(id, finalState string) {
			e.Log.Debugf("%s: %s", id, finalState)
			e.Metrics.RecordCompletion(finalState)
		},
	})
	ctrl.SetPlaybackSpeed(e.diagramSpeed)
	ctrl.SeekToProgress(e.Progress())
	s := &slot{ctrl: ctrl}
	e.controllers[edge.ID] = s
	e.Metrics.ControllersActive.Set(float64(len(e.controllers)))
	return s
}

// Controller returns the controller of a connection, creating it if the
// connection is part of the dataset.
func (e *Engine) Controller(id string) (*timeline.Controller, bool) {
	edge, ok := e.graph.Edge(id)
	if !ok {
		return nil, false
	}
	return e.controller(edge).ctrl, true
}

// Tick advances the clock by a measured wall-clock delta in milliseconds.
// The delta is clamped to max_delta_ms. The layout ticks even while paused.
func (e *Engine) Tick(wallDeltaMs float64) {
	start := time.Now()

	dt := wallDeltaMs
	if !numeric.Finite(dt) || dt < 0 {
		dt = 0
	}
	clamped := false
	if limit := e.cfg.Playback.MaxDeltaMs; limit > 0 && dt > limit {
		dt = limit
		clamped = true
	}

	if e.playing && dt > 0 {
		e.advanceMaster(dt * e.speed)
		if e.scheduler != nil {
			e.scheduler.SetGlobalTime(e.masterMs, e.durationMs)
		}
		e.advanceControllers(dt)
	}

	if e.layout != nil {
		e.layout.Tick()
		stable := e.layout.Stable()
		if stable && !e.stableLogged {
			e.stableLogged = true
			e.Log.Infof("Layout stable after %d ticks", e.layout.Ticks())
		}
		recovered := e.layout.Recovered()
		if recovered > e.recovered {
			e.Log.Warnf("Layout reset %d non-finite nodes", recovered-e.recovered)
		}
		e.Metrics.RecordLayout(e.layout.KineticEnergy(), stable, recovered-e.recovered)
		e.recovered = recovered
	}

	e.ticks++
	e.Metrics.RecordTick(time.Since(start), e.Progress(), e.playing, clamped)
}

func (e *Engine) advanceMaster(d float64) {
	t := e.masterMs + d
	if t >= e.durationMs {
		if e.loop {
			t = math.Mod(t, e.durationMs)
		} else {
			t = e.durationMs
			e.playing = false
			e.Log.Infof("Playback finished")
		}
	}
	e.masterMs = t
}

// advanceControllers moves every connection's controller by the wall delta;
// each applies the diagram speed itself. When looping, a completed
// controller is held for loop_hold_ms before rewinding.
func (e *Engine) advanceControllers(dt float64) {
	hold := e.cfg.Playback.LoopHoldMs
	for _, edge := range e.graph.Edges {
		s := e.controller(edge)
		wasCompleted := s.ctrl.Completed()
		s.ctrl.Advance(dt)
		if !e.loop || !s.ctrl.Completed() {
			s.heldMs = 0
			continue
		}
		if wasCompleted {
			s.heldMs += dt * e.diagramSpeed
		}
		if s.heldMs >= hold {
			s.ctrl.Reset()
			s.heldMs = 0
		}
	}
}

func (e *Engine) Ticks() int { return e.ticks }

func (e *Engine) MasterMs() float64 { return e.masterMs }

func (e *Engine) DurationMs() float64 { return e.durationMs }

// Progress is master time as a fraction of the master duration.
func (e *Engine) Progress() float64 {
	if e.durationMs <= 0 {
		return 0
	}
	return numeric.Clamp(e.masterMs/e.durationMs, 0, 1)
}

func (e *Engine) Playing() bool { return e.playing }

func (e *Engine) Loop() bool { return e.loop }

func (e *Engine) Speed() float64 { return e.speed }

func (e *Engine) DiagramSpeed() float64 { return e.diagramSpeed }

func (e *Engine) Active() string { return e.active }

func (e *Engine) Scheduler() *particles.Scheduler { return e.scheduler }

// Play resumes playback. A finished non-looping clock restarts from zero.
func (e *Engine) Play() {
	if !e.loop && e.masterMs >= e.durationMs {
		e.Seek(0)
	}
	e.playing = true
}

func (e *Engine) Pause() {
	e.playing = false
}

func (e *Engine) TogglePlay() {
	if e.playing {
		e.Pause()
	} else {
		e.Play()
	}
}

// Seek moves master time to ms and propagates it at once: the scheduler
// gets the new global time and every controller the new progress.
func (e *Engine) Seek(ms float64) {
	if !numeric.Finite(ms) {
		ms = 0
	}
	e.masterMs = numeric.Clamp(ms, 0, e.durationMs)
	if e.scheduler != nil {
		e.scheduler.SetGlobalTime(e.masterMs, e.durationMs)
	}
	p := e.Progress()
	for _, s := range e.controllers {
		s.ctrl.SeekToProgress(p)
		s.heldMs = 0
	}
}

func (e *Engine) SeekProgress(p float64) {
	if !numeric.Finite(p) {
		p = 0
	}
	e.Seek(numeric.Clamp(p, 0, 1) * e.durationMs)
}

// Step jumps to the next or previous packet of the selected connection, or
// by step_ms when nothing is selected.
func (e *Engine) Step(forward bool) {
	if e.scheduler != nil && e.scheduler.Len() > 0 {
		next, ok := e.scheduler.PrevPacketMs()
		if forward {
			next, ok = e.scheduler.NextPacketMs()
		}
		if ok {
			e.Seek(next)
		}
		return
	}

	d := e.cfg.Playback.StepMs
	if !forward {
		d = -d
	}
	t := e.masterMs + d
	if e.loop {
		t = numeric.Wrap(t/e.durationMs) * e.durationMs
	}
	e.Seek(t)
}

// SetSpeed sets the master clock multiplier, clamped to [MinSpeed, MaxSpeed].
func (e *Engine) SetSpeed(s float64) {
	if !numeric.Finite(s) {
		return
	}
	e.speed = numeric.Clamp(s, MinSpeed, MaxSpeed)
}

// SetDiagramSpeed sets the per-connection playback multiplier.
func (e *Engine) SetDiagramSpeed(s float64) {
	if !numeric.Finite(s) {
		return
	}
	e.diagramSpeed = numeric.Clamp(s, 0, MaxSpeed)
	for _, sl := range e.controllers {
		sl.ctrl.SetPlaybackSpeed(e.diagramSpeed)
	}
}

func (e *Engine) SetLoop(loop bool) {
	e.loop = loop
	if e.scheduler != nil {
		e.scheduler.SetLoop(loop)
	}
}

// SelectConnection attaches a particle scheduler to a connection. Master
// duration stretches to the connection's real packet span when that is
// longer than the configured duration.
func (e *Engine) SelectConnection(id string) bool {
	if !e.graph.HasEdge(id) {
		return false
	}
	var packets []types.PacketRecord
	if e.dataset != nil {
		packets = e.dataset.PacketsByConnection[id]
	}
	pc := e.cfg.Particles
	e.scheduler = particles.New(packets, particles.Options{
		ConnectionID: id,
		MinTravelMs:  pc.MinTravelMs,
		MaxTravelMs:  pc.MaxTravelMs,
		Loop:         e.loop,
		ShowLabels:   pc.ShowLabels,
	})
	e.active = id
	e.durationMs = math.Max(e.baseDurationMs(), e.scheduler.SpanSec()*1000)
	e.Log.Infof("Selected %s (%d packets, %.2fs span)", id, e.scheduler.Len(), e.scheduler.SpanSec())
	e.Seek(0)
	return true
}

func (e *Engine) ClearSelection() {
	if e.active == "" {
		return
	}
	e.clearSelection()
	e.Seek(e.masterMs)
}

func (e *Engine) clearSelection() {
	e.scheduler = nil
	e.active = ""
	e.durationMs = e.baseDurationMs()
}

// baseDurationMs is the configured master duration, or the default when
// the config carries none.
func (e *Engine) baseDurationMs() float64 {
	if d := e.cfg.Playback.MasterDurationMs; d > 0 && !math.IsInf(d, 0) {
		return d
	}
	return particles.DefaultDurationMs
}

// ConsumeStable reports the first time the layout settles, for a one-time
// fit-to-view.
func (e *Engine) ConsumeStable() bool {
	return e.layout != nil && e.layout.ConsumeStable()
}

func (e *Engine) BeginDrag(id string) bool {
	return e.layout != nil && e.layout.BeginDrag(id)
}

func (e *Engine) DragTo(id string, x, y float64) bool {
	return e.layout != nil && e.layout.DragTo(id, x, y)
}

func (e *Engine) EndDrag(id string) {
	if e.layout != nil {
		e.layout.EndDrag(id)
	}
}

// Close releases the logger.
func (e *Engine) Close() {
	e.Log.Close()
}
