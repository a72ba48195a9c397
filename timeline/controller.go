package timeline

import (
	"image/color"
	"strings"

	"github.com/samaelod/flowmap/catalog"
	"github.com/samaelod/flowmap/numeric"
	"github.com/samaelod/flowmap/types"
)

// Hooks are invoked synchronously from Advance, Seek and Reset.
type Hooks struct {
	OnStageEnter func(id string, index int, stage catalog.Stage)
	OnComplete   func(id string, finalState string)
}

// Effects are the per-stage visual flags.
type Effects struct {
	Blinking        bool
	Spinning        bool
	Pulsing         bool
	Opacity         float64
	ConnectionStyle catalog.ConnectionStyle
}

// Renderable is everything a presentation layer needs for one edge.
type Renderable struct {
	ConnectionID     string  `json:"connectionId"`
	Protocol         string  `json:"protocol"`
	ProtocolType     string  `json:"protocolType"`
	StageIndex       int     `json:"stageIndex"`
	StageCount       int     `json:"stageCount"`
	StageKey         string  `json:"stageKey"`
	StageLabel       string  `json:"stageLabel"`
	Direction        string  `json:"direction"`
	TimelineProgress float64 `json:"timelineProgress"`
	StageProgress    float64 `json:"stageProgress"`
	DotPosition      float64 `json:"dotPosition"`
	Color            string  `json:"color"`
	ConnectionStyle  string  `json:"connectionStyle"`
	Blinking         bool    `json:"blinking,omitempty"`
	Spinning         bool    `json:"spinning,omitempty"`
	Pulsing          bool    `json:"pulsing,omitempty"`
	Opacity          float64 `json:"opacity"`
	Completed        bool    `json:"completed"`
	FinalState       string  `json:"finalState,omitempty"`
}

// Controller owns the playback cursor of one connection.
type Controller struct {
	id       string
	protocol string
	entry    catalog.Entry
	seq      Sequence
	state    State
	speed    float64
	hooks    Hooks

	completionFired bool
}

// New builds a controller for tl. Embedded stages take precedence over the
// catalog entry of the timeline's protocol type.
func New(tl types.Timeline, hooks Hooks) *Controller {
	kind := catalog.ParseKind(tl.ProtocolType)
	entry := catalog.Lookup(kind, catalog.OptionsFromMetrics(tl.Metrics))
	if len(tl.Stages) > 0 {
		entry.Stages = catalog.StagesFromSpecs(tl.Stages)
	}
	return &Controller{
		id:       tl.ID,
		protocol: strings.ToLower(tl.Protocol),
		entry:    entry,
		seq:      NewSequence(entry.Stages),
		speed:    1,
		hooks:    hooks,
	}
}

func (c *Controller) ID() string { return c.id }

func (c *Controller) Entry() catalog.Entry { return c.entry }

func (c *Controller) Sequence() Sequence { return c.seq }

func (c *Controller) State() State { return c.state }

func (c *Controller) Speed() float64 { return c.speed }

func (c *Controller) Completed() bool { return c.state.Completed }

func (c *Controller) TotalDurationMs() float64 { return c.seq.TotalMs() }

// Advance moves the cursor forward by deltaMs of wall time. Every stage
// passed over is announced once, in order.
func (c *Controller) Advance(deltaMs float64) {
	prev := c.state
	next := Advance(c.seq, prev, deltaMs, c.speed)
	c.state = next
	if next.StageIndex > prev.StageIndex {
		for i := prev.StageIndex + 1; i <= next.StageIndex; i++ {
			c.enter(i)
		}
	}
	c.checkCompletion()
}

// Seek jumps to ms, clamped to [0, total].
func (c *Controller) Seek(ms float64) {
	c.jump(Seek(c.seq, ms))
}

// SeekToProgress jumps to p of the total, p clamped to [0,1].
func (c *Controller) SeekToProgress(p float64) {
	c.jump(SeekToProgress(c.seq, p))
}

// SetPlaybackSpeed sets the local speed multiplier; negative values stop.
func (c *Controller) SetPlaybackSpeed(s float64) {
	if s < 0 || !numeric.Finite(s) {
		s = 0
	}
	c.speed = s
}

// Reset rewinds to stage 0 and always re-announces it.
func (c *Controller) Reset() {
	c.state = c.seq.Resolve(0)
	c.completionFired = false
	c.enter(c.state.StageIndex)
	c.checkCompletion()
}

func (c *Controller) jump(next State) {
	prev := c.state
	c.state = next
	if !next.Completed {
		c.completionFired = false
	}
	if next.StageIndex != prev.StageIndex {
		c.enter(next.StageIndex)
	}
	c.checkCompletion()
}

func (c *Controller) enter(i int) {
	if c.hooks.OnStageEnter != nil && c.seq.Len() > 0 {
		c.hooks.OnStageEnter(c.id, i, c.seq.Stage(i))
	}
}

func (c *Controller) checkCompletion() {
	if !c.state.Completed || c.completionFired {
		return
	}
	c.completionFired = true
	if c.hooks.OnComplete != nil {
		c.hooks.OnComplete(c.id, c.FinalState())
	}
}

// FinalState is the completion token of the connection's kind.
func (c *Controller) FinalState() string {
	if c.entry.FinalState == "" {
		return "completed"
	}
	return c.entry.FinalState
}

func (c *Controller) CurrentStage() catalog.Stage {
	return c.seq.Stage(c.state.StageIndex)
}

func (c *Controller) Progress() float64 {
	return Progress(c.seq, c.state)
}

func (c *Controller) StageProgress() float64 {
	return StageProgress(c.seq, c.state)
}

func (c *Controller) DotPosition() float64 {
	if c.seq.Len() == 0 {
		return 0
	}
	return DotPosition(c.CurrentStage().Direction, c.StageProgress())
}

func (c *Controller) Effects() Effects {
	st := c.CurrentStage()
	fx := Effects{
		Blinking: st.Blinking,
		Spinning: st.Spinning,
		Pulsing:  st.Pulsing,
		Opacity:  1,
	}
	if st.Opacity > 0 {
		fx.Opacity = st.Opacity
	}
	switch {
	case st.Unreliable:
		fx.ConnectionStyle = catalog.StyleDashed
	case st.Encrypted:
		fx.ConnectionStyle = catalog.StyleEncrypted
	}
	return fx
}

// Color resolves the edge color: final color once completed, then the
// kind's color transition, then the stage color, then the protocol color.
func (c *Controller) Color() color.NRGBA {
	if c.state.Completed && catalog.IsSet(c.entry.FinalColor) {
		return c.entry.FinalColor
	}
	if len(c.entry.ColorTransition) > 0 {
		return catalog.Gradient(c.entry.ColorTransition, c.Progress())
	}
	if st := c.CurrentStage(); catalog.IsSet(st.Color) {
		return st.Color
	}
	return catalog.ProtocolColor(c.protocol)
}

// ConnectionStyle prefers the kind-level style over the stage-derived one.
func (c *Controller) ConnectionStyle() catalog.ConnectionStyle {
	if c.entry.ConnectionStyle != catalog.StyleSolid {
		return c.entry.ConnectionStyle
	}
	return c.Effects().ConnectionStyle
}

func (c *Controller) Renderable() Renderable {
	st := c.CurrentStage()
	fx := c.Effects()
	r := Renderable{
		ConnectionID:     c.id,
		Protocol:         c.protocol,
		ProtocolType:     c.entry.Kind.String(),
		StageIndex:       c.state.StageIndex,
		StageCount:       c.seq.Len(),
		StageKey:         st.Key,
		StageLabel:       st.Label,
		Direction:        st.Direction.String(),
		TimelineProgress: c.Progress(),
		StageProgress:    c.StageProgress(),
		DotPosition:      c.DotPosition(),
		Color:            catalog.Hex(c.Color()),
		ConnectionStyle:  c.ConnectionStyle().String(),
		Blinking:         fx.Blinking,
		Spinning:         fx.Spinning,
		Pulsing:          fx.Pulsing,
		Opacity:          fx.Opacity,
		Completed:        c.state.Completed,
	}
	if r.Completed {
		r.FinalState = c.FinalState()
	}
	return r
}
