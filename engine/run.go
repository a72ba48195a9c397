package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnknownCommand is returned by Apply for an unrecognised op.
var ErrUnknownCommand = errors.New("unknown command")

// Command operations accepted by Apply.
const (
	OpPlay         = "play"
	OpPause        = "pause"
	OpToggle       = "toggle"
	OpSeek         = "seek"
	OpSeekProgress = "seek_progress"
	OpStepForward  = "step_forward"
	OpStepBackward = "step_backward"
	OpSpeed        = "speed"
	OpDiagramSpeed = "diagram_speed"
	OpLoop         = "loop"
	OpSelect       = "select"
	OpClearSelect  = "clear_selection"
	OpDragStart    = "drag_start"
	OpDragMove     = "drag_move"
	OpDragEnd      = "drag_end"
)

// Command is a control message from a presentation collaborator.
type Command struct {
	Op    string  `json:"op"`
	Value float64 `json:"value,omitempty"`
	ID    string  `json:"id,omitempty"`
	X     float64 `json:"x,omitempty"`
	Y     float64 `json:"y,omitempty"`
	On    bool    `json:"on,omitempty"`
}

// Apply executes one command synchronously.
func (e *Engine) Apply(cmd Command) (err error) {
	defer func() { e.Metrics.RecordCommand(cmd.Op, err) }()

	switch cmd.Op {
	case OpPlay:
		e.Play()
	case OpPause:
		e.Pause()
	case OpToggle:
		e.TogglePlay()
	case OpSeek:
		e.Seek(cmd.Value)
	case OpSeekProgress:
		e.SeekProgress(cmd.Value)
	case OpStepForward:
		e.Step(true)
	case OpStepBackward:
		e.Step(false)
	case OpSpeed:
		e.SetSpeed(cmd.Value)
	case OpDiagramSpeed:
		e.SetDiagramSpeed(cmd.Value)
	case OpLoop:
		e.SetLoop(cmd.On)
	case OpSelect:
		if !e.SelectConnection(cmd.ID) {
			return fmt.Errorf("select %q: no such connection", cmd.ID)
		}
	case OpClearSelect:
		e.ClearSelection()
	case OpDragStart:
		if !e.BeginDrag(cmd.ID) {
			return fmt.Errorf("drag %q: no such node", cmd.ID)
		}
	case OpDragMove:
		if !e.DragTo(cmd.ID, cmd.X, cmd.Y) {
			return fmt.Errorf("drag %q: node is not being dragged", cmd.ID)
		}
	case OpDragEnd:
		e.EndDrag(cmd.ID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Op)
	}
	return nil
}

// Submit queues a command for Run. It reports false when the queue is full.
func (e *Engine) Submit(cmd Command) bool {
	select {
	case e.commands <- cmd:
		return true
	default:
		return false
	}
}

// Run is the headless host loop: it ticks at tps with the measured wall
// delta and applies queued commands between ticks. publish receives a frame
// after every tick and every command, so a paused scrub shows at once.
// Run returns when ctx is cancelled.
func (e *Engine) Run(ctx context.Context, tps int, publish func(Frame)) error {
	if tps <= 0 {
		tps = e.cfg.TPS
	}
	if tps <= 0 {
		tps = 30
	}
	if publish == nil {
		publish = func(Frame) {}
	}

	ticker := time.NewTicker(time.Second / time.Duration(tps))
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.commands:
			if err := e.Apply(cmd); err != nil {
				e.Log.Warnf("Command %s: %v", cmd.Op, err)
			}
			publish(e.Frame())
		case now := <-ticker.C:
			e.Tick(float64(now.Sub(last)) / float64(time.Millisecond))
			last = now
			publish(e.Frame())
		}
	}
}
