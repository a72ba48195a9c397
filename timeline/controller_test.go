package timeline

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samaelod/flowmap/catalog"
	"github.com/samaelod/flowmap/types"
)

func handshake(h Hooks) *Controller {
	return New(types.Timeline{
		ID:           "tcp-10.0.0.1-51000-10.0.0.2-80",
		Protocol:     "tcp",
		ProtocolType: "tcp-handshake",
	}, h)
}

func TestHandshakePlayback(t *testing.T) {
	c := handshake(Hooks{})
	require.Equal(t, 1500.0, c.TotalDurationMs())

	c.Advance(0)
	assert.Equal(t, "SYN", c.CurrentStage().Key)
	assert.Equal(t, 0.0, c.DotPosition())

	c.Advance(250)
	assert.Equal(t, "SYN", c.CurrentStage().Key)
	assert.InDelta(t, 0.5, c.StageProgress(), 1e-9)
	assert.InDelta(t, 0.5, c.DotPosition(), 1e-9)

	c.Advance(500)
	assert.Equal(t, "SYN-ACK", c.CurrentStage().Key)
	assert.InDelta(t, 0.5, c.StageProgress(), 1e-9)
	assert.InDelta(t, 0.5, c.DotPosition(), 1e-9)

	c.Seek(5000)
	assert.Equal(t, "ACK", c.CurrentStage().Key)
	assert.True(t, c.Completed())
	assert.Equal(t, 1500.0, c.State().ElapsedMs)
	assert.Equal(t, "established", c.Renderable().FinalState)
	assert.Equal(t, catalog.Hex(catalog.ColorGreen), c.Renderable().Color)
}

func TestBoundarySelectsEarlierStage(t *testing.T) {
	c := handshake(Hooks{})
	c.Seek(500)
	assert.Equal(t, 0, c.State().StageIndex)
	assert.Equal(t, 1.0, c.StageProgress())
	c.Seek(500.001)
	assert.Equal(t, 1, c.State().StageIndex)
}

func TestStageEnterFiresOncePerStage(t *testing.T) {
	entered := map[int]int{}
	completions := 0
	c := handshake(Hooks{
		OnStageEnter: func(_ string, i int, _ catalog.Stage) { entered[i]++ },
		OnComplete:   func(_ string, state string) { completions++; assert.Equal(t, "established", state) },
	})

	for i := 0; i < 400; i++ {
		c.Advance(5)
	}

	assert.Equal(t, map[int]int{1: 1, 2: 1}, entered)
	assert.Equal(t, 1, completions)

	// Further advances past completion are no-ops.
	c.Advance(1000)
	c.Advance(1000)
	assert.Equal(t, 1, completions)
}

func TestLargeDeltaAnnouncesSkippedStages(t *testing.T) {
	var order []int
	c := handshake(Hooks{OnStageEnter: func(_ string, i int, _ catalog.Stage) { order = append(order, i) }})
	c.Advance(1200)
	assert.Equal(t, []int{1, 2}, order)
}

func TestResetRefiresStageEnter(t *testing.T) {
	var order []int
	completions := 0
	c := handshake(Hooks{
		OnStageEnter: func(_ string, i int, _ catalog.Stage) { order = append(order, i) },
		OnComplete:   func(string, string) { completions++ },
	})
	c.Advance(2000)
	c.Reset()
	assert.Equal(t, []int{1, 2, 0}, order)
	assert.False(t, c.Completed())

	c.Advance(2000)
	assert.Equal(t, 2, completions)
}

func TestSeekBackRearmsCompletion(t *testing.T) {
	completions := 0
	c := handshake(Hooks{OnComplete: func(string, string) { completions++ }})
	c.Seek(1500)
	c.Seek(1500)
	assert.Equal(t, 1, completions)
	c.Seek(100)
	c.Seek(1500)
	assert.Equal(t, 2, completions)
}

func TestSeekToProgressZeroEqualsReset(t *testing.T) {
	a := handshake(Hooks{})
	b := handshake(Hooks{})
	a.Advance(900)
	b.Advance(900)
	a.SeekToProgress(0)
	b.Reset()
	assert.Equal(t, a.State(), b.State())
}

func TestSeekClamps(t *testing.T) {
	c := handshake(Hooks{})
	c.Seek(-50)
	assert.Equal(t, 0.0, c.State().ElapsedMs)
	c.SeekToProgress(7)
	assert.True(t, c.Completed())
	c.SeekToProgress(math.NaN())
	assert.Equal(t, 0.0, c.State().ElapsedMs)
}

func TestPlaybackSpeed(t *testing.T) {
	c := handshake(Hooks{})
	c.SetPlaybackSpeed(2)
	c.Advance(300)
	assert.Equal(t, 600.0, c.State().ElapsedMs)

	c.SetPlaybackSpeed(-1)
	assert.Equal(t, 0.0, c.Speed())
	c.Advance(300)
	assert.Equal(t, 600.0, c.State().ElapsedMs)
}

func TestDegenerateDurations(t *testing.T) {
	c := New(types.Timeline{
		ID: "x-1.1.1.1-1-2.2.2.2-2",
		Stages: []types.StageSpec{
			{Key: "a", DurationMs: 0},
			{Key: "b", DurationMs: -10},
		},
	}, Hooks{})
	assert.Equal(t, MinTotalDurationMs, c.TotalDurationMs())
	c.Advance(0.5)
	assert.False(t, c.Completed())
	c.Advance(1)
	assert.True(t, c.Completed())
}

func TestUnknownKindPlaysGenericStage(t *testing.T) {
	c := New(types.Timeline{ID: "sctp-1.1.1.1-1-2.2.2.2-2", Protocol: "sctp", ProtocolType: "sctp-init"}, Hooks{})
	r := c.Renderable()
	assert.Equal(t, "unknown", r.ProtocolType)
	assert.Equal(t, 1, r.StageCount)
	assert.Equal(t, catalog.Hex(catalog.ColorSlate), r.Color)
}

func TestDotPosition(t *testing.T) {
	assert.Equal(t, 0.3, DotPosition(types.DirectionForward, 0.3))
	assert.InDelta(t, 0.7, DotPosition(types.DirectionBackward, 0.3), 1e-12)
	assert.InDelta(t, 1.0, DotPosition(types.DirectionBoth, 0.25), 1e-12)
	assert.InDelta(t, 0.5, DotPosition(types.DirectionBoth, 0.5), 1e-12)
	assert.Equal(t, 0.5, DotPosition(types.DirectionWait, 0.9))
	assert.Equal(t, 0.5, DotPosition(types.DirectionNone, 0.1))
}

func TestTimeoutColorTransition(t *testing.T) {
	c := New(types.Timeline{ID: "tcp-1.1.1.1-1-2.2.2.2-2-0", Protocol: "tcp", ProtocolType: "timeout"}, Hooks{})
	assert.Equal(t, catalog.Hex(catalog.ColorGreen), catalog.Hex(c.Color()))
	c.SeekToProgress(1.0 / 3)
	assert.Equal(t, catalog.Hex(catalog.ColorGold), catalog.Hex(c.Color()))
	c.SeekToProgress(1)
	assert.Equal(t, catalog.Hex(catalog.ColorRed), catalog.Hex(c.Color()))
	assert.True(t, c.Effects().Blinking)
}

func TestConnectionStyles(t *testing.T) {
	udp := New(types.Timeline{ID: "udp-1.1.1.1-1-2.2.2.2-53", Protocol: "udp", ProtocolType: "udp-transfer"}, Hooks{})
	assert.Equal(t, "dashed", udp.Renderable().ConnectionStyle)
	assert.Equal(t, 0.7, udp.Renderable().Opacity)

	https := New(types.Timeline{ID: "https-1.1.1.1-1-2.2.2.2-443", Protocol: "https", ProtocolType: "https-request"}, Hooks{})
	assert.Equal(t, "encrypted", https.Renderable().ConnectionStyle)
	https.SeekToProgress(0.9)
	assert.Equal(t, "solid", https.Renderable().ConnectionStyle)
}

func TestAdvanceIsMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("stage index and elapsed never decrease", prop.ForAll(
		func(deltas []float64) bool {
			c := handshake(Hooks{})
			prev := c.State()
			for _, d := range deltas {
				c.Advance(d)
				cur := c.State()
				if cur.StageIndex < prev.StageIndex || cur.ElapsedMs < prev.ElapsedMs {
					return false
				}
				if prev.Completed && !cur.Completed {
					return false
				}
				prev = cur
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(-100, 400)),
	))

	properties.Property("seekToProgress round-trips", prop.ForAll(
		func(p float64) bool {
			c := handshake(Hooks{})
			c.SeekToProgress(p)
			return math.Abs(c.Progress()-p) < 1e-9
		},
		gen.Float64Range(0, 1),
	))

	properties.Property("dot position stays on the edge", prop.ForAll(
		func(ms float64) bool {
			for _, kind := range catalog.Kinds() {
				c := New(types.Timeline{ID: "t", ProtocolType: kind.String()}, Hooks{})
				c.Seek(ms)
				d := c.DotPosition()
				if d < 0 || d > 1 {
					return false
				}
			}
			return true
		},
		gen.Float64Range(-1000, 10000),
	))

	properties.TestingRun(t)
}
