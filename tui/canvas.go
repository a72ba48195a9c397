package tui

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/flowmap/catalog"
	"github.com/samaelod/flowmap/engine"
	"github.com/samaelod/flowmap/particles"
)

const (
	runeEdge      = '·'
	runeEncrypted = ':'
	runeDot       = 'o'
	runeNode      = '●'
	runeHub       = '◉'
	runeError     = '✖'

	fitMargin = 0.08
)

type cell struct {
	r     rune
	color string
	bold  bool
}

// canvas is a character grid the diagram is rasterised onto.
type canvas struct {
	w, h  int
	cells []cell
}

func newCanvas(w, h int) *canvas {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &canvas{w: w, h: h, cells: make([]cell, w*h)}
}

func (c *canvas) set(x, y int, r rune, color string, bold bool) {
	if x < 0 || x >= c.w || y < 0 || y >= c.h {
		return
	}
	c.cells[y*c.w+x] = cell{r: r, color: color, bold: bold}
}

func (c *canvas) at(x, y int) cell {
	if x < 0 || x >= c.w || y < 0 || y >= c.h {
		return cell{}
	}
	return c.cells[y*c.w+x]
}

// line draws a segment with Bresenham's algorithm. Cells for which skip
// returns true are left untouched; the endpoints are never drawn.
func (c *canvas) line(x1, y1, x2, y2 int, r rune, color string, bold bool, skip func(step int) bool) {
	dx, dy := abs(x2-x1), abs(y2-y1)
	sx, sy := -1, -1
	if x1 < x2 {
		sx = 1
	}
	if y1 < y2 {
		sy = 1
	}
	err := dx - dy
	x, y := x1, y1
	for step := 0; ; step++ {
		if x == x2 && y == y2 {
			break
		}
		if step > 0 && (skip == nil || !skip(step)) {
			c.set(x, y, r, color, bold)
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x += sx
		}
		if e2 < dx {
			err += dx
			y += sy
		}
	}
}

// text writes s starting at (x, y), clipped to the row.
func (c *canvas) text(x, y int, s, color string, bold bool) {
	for _, r := range s {
		c.set(x, y, r, color, bold)
		x++
	}
}

// String renders the grid, styling runs of equally styled cells together.
func (c *canvas) String() string {
	var sb strings.Builder
	for y := 0; y < c.h; y++ {
		if y > 0 {
			sb.WriteByte('\n')
		}
		var run strings.Builder
		cur := c.at(0, y)
		flush := func() {
			if run.Len() == 0 {
				return
			}
			if cur.color == "" && !cur.bold {
				sb.WriteString(run.String())
			} else {
				st := lipgloss.NewStyle().Bold(cur.bold)
				if cur.color != "" {
					st = st.Foreground(lipgloss.Color(cur.color))
				}
				sb.WriteString(st.Render(run.String()))
			}
			run.Reset()
		}
		for x := 0; x < c.w; x++ {
			cl := c.at(x, y)
			if cl.color != cur.color || cl.bold != cur.bold {
				flush()
				cur = cl
			}
			if cl.r == 0 {
				run.WriteByte(' ')
			} else {
				run.WriteRune(cl.r)
			}
		}
		flush()
	}
	return sb.String()
}

// viewRect is the region of layout space shown on the canvas.
type viewRect struct {
	MinX, MinY, MaxX, MaxY float64
}

func fullView(f engine.Frame) viewRect {
	return viewRect{MaxX: f.Width, MaxY: f.Height}
}

// fitView frames every node with a margin. With fewer than two distinct
// positions it falls back to the whole canvas.
func fitView(f engine.Frame) viewRect {
	if len(f.Nodes) == 0 {
		return fullView(f)
	}
	v := viewRect{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, n := range f.Nodes {
		v.MinX = math.Min(v.MinX, n.X)
		v.MinY = math.Min(v.MinY, n.Y)
		v.MaxX = math.Max(v.MaxX, n.X)
		v.MaxY = math.Max(v.MaxY, n.Y)
	}
	w, h := v.MaxX-v.MinX, v.MaxY-v.MinY
	if w <= 0 && h <= 0 {
		return fullView(f)
	}
	if w <= 0 {
		w = h
	}
	if h <= 0 {
		h = w
	}
	mx, my := w*fitMargin, h*fitMargin
	return viewRect{MinX: v.MinX - mx, MinY: v.MinY - my, MaxX: v.MaxX + mx, MaxY: v.MaxY + my}
}

func (v viewRect) empty() bool {
	return v.MaxX <= v.MinX || v.MaxY <= v.MinY
}

// project maps a layout position to a cell.
func (v viewRect) project(x, y float64, cols, rows int) (int, int) {
	if v.empty() || cols <= 0 || rows <= 0 {
		return 0, 0
	}
	cx := (x - v.MinX) / (v.MaxX - v.MinX) * float64(cols-1)
	cy := (y - v.MinY) / (v.MaxY - v.MinY) * float64(rows-1)
	return int(math.Round(cx)), int(math.Round(cy))
}

type point struct{ x, y int }

// renderDiagram rasterises one frame: edges first, then stage dots and
// particles, nodes and their labels last so they stay readable.
func renderDiagram(f engine.Frame, view viewRect, cols, rows int, highlight string) string {
	c := newCanvas(cols, rows)
	if cols <= 0 || rows <= 0 {
		return ""
	}
	if view.empty() {
		view = fullView(f)
	}

	pos := make(map[string]point, len(f.Nodes))
	for _, n := range f.Nodes {
		x, y := view.project(n.X, n.Y, cols, rows)
		pos[n.ID] = point{x, y}
	}

	ends := make(map[string][2]point, len(f.Connections))
	for _, conn := range f.Connections {
		a, okA := pos[conn.Source]
		b, okB := pos[conn.Target]
		if !okA || !okB {
			continue
		}
		ends[conn.ConnectionID] = [2]point{a, b}

		bold := conn.ConnectionID == highlight || conn.ConnectionID == f.Active
		r := rune(runeEdge)
		var skip func(int) bool
		switch conn.ConnectionStyle {
		case catalog.StyleDashed.String():
			skip = func(step int) bool { return step%4 >= 2 }
		case catalog.StyleEncrypted.String():
			r = runeEncrypted
		}
		c.line(a.x, a.y, b.x, b.y, r, conn.Color, bold, skip)
	}

	blinkOff := (f.Tick/8)%2 == 1
	for _, conn := range f.Connections {
		e, ok := ends[conn.ConnectionID]
		if !ok || conn.Completed || (conn.Blinking && blinkOff) {
			continue
		}
		x, y := along(e, conn.DotPosition)
		c.set(x, y, runeDot, conn.Color, true)
	}

	for _, p := range f.Particles {
		e, ok := ends[p.ConnectionID]
		if !ok {
			continue
		}
		x, y := along(e, p.Position)
		if p.IsError {
			c.set(x, y, runeError, catalog.Hex(catalog.ColorRed), true)
			continue
		}
		c.set(x, y, particleRune(p.Phase), p.Color, p.Phase == particles.PhaseTransfer)
	}

	for _, n := range f.Nodes {
		p := pos[n.ID]
		color := catalog.Hex(catalog.ColorSlate)
		if len(n.Protocols) > 0 {
			color = catalog.Hex(catalog.ProtocolColor(n.Protocols[0]))
		}
		r := rune(runeNode)
		if n.IsCenter {
			r = runeHub
		}
		c.set(p.x, p.y, r, color, true)

		label := n.Label
		if room := cols - p.x - 2; len(label) > room {
			if room <= 0 {
				continue
			}
			label = label[:room]
		}
		c.text(p.x+2, p.y, label, string(colorText), n.IsCenter)
	}

	return c.String()
}

func along(e [2]point, t float64) (int, int) {
	t = math.Max(0, math.Min(1, t))
	x := float64(e[0].x) + (float64(e[1].x)-float64(e[0].x))*t
	y := float64(e[0].y) + (float64(e[1].y)-float64(e[0].y))*t
	return int(math.Round(x)), int(math.Round(y))
}

func particleRune(p particles.Phase) rune {
	switch p {
	case particles.PhaseSpawn:
		return '•'
	case particles.PhaseArrive:
		return '∘'
	default:
		return '●'
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
