package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/flowmap/catalog"
	"github.com/samaelod/flowmap/engine"
	"github.com/samaelod/flowmap/topology"
)

type connectionItem struct {
	id           string
	protocolType string
	source       string
	target       string
}

func (c connectionItem) Title() string       { return c.protocolType }
func (c connectionItem) Description() string { return c.source + " → " + c.target }
func (c connectionItem) FilterValue() string { return c.id }

type connectionDelegate struct {
	stages stageIndex
}

func (d connectionDelegate) Height() int                               { return 2 }
func (d connectionDelegate) Spacing() int                              { return 0 }
func (d connectionDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d connectionDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	c, ok := listItem.(connectionItem)
	if !ok {
		return
	}

	width := m.Width() - 2
	st, known := d.stages[c.id]
	dot := styleSubtext.Render("○")
	status := "idle"
	if known {
		dot = lipgloss.NewStyle().Foreground(lipgloss.Color(st.Color)).Render("●")
		status = st.StageLabel
		if st.Completed {
			status = st.FinalState
		}
	}

	title := truncate(c.Title(), width-2)
	desc := truncate(c.Description()+"  "+status, width)
	if index == m.Index() {
		fmt.Fprintf(w, "%s %s\n  %s", styleSelected.Render(">"), dot+" "+styleSelected.Render(title), styleValue.Render(desc))
		return
	}
	fmt.Fprintf(w, "  %s\n  %s", dot+" "+styleValue.Render(title), styleSubtext.Render(desc))
}

func newConnectionList(g *topology.Graph, stages stageIndex) list.Model {
	items := make([]list.Item, 0, len(g.Edges))
	for _, e := range g.Edges {
		items = append(items, connectionItem{
			id:           e.ID,
			protocolType: e.ProtocolType,
			source:       e.Source,
			target:       e.Target,
		})
	}
	l := list.New(items, connectionDelegate{stages: stages}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	return l
}

func renderScrollbar(vp viewport.Model, height int) string {
	total := vp.TotalLineCount()
	visible := vp.VisibleLineCount()
	if total <= visible {
		return ""
	}

	trackHeight := height
	if trackHeight < 1 {
		trackHeight = visible
	}

	thumbPos := int(float64(trackHeight-1) * vp.ScrollPercent())
	if thumbPos < 0 {
		thumbPos = 0
	}
	if thumbPos > trackHeight-1 {
		thumbPos = trackHeight - 1
	}

	var sb strings.Builder
	for i := 0; i < trackHeight; i++ {
		if i == thumbPos {
			sb.WriteString(scrollbarThumb.Render("█"))
		} else {
			sb.WriteString(scrollbarTrack.Render("│"))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// panes holds the outer sizes of every panel on the diagram screen.
// Update and View both derive them from the window size.
type panes struct {
	windowW, windowH int
	listW, rightW    int
	listH, detailsH  int
	canvasH, logsH   int

	canvasCols, canvasRows int
}

func (m Model) panes() panes {
	p := panes{windowW: m.width - 4, windowH: m.height - 4}
	avail := p.windowH - 1 - footerHeight

	p.listW = defaultListWidth
	if p.listW > p.windowW/3 {
		p.listW = p.windowW / 3
	}
	if p.listW < minListWidth {
		p.listW = minListWidth
	}
	p.rightW = max(0, p.windowW-p.listW)

	p.detailsH = detailsHeight
	p.listH = max(4, avail-p.detailsH)

	p.logsH = avail * 30 / 100
	if m.focus == focusLogs {
		p.logsH = avail * 55 / 100
	}
	p.logsH = max(4, p.logsH)
	p.canvasH = max(5, avail-p.logsH)

	// border (2) and padding (2) wide; border, title and status line high
	p.canvasCols = max(0, p.rightW-4)
	p.canvasRows = max(0, p.canvasH-4)
	return p
}

func (m Model) View() string {
	windowWidth := m.width - 4
	windowHeight := m.height - 4

	if windowWidth < minWindowWidth || windowHeight < minWindowHeight {
		return styleScreenTooSmall.
			Width(m.width).
			Height(m.height).
			Render("Terminal window is too small.\nPlease resize.")
	}

	appTitle := styleAppTitle.Width(windowWidth).Render("FLOWMAP " + m.version)

	var content string
	switch m.screen {
	case screenSourceSelect:
		cards := make([]string, len(sources))
		for i, s := range sources {
			if i == m.menuCursor {
				cards[i] = styleMenuItemSelected.Render(s.String())
			} else {
				cards[i] = styleMenuItem.Render(s.String())
			}
		}
		menu := lipgloss.JoinVertical(lipgloss.Center,
			styleTitle.Render("Select Source"),
			"\n",
			lipgloss.JoinHorizontal(lipgloss.Center, cards...),
		)
		content = lipgloss.JoinVertical(lipgloss.Top,
			appTitle,
			lipgloss.Place(
				windowWidth, windowHeight-1,
				lipgloss.Center, lipgloss.Center,
				styleMenuContainer.Render(menu),
			),
		)

	case screenFilePicker:
		content = lipgloss.JoinVertical(lipgloss.Top, appTitle, m.viewFilePicker(windowWidth, windowHeight-1))

	case screenLoading:
		status := "Loading " + m.selectedFile + "..."
		if m.err != nil {
			status = styleError.Render("Error: "+m.err.Error()) + "\n\n" + hint("esc", "back")
		}
		content = lipgloss.Place(
			windowWidth, windowHeight,
			lipgloss.Center, lipgloss.Center,
			lipgloss.JoinVertical(lipgloss.Center, appTitle, "\n", status),
		)

	case screenDiagram:
		content = lipgloss.JoinVertical(lipgloss.Top, appTitle, m.viewDiagram())
	}

	return styleWindow.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m Model) viewFilePicker(width, height int) string {
	listWidth := width / 3
	previewWidth := width - listWidth

	browserColor := colorSecondary
	if m.fileBrowser.HasValidFilesInDir(m.fileBrowser.CurrentDir) {
		browserColor = colorSuccess
	}

	previewColor := colorSecondary
	if m.fileBrowser.Selected != "" {
		if m.fileBrowser.SelectedHasValidExtension() {
			previewColor = colorSuccess
		} else {
			previewColor = colorError
		}
	}

	browserView := stylePanel.
		BorderForeground(browserColor).
		Width(listWidth - 4).
		Height(height - 2).
		Render(styleTitle.MarginBottom(1).Render("Select "+m.source.String()) + "\n" + m.fileBrowser.View())

	preview := truncateLines(m.fileBrowser.PreviewContent, height-6)
	if m.fileBrowser.Err != nil {
		preview = styleError.Render(m.fileBrowser.Err.Error())
	}
	previewView := stylePanel.
		BorderForeground(previewColor).
		Width(previewWidth - 2).
		Height(height - 2).
		Render(styleTitle.MarginBottom(1).Render("File Preview") + "\n" + preview)

	return lipgloss.JoinHorizontal(lipgloss.Top, browserView, previewView)
}

func (m Model) viewDiagram() string {
	p := m.panes()

	// Left column: connections over details.
	connColor := colorSubtext
	if m.focus == focusConnections {
		connColor = colorSecondary
	}
	connTitle := styleTitle.Render(fmt.Sprintf("Connections (%d)", len(m.connections.Items())))
	connPanel := stylePanel.
		BorderForeground(connColor).
		Width(p.listW - 2).
		Height(p.listH - 2).
		Render(connTitle + "\n" + m.connections.View())

	detailsPanel := stylePanel.
		Width(p.listW - 2).
		Height(p.detailsH - 2).
		Render(styleTitle.Render("Details") + "\n" + m.renderDetails(p.listW-4, p.detailsH-3))

	left := lipgloss.JoinVertical(lipgloss.Top, connPanel, detailsPanel)

	// Right column: canvas over logs.
	canvasColor := colorSubtext
	if m.frame.Stable {
		canvasColor = colorSuccess
	}
	diagram := renderDiagram(m.frame, m.view, p.canvasCols, p.canvasRows, m.highlighted())
	canvasPanel := stylePanel.
		BorderForeground(canvasColor).
		Width(p.rightW - 2).
		Height(p.canvasH - 2).
		Render(styleTitle.Render("Diagram") + "\n" + statusLine(m.frame, p.canvasCols) + "\n" + diagram)

	logsColor := colorSubtext
	if m.focus == focusLogs {
		logsColor = colorSecondary
	}
	scrollbar := scrollbarTrack.Width(1).Render(renderScrollbar(m.logViewport, m.logViewport.Height))
	logsPanel := stylePanel.
		BorderForeground(logsColor).
		Width(p.rightW - 2).
		Height(p.logsH - 2).
		Render(styleTitle.Render("Logs") + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, m.logViewport.View(), scrollbar))

	right := lipgloss.JoinVertical(lipgloss.Top, canvasPanel, logsPanel)

	sep := styleDesc.Render(" • ")
	hints := []string{hint("<tab>", "focus")}
	if m.focus == focusConnections {
		hints = append(hints,
			hint("space", "play"),
			hint("←/→", "step"),
			hint("+/-", "speed"),
			hint("[/]", "diagram"),
			hint("l", "loop"),
			hint("enter", "follow"),
			hint("esc", "clear"),
			hint("f", "fit"),
			hint("u", "reload"),
		)
	} else {
		hints = append(hints, hint("e", "editor"), hint("g", "top"), hint("G", "bottom"))
	}
	hints = append(hints, hint("q", "quit"))
	footer := styleFooter.
		Width(p.windowW - 2).
		Render(strings.Join(hints, sep))

	return lipgloss.JoinVertical(lipgloss.Top,
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		footer,
	)
}

// highlighted is the connection under the list cursor.
func (m Model) highlighted() string {
	if c, ok := m.connections.SelectedItem().(connectionItem); ok {
		return c.id
	}
	return ""
}

func (m Model) renderDetails(width, height int) string {
	id := m.highlighted()
	if id == "" || m.engine == nil {
		return styleSubtext.Render("No connection selected")
	}
	edge, ok := m.engine.Graph().Edge(id)
	if !ok {
		return styleSubtext.Render("No connection selected")
	}
	st := m.stages[id]
	tl := edge.Timeline

	valueWidth := max(5, width-11)
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Left,
			styleLabel.Render(label),
			styleValue.Render(truncate(value, valueWidth)),
		)
	}

	stage := fmt.Sprintf("%d/%d %s", st.StageIndex+1, st.StageCount, st.StageLabel)
	if st.Completed {
		stage = "done: " + st.FinalState
	}

	rows := []string{
		row("Kind:", st.ProtocolType),
		row("Path:", edge.Source+" → "+edge.Target),
		row("Stage:", stage),
		row("Progress:", fmt.Sprintf("%.0f%%", st.TimelineProgress*100)),
		row("Packets:", fmt.Sprintf("%d", len(m.engine.Dataset().PacketsByConnection[id]))),
	}
	if tl.Metrics.RTTMs > 0 {
		rows = append(rows, row("RTT:", fmt.Sprintf("%.1f ms", tl.Metrics.RTTMs)))
	}
	if tl.Metrics.StatusCode > 0 {
		rows = append(rows, row("Status:", fmt.Sprintf("%d", tl.Metrics.StatusCode)))
	}
	if tl.Metrics.ResolvedIP != "" {
		rows = append(rows, row("Resolved:", tl.Metrics.ResolvedIP))
	}
	if id == m.frame.Active {
		rows = append(rows, row("Following:", fmt.Sprintf("%d particles", len(m.frame.Particles))))
	}
	if catalog.IsAttack(tl.Metrics.Attack) {
		a := catalog.LookupAttack(tl.Metrics.Attack)
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(catalog.Hex(a.Color))).Bold(true)
		rows = append(rows, style.Render(truncate(fmt.Sprintf("%s (%s)", a.Name, a.Threat), width)))
		rows = append(rows, styleSubtext.Render(truncate(a.Description, width)))
	}

	if len(rows) > height && height > 0 {
		rows = rows[:height]
	}
	return strings.Join(rows, "\n")
}

// statusLine summarises playback: clock, speeds, loop and layout state.
func statusLine(f engine.Frame, width int) string {
	state := "⏸"
	if f.Playing {
		state = "▶"
	}
	loop := "off"
	if f.Loop {
		loop = "on"
	}
	layout := "settling"
	if f.Stable {
		layout = "stable"
	}

	parts := []string{
		fmt.Sprintf("%s %s / %s", state, formatClock(f.MasterMs), formatClock(f.DurationMs)),
		fmt.Sprintf("speed ×%.2f", f.Speed),
		fmt.Sprintf("diagram ×%.2f", f.DiagramSpeed),
		"loop " + loop,
		layout,
	}
	if f.Active != "" {
		parts = append(parts, fmt.Sprintf("ts %.3f", f.ActiveTime))
	}
	return styleSubtext.Render(truncate(strings.Join(parts, "  "), width))
}

// formatClock renders milliseconds as mm:ss.t.
func formatClock(ms float64) string {
	if ms < 0 {
		ms = 0
	}
	tenths := int(ms / 100)
	return fmt.Sprintf("%02d:%02d.%d", tenths/600, tenths/10%60, tenths%10)
}

func truncate(s string, width int) string {
	r := []rune(s)
	if width <= 0 {
		return ""
	}
	if len(r) <= width {
		return s
	}
	if width == 1 {
		return "…"
	}
	return string(r[:width-1]) + "…"
}
