package tui

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/samaelod/flowmap/engine"
	"github.com/samaelod/flowmap/loader"
	"github.com/samaelod/flowmap/lua"
	"github.com/samaelod/flowmap/types"
)

const speedStep = 0.25

var (
	sessionMu  sync.Mutex
	sessionLog *os.File
)

// setupSessionLog sends the standard logger to <logsDir>/<name>.session.log
// so capture decoding warnings do not draw over the screen.
func setupSessionLog(loadedFilePath, logsDir string) {
	if logsDir == "" {
		logsDir = "logs"
	}
	name := strings.TrimSuffix(filepath.Base(loadedFilePath), filepath.Ext(loadedFilePath))

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		log.Printf("Failed to create logs directory: %v", err)
		return
	}

	f, err := os.OpenFile(filepath.Join(logsDir, name+".session.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		log.Printf("Failed to open session log: %v", err)
		return
	}

	sessionMu.Lock()
	defer sessionMu.Unlock()
	log.SetOutput(f)
	if sessionLog != nil {
		sessionLog.Close()
	}
	sessionLog = f
	log.Printf("Session started with file: %s", loadedFilePath)
}

// engineLogPath is where the orchestrator's leveled log is mirrored.
func engineLogPath(loadedFilePath, logsDir string) string {
	if logsDir == "" {
		logsDir = "logs"
	}
	name := strings.TrimSuffix(filepath.Base(loadedFilePath), filepath.Ext(loadedFilePath))
	return filepath.Join(logsDir, name+".log")
}

func openLogsInEditor(logContent string) tea.Cmd {
	f, err := os.CreateTemp("", "flowmap-logs-*.log")
	if err != nil {
		return func() tea.Msg { return errMsg{err} }
	}
	if _, err := f.WriteString(logContent); err != nil {
		f.Close()
		return func() tea.Msg { return errMsg{err} }
	}
	f.Close()
	tempPath := f.Name()

	return tea.ExecProcess(exec.Command(editor(), tempPath), func(err error) tea.Msg {
		os.Remove(tempPath)
		return nil
	})
}

func editor() string {
	if e := os.Getenv("EDITOR"); e != "" {
		return e
	}
	return "nano"
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || (msg.String() == "q" && !m.filtering()) {
			return m, tea.Quit
		}

	case datasetLoadedMsg:
		return m.onDatasetLoaded(msg)

	case errMsg:
		m.err = msg.err
		if m.engine != nil {
			m.engine.Log.Errorf("%v", msg.err)
		}
		if m.screen != screenDiagram {
			m.screen = screenLoading
		}
		return m, nil

	case tickMsg:
		return m.onTick(msg)

	case editorFinishedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		return m, loadDatasetCmd(m.selectedFile, m.logsDir(), false)

	case logMsg:
		if m.engine == nil {
			return m, nil
		}
		m.logContent = m.engine.Log.ReadAll()
		m.logViewport.SetContent(m.logContent)
		m.logViewport.GotoBottom()
		return m, waitForLog(m.engine.Log)
	}

	switch m.screen {
	case screenSourceSelect:
		return m.updateSourceSelect(msg)
	case screenFilePicker:
		return m.updateFilePicker(msg)
	case screenLoading:
		if msg, ok := msg.(tea.KeyMsg); ok && m.err != nil && (msg.String() == "esc" || msg.String() == "enter") {
			m.err = nil
			if m.engine != nil {
				m.screen = screenDiagram
			} else {
				m.screen = screenFilePicker
			}
		}
		return m, nil
	case screenDiagram:
		return m.updateDiagram(msg)
	}
	return m, nil
}

func (m Model) filtering() bool {
	switch m.screen {
	case screenFilePicker:
		return m.fileBrowser.List.FilterState() == list.Filtering
	case screenDiagram:
		return m.connections.FilterState() == list.Filtering
	}
	return false
}

func (m Model) logsDir() string {
	if m.cfg == nil {
		return ""
	}
	return m.cfg.LogsDir
}

// resize pushes the current window size into every sized component.
func (m *Model) resize() {
	p := m.panes()
	m.fileBrowser.SetSize(p.windowW/3-4, p.windowH-5)
	if m.engine != nil {
		m.connections.SetSize(p.listW-4, p.listH-3)
	}
	m.logViewport.Width = max(0, p.rightW-5)
	m.logViewport.Height = max(1, p.logsH-3)
}

func (m Model) updateSourceSelect(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "up", "k", "left", "h":
		m.menuCursor = (m.menuCursor + len(sources) - 1) % len(sources)
	case "down", "j", "right", "l":
		m.menuCursor = (m.menuCursor + 1) % len(sources)
	case "enter":
		m.source = sources[m.menuCursor]
		m.fileBrowser = NewFileBrowser(m.source.extensions())
		m.resize()
		m.screen = screenFilePicker
	}
	return m, nil
}

func (m Model) updateFilePicker(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && !m.filtering() {
		switch key.String() {
		case "esc":
			m.screen = screenSourceSelect
			return m, nil
		case "enter":
			if path, ok := m.fileBrowser.SelectedFile(); ok {
				m.selectedFile = path
				m.screen = screenLoading
				log.Println("Selected " + path)
				return m, loadDatasetCmd(path, m.logsDir(), m.source == sourceCapture)
			}
		}
	}

	var cmd tea.Cmd
	m.fileBrowser, cmd = m.fileBrowser.Update(msg)
	return m, cmd
}

func (m Model) updateDiagram(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	if key, ok := msg.(tea.KeyMsg); ok && !m.filtering() {
		e := m.engine
		handled := true
		switch key.String() {
		case "tab", "shift+tab":
			if m.focus == focusConnections {
				m.focus = focusLogs
			} else {
				m.focus = focusConnections
			}
			m.resize()
		case " ":
			e.TogglePlay()
		case "right":
			e.Step(true)
		case "left":
			e.Step(false)
		case "+", "=":
			e.SetSpeed(e.Speed() + speedStep)
		case "-", "_":
			e.SetSpeed(e.Speed() - speedStep)
		case "]":
			e.SetDiagramSpeed(e.DiagramSpeed() + speedStep)
		case "[":
			e.SetDiagramSpeed(e.DiagramSpeed() - speedStep)
		case "l":
			e.SetLoop(!e.Loop())
		case "home":
			e.Seek(0)
		case "f":
			m.view = fitView(m.frame)
		case "0":
			m.view = fullView(m.frame)
		case "u":
			return m, loadDatasetCmd(m.selectedFile, m.logsDir(), false)
		case "esc":
			if m.connections.FilterState() == list.FilterApplied {
				handled = false
				break
			}
			e.ClearSelection()
		default:
			handled = false
		}

		if !handled {
			switch m.focus {
			case focusConnections:
				switch key.String() {
				case "enter":
					if id := m.highlighted(); id != "" && !e.SelectConnection(id) {
						e.Log.Warnf("Connection %s has no packets to follow", id)
					}
					handled = true
				case "e":
					if format, err := loader.DetectFormat(m.selectedFile); err == nil && format != loader.FormatPCAP {
						c := exec.Command(editor(), m.selectedFile)
						return m, tea.ExecProcess(c, func(err error) tea.Msg {
							return editorFinishedMsg{err}
						})
					}
					handled = true
				}
			case focusLogs:
				switch key.String() {
				case "e":
					return m, openLogsInEditor(m.logContent)
				case "g":
					m.logViewport.GotoTop()
					handled = true
				case "G":
					m.logViewport.GotoBottom()
					handled = true
				}
			}
		}

		if handled {
			m.refreshFrame()
			return m, nil
		}
	}

	if m.focus == focusConnections {
		m.connections, cmd = m.connections.Update(msg)
	} else {
		m.logViewport, cmd = m.logViewport.Update(msg)
	}
	return m, cmd
}

func (m Model) onDatasetLoaded(msg datasetLoadedMsg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	if m.engine == nil {
		m.engine = engine.NewEngine(m.cfg, engineLogPath(msg.path, m.logsDir()), nil)
		m.logViewport = viewport.New(10, 10)
		cmds = append(cmds, waitForLog(m.engine.Log))
	}

	m.selectedFile = msg.path
	m.report = msg.report
	m.err = nil

	for k := range m.stages {
		delete(m.stages, k)
	}
	m.engine.LoadDataset(msg.ds)
	for _, d := range msg.report.Dropped {
		m.engine.Log.Warnf("Dropped %s", d)
	}
	m.engine.Log.Infof("Opened %s (%s, %d timelines, %d packets)",
		filepath.Base(msg.path), msg.report.Format, msg.report.Timelines, msg.report.Packets)
	m.engine.Play()

	m.connections = newConnectionList(m.engine.Graph(), m.stages)
	m.lastTick = time.Time{}
	m.refreshFrame()
	m.view = fitView(m.frame)

	m.screen = screenDiagram
	m.resize()

	if !m.ticking {
		m.ticking = true
		cmds = append(cmds, tickCmd(m.cfg.TPS))
	}
	return m, tea.Batch(cmds...)
}

// onTick is the host frame loop: wall time since the previous tick goes to
// the engine, and a new frame is taken.
func (m Model) onTick(msg tickMsg) (tea.Model, tea.Cmd) {
	if m.engine == nil {
		m.ticking = false
		return m, nil
	}

	now := time.Time(msg)
	var delta float64
	if !m.lastTick.IsZero() {
		delta = float64(now.Sub(m.lastTick)) / float64(time.Millisecond)
	}
	m.lastTick = now

	m.engine.Tick(delta)
	m.refreshFrame()
	return m, tickCmd(m.cfg.TPS)
}

func (m *Model) refreshFrame() {
	if m.engine == nil {
		return
	}
	f := m.engine.Frame()
	if m.engine.ConsumeStable() {
		m.view = fitView(f)
	}
	m.frame = f
	for _, c := range f.Connections {
		m.stages[c.ConnectionID] = c.Renderable
	}
}

func tickCmd(tps int) tea.Cmd {
	if tps <= 0 {
		tps = 30
	}
	return tea.Tick(time.Second/time.Duration(tps), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// loadDatasetCmd reads path off the UI goroutine. Captures are also saved
// as a Lua dataset under the recent directory, which then becomes the file
// that reload and edit act on.
func loadDatasetCmd(path, logsDir string, saveCopy bool) tea.Cmd {
	return func() tea.Msg {
		setupSessionLog(path, logsDir)

		ds, report, err := loader.Load(path)
		if err != nil {
			return errMsg{err}
		}

		finalPath := path
		if saveCopy && report.Format == loader.FormatPCAP {
			saved, err := lua.SaveToRecent(ds, path)
			if err != nil {
				return errMsg{fmt.Errorf("save dataset: %w", err)}
			}
			log.Printf("Saved %s as %s", path, saved)
			finalPath = saved
		}

		return datasetLoadedMsg{ds: ds, report: report, path: finalPath}
	}
}

type datasetLoadedMsg struct {
	ds     *types.Dataset
	report loader.Report
	path   string
}

type tickMsg time.Time
type errMsg struct{ err error }
type editorFinishedMsg struct{ err error }
type logMsg string

func waitForLog(logger *engine.Logger) tea.Cmd {
	return func() tea.Msg {
		ch := logger.Chan()
		if ch == nil {
			return nil
		}
		msg, ok := <-ch
		if !ok {
			return nil
		}
		return logMsg(msg)
	}
}
