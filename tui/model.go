package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"

	"github.com/samaelod/flowmap/config"
	"github.com/samaelod/flowmap/engine"
	"github.com/samaelod/flowmap/loader"
	"github.com/samaelod/flowmap/timeline"
)

type screen int

const (
	screenSourceSelect screen = iota
	screenFilePicker
	screenLoading
	screenDiagram
)

type sourceType int

const (
	sourceCapture sourceType = iota
	sourceLua
	sourceJSON
)

var sources = []sourceType{sourceCapture, sourceLua, sourceJSON}

func (s sourceType) String() string {
	switch s {
	case sourceLua:
		return "Lua Dataset"
	case sourceJSON:
		return "JSON Timelines"
	default:
		return "Packet Capture"
	}
}

// extensions filters loader.Extensions down to the ones of this source.
func (s sourceType) extensions() []string {
	want := map[sourceType]loader.Format{
		sourceCapture: loader.FormatPCAP,
		sourceLua:     loader.FormatLua,
		sourceJSON:    loader.FormatJSON,
	}[s]
	var out []string
	for _, ext := range loader.Extensions {
		if f, err := loader.DetectFormat("x" + ext); err == nil && f == want {
			out = append(out, ext)
		}
	}
	return out
}

type focus int

const (
	focusConnections focus = iota
	focusLogs
)

type Model struct {
	screen screen
	source sourceType

	cfg *config.Config
	err error

	fileBrowser FileBrowser

	connections list.Model
	stages      stageIndex

	width        int
	height       int
	selectedFile string
	report       loader.Report

	menuCursor int
	focus      focus

	version string

	engine   *engine.Engine
	frame    engine.Frame
	lastTick time.Time
	view     viewRect
	ticking  bool

	logViewport viewport.Model
	logContent  string
}

// stageIndex holds the latest renderable state of every connection. The
// list delegate shares the map, so refreshing it in place is enough.
type stageIndex map[string]timeline.Renderable

const (
	minWindowWidth   = 80
	minWindowHeight  = 20
	defaultListWidth = 38
	minListWidth     = 24
	footerHeight     = 3
	detailsHeight    = 11
)
