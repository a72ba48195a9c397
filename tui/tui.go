// Package tui is the terminal front end: it picks a dataset, drives the
// engine from a tea.Tick loop and draws every frame as a character canvas.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/samaelod/flowmap/config"
	"github.com/samaelod/flowmap/loader"
)

func New(cfg *config.Config, version string) Model {
	if cfg == nil {
		cfg = config.Default()
	}
	return Model{
		screen:      screenSourceSelect,
		cfg:         cfg,
		fileBrowser: NewFileBrowser(loader.Extensions),
		stages:      stageIndex{},
		version:     version,
	}
}

// Open starts the model on path instead of the source menu.
func (m Model) Open(path string) Model {
	m.selectedFile = path
	m.screen = screenLoading
	if format, err := loader.DetectFormat(path); err == nil {
		switch format {
		case loader.FormatLua:
			m.source = sourceLua
		case loader.FormatJSON:
			m.source = sourceJSON
		default:
			m.source = sourceCapture
		}
	}
	return m
}

func (m Model) Init() tea.Cmd {
	if m.screen == screenLoading && m.selectedFile != "" {
		return loadDatasetCmd(m.selectedFile, m.logsDir(), m.source == sourceCapture)
	}
	return nil
}

// Run blocks until the user quits. A non-empty path is loaded at start.
func Run(cfg *config.Config, version, path string) error {
	m := New(cfg, version)
	if path != "" {
		m = m.Open(path)
	}

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if fm, ok := final.(Model); ok && fm.engine != nil {
		fm.engine.Close()
	}
	return err
}
