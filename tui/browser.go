package tui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/samaelod/flowmap/loader"
)

const previewBytes = 64 * 1024

type FileBrowser struct {
	List           list.Model
	CurrentDir     string
	Selected       string
	PreviewContent string
	Height         int
	Width          int
	Err            error
	AllowedTypes   []string
}

type fileItem struct {
	name  string
	path  string
	isDir bool
	size  int64
}

func (i fileItem) Title() string {
	if i.isDir {
		return i.name + "/"
	}
	return i.name
}

func (i fileItem) Description() string {
	if i.isDir {
		return "Directory"
	}
	return fmt.Sprintf("File • %d bytes", i.size)
}

func (i fileItem) FilterValue() string { return i.name }

type browserDelegate struct {
	allowed func(name string) bool
}

func (d browserDelegate) Height() int                               { return 1 }
func (d browserDelegate) Spacing() int                              { return 0 }
func (d browserDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }
func (d browserDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(fileItem)
	if !ok {
		return
	}

	str := i.Title()
	var style lipgloss.Style
	switch {
	case index == m.Index():
		style = styleSelected
		str = "> " + str
	case i.isDir:
		style = lipgloss.NewStyle().Foreground(colorText).Bold(true)
		str = "  " + str
	case d.allowed(i.name):
		style = lipgloss.NewStyle().Foreground(colorPrimary)
		str = "  " + str
	default:
		style = lipgloss.NewStyle().Foreground(colorSubtext).Faint(true)
		str = "  " + str
	}

	fmt.Fprint(w, style.Render(str))
}

func NewFileBrowser(allowedTypes []string) FileBrowser {
	cwd, _ := os.Getwd()

	fb := FileBrowser{
		CurrentDir:   cwd,
		AllowedTypes: allowedTypes,
	}

	l := list.New([]list.Item{}, browserDelegate{allowed: fb.allowed}, 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(true)
	l.Styles.Title = styleTitle
	fb.List = l

	fb.refreshDir()
	return fb
}

func (fb FileBrowser) allowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range fb.AllowedTypes {
		if ext == strings.ToLower(a) {
			return true
		}
	}
	return false
}

func (fb *FileBrowser) refreshDir() {
	entries, err := os.ReadDir(fb.CurrentDir)
	if err != nil {
		fb.Err = err
		return
	}
	fb.Err = nil

	items := []list.Item{}
	if parent := filepath.Dir(fb.CurrentDir); parent != fb.CurrentDir {
		items = append(items, fileItem{name: "..", path: parent, isDir: true})
	}

	// Directories first, then files, each by name.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		item := fileItem{
			name:  e.Name(),
			path:  filepath.Join(fb.CurrentDir, e.Name()),
			isDir: e.IsDir(),
		}
		if info, err := e.Info(); err == nil {
			item.size = info.Size()
		}
		items = append(items, item)
	}

	fb.List.SetItems(items)
	fb.updatePreview()
}

func (fb *FileBrowser) HasValidFilesInDir(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if fb.allowed(e.Name()) {
			return true
		}
	}
	return false
}

func (fb *FileBrowser) SelectedHasValidExtension() bool {
	return fb.Selected != "" && fb.allowed(fb.Selected)
}

// SelectedFile returns the highlighted item if it is a loadable file.
func (fb *FileBrowser) SelectedFile() (string, bool) {
	fi, ok := fb.List.SelectedItem().(fileItem)
	if !ok || fi.isDir || !fb.allowed(fi.name) {
		return "", false
	}
	return fi.path, true
}

func (fb *FileBrowser) updatePreview() {
	fi, ok := fb.List.SelectedItem().(fileItem)
	if !ok {
		fb.PreviewContent = ""
		return
	}
	if fi.isDir {
		fb.Selected = ""
		fb.PreviewContent = "Directory: " + fi.name
		return
	}

	fb.Selected = fi.path
	if !fb.allowed(fi.name) {
		fb.PreviewContent = "File type not supported."
		return
	}

	fb.PreviewContent = truncateLines(previewFile(fi), fb.Height)
}

func previewFile(fi fileItem) string {
	format, err := loader.DetectFormat(fi.name)
	if err != nil {
		return err.Error()
	}

	switch format {
	case loader.FormatPCAP:
		return fmt.Sprintf("Packet capture\nSize: %d bytes\n\nConnections are classified when the file is loaded.", fi.size)
	default:
		f, err := os.Open(fi.path)
		if err != nil {
			return "Error reading file"
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, previewBytes))
		if err != nil {
			return "Error reading file"
		}
		return string(data)
	}
}

func truncateLines(s string, maxLines int) string {
	if maxLines <= 0 {
		maxLines = 10
	}
	lines := strings.Split(s, "\n")
	if len(lines) > maxLines {
		return strings.Join(lines[:maxLines], "\n") + "\n... (truncated)"
	}
	return s
}

func (fb FileBrowser) Update(msg tea.Msg) (FileBrowser, tea.Cmd) {
	var cmd tea.Cmd
	fb.List, cmd = fb.List.Update(msg)
	fb.updatePreview()

	if msg, ok := msg.(tea.KeyMsg); ok && fb.List.FilterState() != list.Filtering {
		switch msg.String() {
		case "enter":
			if fi, ok := fb.List.SelectedItem().(fileItem); ok && fi.isDir {
				fb.chdir(fi.path)
			}
			// Files are handled by the parent through SelectedFile.
		case "backspace", "left":
			fb.chdir(filepath.Dir(fb.CurrentDir))
		}
	}

	return fb, cmd
}

func (fb *FileBrowser) chdir(dir string) {
	if dir == fb.CurrentDir {
		return
	}
	fb.CurrentDir = dir
	fb.refreshDir()
	fb.List.ResetSelected()
	fb.updatePreview()
}

func (fb *FileBrowser) SetSize(width, height int) {
	fb.Width = width
	fb.Height = height
	fb.List.SetSize(width, height)
}

func (fb FileBrowser) View() string {
	return fb.List.View()
}
