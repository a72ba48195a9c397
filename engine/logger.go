package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultLogLines      = 1000
	defaultBatchSize     = 10
	defaultFlushInterval = 100 * time.Millisecond
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// ParseLevel maps debug|info|warn|error; anything else is info.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger keeps the last capacity lines in memory and, when given a path,
// appends them to a file from a batching goroutine.
type Logger struct {
	mu       sync.Mutex
	lines    []string
	capacity int
	head     int
	count    int
	level    Level

	filePath string
	file     *os.File
	fileCh   chan string
	done     chan struct{}
	notify   chan string
	closed   bool

	now func() time.Time
}

func NewLogger(filePath string, capacity int, level Level) *Logger {
	if capacity <= 0 {
		capacity = defaultLogLines
	}

	l := &Logger{
		lines:    make([]string, capacity),
		capacity: capacity,
		level:    level,
		filePath: filePath,
		notify:   make(chan string, 100),
		now:      time.Now,
	}

	if err := l.openFile(); err != nil || l.file == nil {
		return l
	}

	l.fileCh = make(chan string, 256)
	l.done = make(chan struct{})
	go l.writer()

	return l
}

func (l *Logger) openFile() error {
	if l.filePath == "" {
		return nil
	}

	if dir := filepath.Dir(l.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

func (l *Logger) SetLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Write stores a preformatted line regardless of level.
func (l *Logger) Write(msg string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	l.lines[l.head] = msg
	l.head = (l.head + 1) % l.capacity
	if l.count < l.capacity {
		l.count++
	}

	select {
	case l.notify <- msg:
	default:
	}
	if l.fileCh != nil {
		select {
		case l.fileCh <- msg:
		default:
		}
	}
}

func (l *Logger) logf(level Level, format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	threshold := l.level
	l.mu.Unlock()
	if level < threshold {
		return
	}
	ts := l.now().Format("15:04:05")
	l.Write(fmt.Sprintf("[%s] %s %s", ts, level, fmt.Sprintf(format, args...)))
}

func (l *Logger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }

func (l *Logger) Infof(format string, args ...any) { l.logf(LevelInfo, format, args...) }

func (l *Logger) Warnf(format string, args ...any) { l.logf(LevelWarn, format, args...) }

func (l *Logger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

// Lines returns the buffered lines, oldest first.
func (l *Logger) Lines() []string {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	start := 0
	if l.count >= l.capacity {
		start = l.head
	}
	out := make([]string, 0, l.count)
	for i := 0; i < l.count; i++ {
		out = append(out, l.lines[(start+i)%l.capacity])
	}
	return out
}

func (l *Logger) ReadAll() string {
	lines := l.Lines()
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}

// Chan delivers new lines to a UI. Lines are dropped when nobody reads.
func (l *Logger) Chan() <-chan string {
	if l == nil {
		return nil
	}
	return l.notify
}

func (l *Logger) writer() {
	defer close(l.done)

	batch := make([]string, 0, defaultBatchSize)
	ticker := time.NewTicker(defaultFlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		var sb strings.Builder
		for _, msg := range batch {
			sb.WriteString(msg)
			sb.WriteByte('\n')
		}
		l.file.WriteString(sb.String())
		batch = batch[:0]
	}

	for {
		select {
		case msg, ok := <-l.fileCh:
			if !ok {
				flush()
				l.file.Close()
				return
			}
			batch = append(batch, msg)
			if len(batch) >= defaultBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close stops accepting lines and waits for the file writer to drain.
func (l *Logger) Close() {
	if l == nil {
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.notify)
	if l.fileCh != nil {
		close(l.fileCh)
	}
	l.mu.Unlock()

	if l.done != nil {
		<-l.done
	}
}
