// Package logging configures the run logger: colored severity badges on the
// console and a plain-text run-scoped log file.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sirupsen/logrus"
)

// OutcomeField marks an info entry as a success so the console renders it green.
const OutcomeField = "outcome"

// RunLogLayout names run log files, e.g. run-2025-04-22-15-23-56.log.
const RunLogLayout = "run-2006-01-02-15-04-05"

var (
	infoBadge    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6")).Render("[INFO]")
	successBadge = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22C55E")).Render("[SUCCESS]")
	warnBadge    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EAB308")).Render("[WARNING]")
	errorBadge   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444")).Render("[ERROR]")
	debugBadge   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Render("[DEBUG]")
	fieldStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// Opts controls logger construction.
type Opts struct {
	Dir     string    // run log directory; empty disables the file
	Debug   bool      // enable debug level
	Console io.Writer // defaults to os.Stderr
	Now     func() time.Time
}

// Logger wraps a logrus logger with the run log file it writes to.
type Logger struct {
	*logrus.Logger
	Path string
	file *os.File
}

// New builds a logger that writes colored lines to the console and plain
// lines to <Dir>/run-<timestamp>.log.
func New(opts Opts) (*Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.InfoLevel)
	if opts.Debug {
		l.SetLevel(logrus.DebugLevel)
	}
	l.AddHook(&writerHook{w: console, formatter: &ConsoleFormatter{}})

	out := &Logger{Logger: l}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("logging: create log dir %s: %w", opts.Dir, err)
		}
		path := filepath.Join(opts.Dir, now().Format(RunLogLayout)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("logging: open run log %s: %w", path, err)
		}
		out.Path = path
		out.file = f
		l.AddHook(&writerHook{w: f, formatter: &logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		}})
	}
	return out, nil
}

// Close flushes and closes the run log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Component returns an entry tagged with the given component name.
func (l *Logger) Component(name string) *logrus.Entry {
	return l.WithField("component", name)
}

// Success logs msg at info level tagged as a success.
func Success(e *logrus.Entry, format string, args ...interface{}) {
	e.WithField(OutcomeField, "success").Infof(format, args...)
}

// Discard returns an entry that drops everything, for tests and callers
// that do not care about output.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// writerHook fans every entry out to a writer with its own formatter.
type writerHook struct {
	w         io.Writer
	formatter logrus.Formatter
}

func (h *writerHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *writerHook) Fire(e *logrus.Entry) error {
	b, err := h.formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = h.w.Write(b)
	return err
}

// ConsoleFormatter renders "[LEVEL] message key=value" with a colored badge.
type ConsoleFormatter struct{}

// Format implements logrus.Formatter.
func (f *ConsoleFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(badge(e))
	b.WriteByte(' ')
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k == OutcomeField || k == "component" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(fieldStyle.Render(fmt.Sprintf("%s=%v", k, e.Data[k])))
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func badge(e *logrus.Entry) string {
	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		return errorBadge
	case logrus.WarnLevel:
		return warnBadge
	case logrus.DebugLevel, logrus.TraceLevel:
		return debugBadge
	}
	if e.Data[OutcomeField] == "success" {
		return successBadge
	}
	return infoBadge
}
