// Package notify posts run summaries to chat platforms.
package notify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/zulandar/humpyard/internal/batch"
)

// Sidebar colors by severity.
const (
	ColorSuccess = "#36a64f"
	ColorWarning = "#daa038"
	ColorError   = "#cc0000"
)

// Notifier delivers a formatted event to one destination.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Event is a run summary formatted for display in chat.
type Event struct {
	Title    string  // headline, e.g. "Migration run 12 completed"
	Body     string  // detail text
	Severity string  // "success", "warning", "error"
	Color    string  // sidebar color hint
	Fields   []Field // key-value metadata pairs
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // render side-by-side with another field
}

// Summary is the data a run summary is built from.
type Summary struct {
	RunID    uint
	Root     string
	Report   *batch.Report
	Err      error
	Duration time.Duration
	LogPath  string
}

// FormatSummary turns a run summary into an Event.
func FormatSummary(s Summary) Event {
	r := s.Report
	if r == nil {
		r = &batch.Report{}
	}

	evt := Event{Severity: "success", Color: ColorSuccess}
	verb := "completed"
	switch {
	case s.Err != nil && !r.Stopped:
		evt.Severity, evt.Color, verb = "error", ColorError, "failed"
		evt.Body = s.Err.Error()
	case r.Stopped:
		evt.Severity, evt.Color, verb = "warning", ColorWarning, "stopped"
		evt.Body = fmt.Sprintf("%d file(s) left for the next run", r.Remaining())
	case r.Failed > 0:
		evt.Severity, evt.Color = "warning", ColorWarning
		evt.Body = failedList(r)
	}

	if s.RunID > 0 {
		evt.Title = fmt.Sprintf("Migration run %d %s", s.RunID, verb)
	} else {
		evt.Title = "Migration run " + verb
	}

	evt.Fields = []Field{
		{Name: "Root", Value: filepath.Base(s.Root), Short: true},
		{Name: "Batches", Value: fmt.Sprintf("%d/%d", r.Batches, r.Planned), Short: true},
		{Name: "Succeeded", Value: strconv.Itoa(r.Succeeded), Short: true},
		{Name: "Failed", Value: strconv.Itoa(r.Failed), Short: true},
	}
	if s.Duration > 0 {
		evt.Fields = append(evt.Fields, Field{Name: "Duration", Value: s.Duration.Round(time.Second).String(), Short: true})
	}
	if s.LogPath != "" {
		evt.Fields = append(evt.Fields, Field{Name: "Log", Value: s.LogPath})
	}
	return evt
}

// failedList names up to five failed files.
func failedList(r *batch.Report) string {
	const limit = 5
	body := "Failed files (rolled back):"
	n := 0
	for _, res := range r.Results {
		if res.Outcome != batch.Failed {
			continue
		}
		if n == limit {
			body += fmt.Sprintf("\n… and %d more", r.Failed-limit)
			break
		}
		body += "\n• " + filepath.Base(res.Path)
		n++
	}
	return body
}

// Multi fans an event out to several notifiers. Every notifier is tried; the
// errors are joined.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, evt Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
