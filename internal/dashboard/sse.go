package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/humpyard/internal/status"
)

// pollInterval is how often the SSE handler re-reads the status file.
var pollInterval = 2 * time.Second

// progressEvent is sent whenever the status file changes.
type progressEvent struct {
	LastUpdated time.Time `json:"lastUpdated"`
	Migrated    int       `json:"migrated"`
	Pending     int       `json:"pending"`
	Progress    float64   `json:"progress"`
}

// handleSSE streams a "progress" event each time the status file's
// lastUpdated changes, plus periodic heartbeats.
func (h *handlers) handleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
	c.Writer.Flush()

	var last time.Time
	send := func() {
		f, err := status.Read(h.fs, h.statusPath)
		if err != nil || f.LastUpdated.Equal(last) {
			return
		}
		last = f.LastUpdated
		writeSSE(c.Writer, "progress", progressEvent{
			LastUpdated: f.LastUpdated,
			Migrated:    len(f.MigratedFiles),
			Pending:     len(f.PendingFiles),
			Progress:    f.Progress(),
		})
		c.Writer.Flush()
	}
	send()

	ctx := c.Request.Context()
	ticker := time.NewTicker(pollInterval)
	heartbeat := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case <-ticker.C:
			send()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
