package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	sseHeartbeatInterval = 15 * time.Second

	sseSnapshotEvent = "snapshot"
	sseFinalEvent    = "final"
)

// StreamRun streams progress updates of a run as server-sent events. The
// stream opens with a snapshot, relays every progress event and closes with
// a final snapshot once the run is done.
func (h *Handler) StreamRun(c *gin.Context) {
	run, ok := h.lookupRun(c)
	if !ok {
		return
	}

	// Subscribe before the first snapshot so no update falls in between.
	events := run.Subscribe(c.Request.Context())

	setSSEHeaders(c.Writer)
	c.Writer.Flush()

	if err := writeSSE(c.Writer, sseSnapshotEvent, run.Snapshot()); err != nil {
		slog.Debug("SSE write failed", "run_id", run.ID, "error", err)
		return
	}

	ticker := time.NewTicker(sseHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				select {
				case <-run.Done():
					if err := writeSSE(c.Writer, sseFinalEvent, run.Snapshot()); err != nil {
						slog.Debug("SSE write failed", "run_id", run.ID, "error", err)
					}
				default:
				}
				return
			}
			if err := writeSSE(c.Writer, string(evt.Type), evt.Payload); err != nil {
				slog.Debug("SSE write failed", "run_id", run.ID, "event", evt.Type, "error", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprintf(c.Writer, ": heartbeat %s\n\n", time.Now().UTC().Format(time.RFC3339)); err != nil {
				return
			}
			c.Writer.Flush()
		case <-c.Request.Context().Done():
			slog.Debug("SSE client disconnected", "run_id", run.ID)
			return
		}
	}
}

func setSSEHeaders(w gin.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSE(w gin.ResponseWriter, eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	w.Flush()
	return nil
}
