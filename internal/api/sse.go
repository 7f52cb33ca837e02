package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/resumind/resumind/internal/events"
	"github.com/resumind/resumind/internal/run"
)

// sseWriter frames events for one Server-Sent Events connection. The
// stream is data-only: each event is a single JSON object on a data:
// line, flushed as soon as it is written.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// newSSEWriter prepares w for event streaming. It reports false when
// the underlying writer cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

// send writes one event frame and flushes it to the client.
func (sw *sseWriter) send(ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", ev.EventType(), err)
	}
	if _, err := fmt.Fprintf(sw.w, "data: %s\n\n", data); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

// streamEvents forwards a subscription's events to the client until a
// terminal event is delivered or the client goes away. When the
// subscription finalizes before a terminal event was sent, the queue is
// drained and the outcome synthesized from the final status, so the
// viewer never hangs on a dropped event.
func (s *Server) streamEvents(ctx context.Context, sw *sseWriter, sub *run.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.Events():
			if sw.send(ev) != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		case <-sub.Done():
			s.drainAndFinish(sw, sub)
			return
		}
	}
}

// drainAndFinish flushes events that were queued before the listener
// was finalized. No further sends happen after Done closes, so an empty
// queue means the terminal event was dropped; one matching the final
// status is synthesized in its place.
func (s *Server) drainAndFinish(sw *sseWriter, sub *run.Subscription) {
	for {
		select {
		case ev := <-sub.Events():
			if sw.send(ev) != nil {
				return
			}
			if ev.Terminal() {
				return
			}
		default:
			if ev := terminalEvent(sub.Final(), ""); ev != nil {
				_ = sw.send(ev)
			}
			return
		}
	}
}

// terminalEvent builds the stream event matching a terminal status.
func terminalEvent(status run.Status, errMessage string) events.Event {
	switch status {
	case run.StatusCompleted:
		return events.NewCompleteEvent()
	case run.StatusStopped:
		return events.NewStoppedEvent()
	case run.StatusError:
		if errMessage == "" {
			errMessage = "Analysis failed"
		}
		return events.NewErrorEvent(errMessage)
	}
	return nil
}
