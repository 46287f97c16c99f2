package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/JonMunkholm/mailclean/internal/logging"
)

// handleRunProgressStream streams progress as server-sent events until the
// run finishes. The event id is the progress percentage; a reconnecting
// client passes the last one it saw (Last-Event-ID header or lastEventId
// query) and receives only newer events. Terminal snapshots are always sent.
func (s *Server) handleRunProgressStream(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	lastEventIDStr := r.Header.Get("Last-Event-ID")
	if lastEventIDStr == "" {
		lastEventIDStr = r.URL.Query().Get("lastEventId")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	progressCh, err := s.service.SubscribeProgress(runID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	logger := logging.WithFields(r.Context(), "run_id", runID)

	var last progressResponse
	for {
		select {
		case p, ok := <-progressCh:
			if !ok {
				data, _ := json.Marshal(last)
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				_ = rc.Flush()
				return
			}

			last = newProgressResponse(p)
			if last.Percent <= lastEventID && !p.Phase.Terminal() {
				continue
			}

			data, err := json.Marshal(last)
			if err != nil {
				logger.Error("encode progress event", "error", err)
				return
			}
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", last.Percent, data)
			if err := rc.Flush(); err != nil {
				logger.Warn("progress stream not flushable", "error", err)
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}
