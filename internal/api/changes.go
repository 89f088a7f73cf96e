package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// keepAlive is how often an idle stream sends a comment line.
var keepAlive = 25 * time.Second

// handleChangeStream streams committed writes as server-sent events.
// ?project=<id> keeps only changes to that project.
func (s *Server) handleChangeStream(w http.ResponseWriter, r *http.Request) {
	feed := s.tracker.Feed()
	if feed == nil {
		writeError(w, http.StatusServiceUnavailable, "change feed disabled")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, 500, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	ctx := r.Context()
	project := r.URL.Query().Get("project")
	ch := feed.Subscribe()
	defer feed.Unsubscribe(ch)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case c, ok := <-ch:
			if !ok {
				return
			}
			if project != "" && c.ProjectID != project {
				continue
			}
			data, err := json.Marshal(c)
			if err != nil {
				s.log.Error().Err(err).Msg("encode change")
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", c.ID, c.Kind, data)
			flusher.Flush()
		}
	}
}
