package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/chirag127/chirag127.github.io-sub000/internal/orchestrator"
	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
)

// streamFrame is one SSE payload.
type streamFrame struct {
	Time  time.Time          `json:"time"`
	Stats orchestrator.Stats `json:"stats"`
	Quota *quota.Status      `json:"quota,omitempty"`
}

// handleStream serves a Server-Sent Events stream of orchestrator counters.
// A snapshot is sent immediately and then once per stream interval until the
// client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.unavailable(w, "orchestrator")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering if present

	send := func() bool {
		frame := streamFrame{Time: time.Now().UTC(), Stats: s.sessions.Stats()}
		if s.quota != nil {
			q := s.quota.Status()
			frame.Quota = &q
		}
		data, err := json.Marshal(frame)
		if err != nil {
			s.log.Warn().Err(err).Msg("encode stream frame")
			return false
		}
		if _, err := fmt.Fprintf(w, "event: stats\ndata: %s\n\n", data); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}

	tick := time.NewTicker(s.interval)
	defer tick.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-tick.C:
		}
		if !send() {
			return
		}
	}
}
