package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/chirag127/chirag127.github.io-sub000/internal/db"
	"github.com/chirag127/chirag127.github.io-sub000/internal/dispatch"
	"github.com/chirag127/chirag127.github.io-sub000/internal/orchestrator"
	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
)

func relTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func fmtDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, sec)
	}
	return fmt.Sprintf("%ds", sec)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) unavailable(w http.ResponseWriter, what string) {
	s.writeError(w, http.StatusServiceUnavailable, what+" not available")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.unavailable(w, "orchestrator")
		return
	}
	state := orchestrator.State(r.URL.Query().Get("state"))
	out := []orchestrator.Session{}
	for _, sess := range s.sessions.Sessions() {
		if state == "" || sess.State == state {
			out = append(out, sess)
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// sessionDetail is a live session plus its persisted history.
type sessionDetail struct {
	orchestrator.Session
	History []db.SessionEvent `json:"history"`
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var detail sessionDetail
	found := false
	if s.sessions != nil {
		detail.Session, found = s.sessions.Session(id)
	}
	if s.history != nil {
		key := id
		if found && detail.RemoteID != "" {
			key = detail.RemoteID
		}
		events, err := s.history.SessionHistory(key)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		detail.History = events
		found = found || len(events) > 0
	}
	if !found {
		s.writeError(w, http.StatusNotFound, "session "+id+" not found")
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		s.unavailable(w, "orchestrator")
		return
	}
	s.writeJSON(w, http.StatusOK, s.sessions.Stats())
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	if s.quota == nil {
		s.unavailable(w, "quota")
		return
	}
	s.writeJSON(w, http.StatusOK, s.quota.Status())
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if s.chain == nil {
		s.unavailable(w, "model chain")
		return
	}
	s.writeJSON(w, http.StatusOK, s.chain.Status())
}

// handleQueue prefers the live in-memory queue and falls back to the
// persisted one.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch {
	case s.sessions != nil:
		items := s.sessions.Queue()
		if items == nil {
			items = []orchestrator.WorkItem{}
		}
		s.writeJSON(w, http.StatusOK, items)
	case s.history != nil:
		items, err := s.history.QueueList()
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if items == nil {
			items = []db.QueueItem{}
		}
		s.writeJSON(w, http.StatusOK, items)
	default:
		s.unavailable(w, "queue")
	}
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.unavailable(w, "event log")
		return
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	events, err := s.history.RecentSessionEvents(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []db.SessionEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

// DashboardData is the template model for the status page.
type DashboardData struct {
	Now      time.Time
	Stats    *orchestrator.Stats
	Sessions []orchestrator.Session
	Queue    []orchestrator.WorkItem
	Quota    *quota.Status
	Models   []dispatch.ModelStatus
	Events   []db.SessionEvent
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardData{Now: time.Now()}
	if s.sessions != nil {
		st := s.sessions.Stats()
		data.Stats = &st
		data.Sessions = s.sessions.Sessions()
		data.Queue = s.sessions.Queue()
	}
	if s.quota != nil {
		q := s.quota.Status()
		data.Quota = &q
	}
	if s.chain != nil {
		data.Models = s.chain.Status().Models
	}
	if s.history != nil {
		events, err := s.history.RecentSessionEvents(20)
		if err != nil {
			s.log.Warn().Err(err).Msg("recent events")
		}
		data.Events = events
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.dashboardTmpl.ExecuteTemplate(w, "dashboard", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
