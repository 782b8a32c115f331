package web

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/chirag127/chirag127.github.io-sub000/internal/db"
	"github.com/chirag127/chirag127.github.io-sub000/internal/dispatch"
	"github.com/chirag127/chirag127.github.io-sub000/internal/orchestrator"
	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
	"github.com/chirag127/chirag127.github.io-sub000/internal/registry"
)

type fakeSessions struct {
	sessions []orchestrator.Session
	queue    []orchestrator.WorkItem
	stats    orchestrator.Stats
}

func (f *fakeSessions) Sessions() []orchestrator.Session { return f.sessions }
func (f *fakeSessions) Queue() []orchestrator.WorkItem   { return f.queue }
func (f *fakeSessions) Stats() orchestrator.Stats        { return f.stats }

func (f *fakeSessions) Session(id string) (orchestrator.Session, bool) {
	for _, s := range f.sessions {
		if s.ID == id || s.RemoteID == id {
			return s, true
		}
	}
	return orchestrator.Session{}, false
}

type fakeQuota struct{ st quota.Status }

func (f fakeQuota) Status() quota.Status { return f.st }

type fakeChain struct{ st dispatch.Status }

func (f fakeChain) Status() dispatch.Status { return f.st }

type fakeHistory struct {
	events []db.SessionEvent
	queue  []db.QueueItem
	err    error
}

func (f *fakeHistory) SessionHistory(id string) ([]db.SessionEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []db.SessionEvent
	for _, e := range f.events {
		if e.SessionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistory) RecentSessionEvents(limit int) ([]db.SessionEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.events) {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeHistory) QueueList() ([]db.QueueItem, error) { return f.queue, f.err }

func fixture() Options {
	now := time.Now()
	return Options{
		Sessions: &fakeSessions{
			sessions: []orchestrator.Session{
				{ID: "l1", RemoteID: "r1", Repo: "jf", Title: "Update: jf", State: orchestrator.StateWorking, Priority: quota.PriorityHigh, LastActivity: now.Add(-5 * time.Minute), URL: "https://jules.google.com/session/r1"},
				{ID: "l2", RemoteID: "r2", Repo: "weather", State: orchestrator.StateCompleted, PRURL: "https://github.com/octo/weather/pull/1"},
			},
			queue: []orchestrator.WorkItem{{ID: "q1", Repo: "todo", Priority: quota.PriorityNormal, EnqueuedAt: now}},
			stats: orchestrator.Stats{Queued: 1, Running: 1, Completed: 1, Nudges: 2},
		},
		Quota: fakeQuota{st: quota.Status{
			State:     quota.State{Date: "2026-06-01", DailyLimit: 100, ReservedQuota: 10, SessionsUsed: 7},
			Remaining: 93,
		}},
		Chain: fakeChain{st: dispatch.Status{
			Providers: []dispatch.ProviderStatus{{Provider: provider.KindGroq, Available: true}},
			Models: []dispatch.ModelStatus{{
				Model:             registry.Model{Name: "llama-70b", SizeB: 70, Provider: provider.KindGroq, ID: "llama-3.3-70b-versatile"},
				Eligible:          true,
				Failures:          1,
				CooldownRemaining: 30 * time.Second,
			}},
		}},
		History: &fakeHistory{events: []db.SessionEvent{
			{ID: 2, SessionID: "r1", Repo: "jf", Event: "WORKING", Timestamp: "2026-06-01 10:05:00"},
			{ID: 1, SessionID: "r1", Repo: "jf", Event: "created", Timestamp: "2026-06-01 10:00:00"},
		}},
	}
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	srv := NewServer(Options{})
	rec := get(t, srv, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("unexpected body %q", rec.Body.String())
	}
}

func TestDashboard(t *testing.T) {
	srv := NewServer(fixture())
	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	for _, want := range []string{
		"Update: jf",
		"badge badge-working",
		"5m ago",
		"https://github.com/octo/weather/pull/1",
		"7 of 100 sessions used",
		"llama-70b",
		"30s",
		"todo",
		"created",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("dashboard missing %q", want)
		}
	}
}

func TestDashboard_NoSources(t *testing.T) {
	srv := NewServer(Options{})
	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "Orchestrator not running") {
		t.Error("expected placeholder when orchestrator is absent")
	}
}

func TestSessions(t *testing.T) {
	srv := NewServer(fixture())

	var all []orchestrator.Session
	decode(t, get(t, srv, "/api/sessions"), &all)
	if len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(all))
	}

	var done []orchestrator.Session
	decode(t, get(t, srv, "/api/sessions?state=COMPLETED"), &done)
	if len(done) != 1 || done[0].Repo != "weather" {
		t.Errorf("state filter returned %+v", done)
	}

	var none []orchestrator.Session
	rec := get(t, srv, "/api/sessions?state=STUCK")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %q", rec.Body.String())
	}
	decode(t, rec, &none)
}

func TestSession_WithHistory(t *testing.T) {
	srv := NewServer(fixture())

	rec := get(t, srv, "/api/sessions/l1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		ID      string            `json:"id"`
		State   string            `json:"state"`
		History []db.SessionEvent `json:"history"`
	}
	decode(t, rec, &got)
	if got.ID != "l1" || got.State != "WORKING" {
		t.Errorf("unexpected session %+v", got)
	}
	if len(got.History) != 2 {
		t.Errorf("history looked up by remote id: got %d events", len(got.History))
	}
}

func TestSession_HistoryOnly(t *testing.T) {
	opts := fixture()
	opts.Sessions = nil
	srv := NewServer(opts)

	rec := get(t, srv, "/api/sessions/r1")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSession_NotFound(t *testing.T) {
	srv := NewServer(fixture())
	if rec := get(t, srv, "/api/sessions/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestSession_HistoryError(t *testing.T) {
	opts := fixture()
	opts.History = &fakeHistory{err: errors.New("disk gone")}
	srv := NewServer(opts)
	if rec := get(t, srv, "/api/sessions/l1"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStatsQuotaModels(t *testing.T) {
	srv := NewServer(fixture())

	var st orchestrator.Stats
	decode(t, get(t, srv, "/api/stats"), &st)
	if st.Nudges != 2 || st.Running != 1 {
		t.Errorf("unexpected stats %+v", st)
	}

	var q struct {
		DailyLimit int `json:"daily_limit"`
		Remaining  int `json:"remaining"`
	}
	decode(t, get(t, srv, "/api/quota"), &q)
	if q.DailyLimit != 100 || q.Remaining != 93 {
		t.Errorf("unexpected quota %+v", q)
	}

	var chain struct {
		Models []struct {
			Name     string `json:"name"`
			Eligible bool   `json:"eligible"`
		} `json:"models"`
	}
	decode(t, get(t, srv, "/api/models"), &chain)
	if len(chain.Models) != 1 || chain.Models[0].Name != "llama-70b" || !chain.Models[0].Eligible {
		t.Errorf("unexpected models %+v", chain.Models)
	}
}

func TestUnavailableSources(t *testing.T) {
	srv := NewServer(Options{})
	for _, path := range []string{"/api/sessions", "/api/stats", "/api/quota", "/api/models", "/api/queue", "/api/events", "/api/stream"} {
		if rec := get(t, srv, path); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, rec.Code)
		}
	}
}

func TestQueue(t *testing.T) {
	srv := NewServer(fixture())
	var items []orchestrator.WorkItem
	decode(t, get(t, srv, "/api/queue"), &items)
	if len(items) != 1 || items[0].Repo != "todo" {
		t.Errorf("unexpected live queue %+v", items)
	}

	opts := fixture()
	opts.Sessions = nil
	opts.History = &fakeHistory{queue: []db.QueueItem{{ID: "p1", Repo: "stored", Status: db.QueuePending}}}
	srv = NewServer(opts)
	var stored []db.QueueItem
	decode(t, get(t, srv, "/api/queue"), &stored)
	if len(stored) != 1 || stored[0].Repo != "stored" {
		t.Errorf("unexpected persisted queue %+v", stored)
	}
}

func TestEvents(t *testing.T) {
	srv := NewServer(fixture())

	var events []db.SessionEvent
	decode(t, get(t, srv, "/api/events?limit=1"), &events)
	if len(events) != 1 || events[0].Event != "WORKING" {
		t.Errorf("unexpected events %+v", events)
	}

	for _, bad := range []string{"0", "-1", "abc", "5000"} {
		if rec := get(t, srv, "/api/events?limit="+bad); rec.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestStream_SendsSnapshot(t *testing.T) {
	srv := NewServer(fixture())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/stream", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "event: stats\ndata: ") {
		t.Fatalf("unexpected stream body %q", body)
	}
	if !strings.Contains(body, `"nudges":2`) || !strings.Contains(body, `"remaining":93`) {
		t.Errorf("snapshot missing counters: %q", body)
	}
}

func TestServe_ShutdownWithOpenStream(t *testing.T) {
	srv := NewServer(fixture())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/stream")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read first frame: %v", err)
	}
	if line != "event: stats\n" {
		t.Fatalf("first line = %q", line)
	}

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("shutdown blocked on the open stream")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}
}

func TestRelTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Time{}, ""},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-50 * time.Hour), "2d ago"},
	}
	for _, tt := range tests {
		if got := relTime(tt.in); got != tt.want {
			t.Errorf("relTime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFmtDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, ""},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}
	for _, tt := range tests {
		if got := fmtDuration(tt.in); got != tt.want {
			t.Errorf("fmtDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
