// Package quota gates session creation against a daily cap with a reserved
// pool for high-priority work. State survives restarts through a JSON file.
package quota

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chirag127/chirag127.github.io-sub000/internal/fsutil"
)

const dateLayout = "2006-01-02"

// SessionRecord is one consumed unit of quota.
type SessionRecord struct {
	ID        string    `json:"id"`
	Repo      string    `json:"repo"`
	Priority  Priority  `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the persisted quota document.
type State struct {
	Date          string           `json:"date"`
	DailyLimit    int              `json:"daily_limit"`
	ReservedQuota int              `json:"reserved_quota"`
	SessionsUsed  int              `json:"sessions_used"`
	ByPriority    map[Priority]int `json:"by_priority"`
	Sessions      []SessionRecord  `json:"sessions"`
}

// Status is a read-only snapshot of State plus derived values.
type Status struct {
	State
	Remaining         int `json:"remaining"`
	RemainingStandard int `json:"remaining_standard"`
}

// Options configures a Manager.
type Options struct {
	Now    func() time.Time
	Logger *zerolog.Logger
}

// Manager owns the quota state. It is safe for concurrent use.
type Manager struct {
	path string
	now  func() time.Time
	log  zerolog.Logger

	mu    sync.Mutex
	state State
}

// New loads the quota file at path, creating fresh state when it does not
// exist. dailyLimit and reserved always come from configuration; a stored
// count from an earlier day is discarded. An empty path keeps state in memory.
func New(path string, dailyLimit, reserved int, opts Options) (*Manager, error) {
	if dailyLimit < 1 {
		return nil, fmt.Errorf("daily limit must be at least 1, got %d", dailyLimit)
	}
	if reserved < 0 || reserved > dailyLimit {
		return nil, fmt.Errorf("reserved quota %d out of range [0, %d]", reserved, dailyLimit)
	}

	m := &Manager{path: path, now: opts.Now}
	if m.now == nil {
		m.now = time.Now
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	m.log = logger.With().Str("component", "quota").Logger()

	if path != "" {
		var st State
		err := fsutil.ReadJSON(path, &st)
		switch {
		case err == nil:
			m.state = st
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("load quota state: %w", err)
		}
	}
	m.state.DailyLimit = dailyLimit
	m.state.ReservedQuota = reserved
	if m.state.ByPriority == nil {
		m.state.ByPriority = make(map[Priority]int)
	}
	if m.state.Date == "" {
		m.state.Date = m.today()
	}
	m.rollover()
	if m.state.SessionsUsed > dailyLimit {
		m.state.SessionsUsed = dailyLimit
	}
	return m, nil
}

func (m *Manager) today() string {
	return m.now().Format(dateLayout)
}

// rollover resets the counters when the clock has moved to a later date.
// Callers hold mu.
func (m *Manager) rollover() {
	today := m.today()
	if today <= m.state.Date {
		return
	}
	m.log.Info().Str("from", m.state.Date).Str("to", today).Int("used", m.state.SessionsUsed).Msg("quota date rollover")
	m.state.Date = today
	m.state.SessionsUsed = 0
	m.state.ByPriority = make(map[Priority]int)
	m.state.Sessions = nil
}

// CanCreateSession reports whether a session of priority p may start now.
// Low and normal work may not touch the reserved pool.
func (m *Manager) CanCreateSession(p Priority) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	if m.state.SessionsUsed >= m.state.DailyLimit {
		return false
	}
	if p.Reserved() {
		return true
	}
	return m.state.SessionsUsed < m.state.DailyLimit-m.state.ReservedQuota
}

// Headroom is how many more sessions of priority p may start today.
func (m *Manager) Headroom(p Priority) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	limit := m.state.DailyLimit
	if !p.Reserved() {
		limit -= m.state.ReservedQuota
	}
	if n := limit - m.state.SessionsUsed; n > 0 {
		return n
	}
	return 0
}

// ConsumeQuota records one session against today's budget. It returns false
// when the cap is already reached. The state file is rewritten after each
// successful consumption; a write failure is returned with ok still true since
// the in-memory count has advanced.
func (m *Manager) ConsumeQuota(sessionID, repo string, p Priority) (ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	if m.state.SessionsUsed >= m.state.DailyLimit {
		return false, nil
	}
	m.state.SessionsUsed++
	m.state.ByPriority[p]++
	m.state.Sessions = append(m.state.Sessions, SessionRecord{
		ID:        sessionID,
		Repo:      repo,
		Priority:  p,
		Timestamp: m.now(),
	})
	m.log.Debug().Str("session", sessionID).Str("repo", repo).Int("used", m.state.SessionsUsed).Msg("quota consumed")
	return true, m.saveLocked()
}

// Remaining is today's unused budget.
func (m *Manager) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()
	return m.state.DailyLimit - m.state.SessionsUsed
}

// Status returns a deep copy of today's state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollover()

	st := m.state
	st.ByPriority = make(map[Priority]int, len(m.state.ByPriority))
	for k, v := range m.state.ByPriority {
		st.ByPriority[k] = v
	}
	st.Sessions = append([]SessionRecord(nil), m.state.Sessions...)

	standard := st.DailyLimit - st.ReservedQuota - st.SessionsUsed
	if standard < 0 {
		standard = 0
	}
	return Status{
		State:             st,
		Remaining:         st.DailyLimit - st.SessionsUsed,
		RemainingStandard: standard,
	}
}

// Save writes the current state to disk.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if m.path == "" {
		return nil
	}
	if err := fsutil.WriteJSON(m.path, m.state); err != nil {
		return fmt.Errorf("save quota state: %w", err)
	}
	return nil
}
