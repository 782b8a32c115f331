package orchestrator

import (
	"time"

	"github.com/chirag127/chirag127.github.io-sub000/internal/jules"
	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
)

// State is the local lifecycle state of a session.
type State string

const (
	StateQueued     State = "QUEUED"
	StateCreating   State = "CREATING"
	StateActive     State = "ACTIVE"
	StateWorking    State = "WORKING"
	StateStuck      State = "STUCK"
	StateRecovering State = "RECOVERING"
	StateCompleting State = "COMPLETING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

// Terminal reports whether the session is out of monitoring for good.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Running reports whether the session counts against max_parallel.
func (s State) Running() bool {
	return s == StateCreating || s == StateActive || s == StateWorking
}

// transitions lists the legal moves. FAILED is reachable from every
// non-terminal state and is handled separately.
var transitions = map[State][]State{
	StateQueued:     {StateCreating},
	StateCreating:   {StateActive},
	StateActive:     {StateWorking, StateStuck, StateCompleting},
	StateWorking:    {StateActive, StateStuck, StateCompleting},
	StateStuck:      {StateRecovering},
	StateRecovering: {StateActive},
	StateCompleting: {StateCompleted},
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// WorkItem is a unit of work waiting for a session.
type WorkItem struct {
	ID             string         `json:"id"`
	Repo           string         `json:"repo"`
	Source         string         `json:"source,omitempty"`
	Title          string         `json:"title,omitempty"`
	Prompt         string         `json:"prompt"`
	Priority       quota.Priority `json:"priority"`
	StartingBranch string         `json:"starting_branch,omitempty"`
	EnqueuedAt     time.Time      `json:"enqueued_at"`
}

// Session is the orchestrator's view of one coding-agent session.
type Session struct {
	ID           string         `json:"id"`
	ItemID       string         `json:"item_id"`
	RemoteID     string         `json:"remote_id,omitempty"`
	Repo         string         `json:"repo"`
	Source       string         `json:"source,omitempty"`
	Title        string         `json:"title,omitempty"`
	Prompt       string         `json:"prompt"`
	Priority     quota.Priority `json:"priority"`
	State        State          `json:"state"`
	RemoteState  jules.State    `json:"remote_state,omitempty"`
	URL          string         `json:"url,omitempty"`
	PRURL        string         `json:"pr_url,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	Errors       int            `json:"errors"`
	Retries      int            `json:"retries"`
	StuckPasses  int            `json:"stuck_passes"`
	LastError    string         `json:"last_error,omitempty"`
}

// journalID is the id events are logged under: the remote id once known.
func (s *Session) journalID() string {
	if s.RemoteID != "" {
		return s.RemoteID
	}
	return s.ID
}

// Stats are counters accumulated over the orchestrator's lifetime plus a
// census of current session states.
type Stats struct {
	Queued           int  `json:"queued"`
	Running          int  `json:"running"`
	Completed        int  `json:"completed"`
	Failed           int  `json:"failed"`
	Created          int  `json:"created"`
	CreateFailures   int  `json:"create_failures"`
	PlansApproved    int  `json:"plans_approved"`
	Nudges           int  `json:"nudges"`
	NudgeFallbacks   int  `json:"nudge_fallbacks"`
	Recoveries       int  `json:"recoveries"`
	RecoveryFailures int  `json:"recovery_failures"`
	PollErrors       int  `json:"poll_errors"`
	Panics           int  `json:"panics"`
	Passes           int  `json:"passes"`
	BudgetExhausted  bool `json:"budget_exhausted"`
}
