package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SessionEvent represents a row in the session_events table.
type SessionEvent struct {
	ID        int64  `json:"id"`
	SessionID string `json:"session_id"`
	Repo      string `json:"repo"`
	Event     string `json:"event"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// DispatchAttempt represents a row in the dispatch_attempts table.
type DispatchAttempt struct {
	ID         int64  `json:"id"`
	Model      string `json:"model"`
	Provider   string `json:"provider"`
	JSONMode   bool   `json:"json_mode"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	Tokens     int    `json:"tokens"`
	DurationMs int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}

// LogSessionEvent inserts a session event. event is normally the state the
// session moved to, or an action such as "nudge" or "approve_plan".
func (d *DB) LogSessionEvent(sessionID, repo, event, detail string) error {
	_, err := d.exec(
		`INSERT INTO session_events (session_id, repo, event, detail, timestamp) VALUES (?, ?, ?, ?, ?)`,
		sessionID, repo, event, nullString(detail), d.timestamp(),
	)
	if err != nil {
		return fmt.Errorf("log session event: %w", err)
	}
	return nil
}

// SessionHistory returns all events for a session, oldest first.
func (d *DB) SessionHistory(sessionID string) ([]SessionEvent, error) {
	rows, err := d.query(
		`SELECT id, session_id, repo, event, detail, timestamp
		 FROM session_events WHERE session_id = ? ORDER BY timestamp, id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("get session history: %w", err)
	}
	return scanSessionEvents(rows)
}

// RecentSessionEvents returns the latest events across all sessions, newest
// first.
func (d *DB) RecentSessionEvents(limit int) ([]SessionEvent, error) {
	rows, err := d.query(
		`SELECT id, session_id, repo, event, detail, timestamp
		 FROM session_events ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get recent session events: %w", err)
	}
	return scanSessionEvents(rows)
}

func scanSessionEvents(rows *sql.Rows) ([]SessionEvent, error) {
	defer rows.Close()
	var events []SessionEvent
	for rows.Next() {
		var e SessionEvent
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Repo, &e.Event, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		e.Detail = detail.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// LogDispatchAttempt inserts one adapter call made by the fallback chain.
func (d *DB) LogDispatchAttempt(a DispatchAttempt) error {
	ts := a.Timestamp
	if ts == "" {
		ts = d.timestamp()
	}
	_, err := d.exec(
		`INSERT INTO dispatch_attempts (model, provider, json_mode, success, error, tokens, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Model, a.Provider, a.JSONMode, a.Success, nullString(a.Error), a.Tokens, a.DurationMs, ts,
	)
	if err != nil {
		return fmt.Errorf("log dispatch attempt: %w", err)
	}
	return nil
}

// RecentDispatchAttempts returns the latest attempts, newest first.
func (d *DB) RecentDispatchAttempts(limit int) ([]DispatchAttempt, error) {
	rows, err := d.query(
		`SELECT id, model, provider, json_mode, success, error, tokens, duration_ms, timestamp
		 FROM dispatch_attempts ORDER BY timestamp DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("get dispatch attempts: %w", err)
	}
	defer rows.Close()

	var out []DispatchAttempt
	for rows.Next() {
		var a DispatchAttempt
		var errText sql.NullString
		if err := rows.Scan(&a.ID, &a.Model, &a.Provider, &a.JSONMode, &a.Success, &errText, &a.Tokens, &a.DurationMs, &a.Timestamp); err != nil {
			return nil, fmt.Errorf("scan dispatch attempt: %w", err)
		}
		a.Error = errText.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// Queue statuses.
const (
	QueuePending   = "pending"
	QueueActive    = "active"
	QueueCompleted = "completed"
	QueueFailed    = "failed"
	QueueDropped   = "dropped"
)

// QueueItem represents a row in the work_queue table.
type QueueItem struct {
	ID             string `json:"id"`
	Repo           string `json:"repo"`
	Source         string `json:"source,omitempty"`
	Title          string `json:"title,omitempty"`
	Prompt         string `json:"prompt"`
	Priority       int    `json:"priority"`
	StartingBranch string `json:"starting_branch,omitempty"`
	Status         string `json:"status"`
	SessionID      string `json:"session_id,omitempty"`
	EnqueuedAt     string `json:"enqueued_at"`
	StartedAt      string `json:"started_at,omitempty"`
	FinishedAt     string `json:"finished_at,omitempty"`
}

// ErrDuplicateItem is returned by QueueAdd for an id already queued.
var ErrDuplicateItem = errors.New("work item already queued")

// QueueAdd inserts a pending item. EnqueuedAt defaults to now.
func (d *DB) QueueAdd(item QueueItem) error {
	var n int
	if err := d.queryRow(`SELECT COUNT(*) FROM work_queue WHERE id = ?`, item.ID).Scan(&n); err != nil {
		return fmt.Errorf("check queue item: %w", err)
	}
	if n > 0 {
		return fmt.Errorf("%s: %w", item.ID, ErrDuplicateItem)
	}
	enqueued := item.EnqueuedAt
	if enqueued == "" {
		enqueued = d.timestamp()
	}
	_, err := d.exec(
		`INSERT INTO work_queue (id, repo, source, title, prompt, priority, starting_branch, status, enqueued_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 'pending', ?)`,
		item.ID, item.Repo, nullString(item.Source), nullString(item.Title), item.Prompt, item.Priority,
		nullString(item.StartingBranch), enqueued,
	)
	if err != nil {
		return fmt.Errorf("insert queue item %s: %w", item.ID, err)
	}
	return nil
}

const queueColumns = `id, repo, source, title, prompt, priority, starting_branch, status, session_id, enqueued_at, started_at, finished_at`

// QueueList returns all items, highest priority first, then oldest first.
func (d *DB) QueueList() ([]QueueItem, error) {
	rows, err := d.query(`SELECT ` + queueColumns + ` FROM work_queue ORDER BY priority DESC, enqueued_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	return scanQueueItems(rows)
}

// QueuePending returns pending items in dequeue order.
func (d *DB) QueuePending() ([]QueueItem, error) {
	rows, err := d.query(`SELECT ` + queueColumns + ` FROM work_queue WHERE status = 'pending' ORDER BY priority DESC, enqueued_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list pending queue: %w", err)
	}
	return scanQueueItems(rows)
}

func scanQueueItems(rows *sql.Rows) ([]QueueItem, error) {
	defer rows.Close()
	var items []QueueItem
	for rows.Next() {
		var it QueueItem
		var source, title, branch, session, started, finished sql.NullString
		if err := rows.Scan(&it.ID, &it.Repo, &source, &title, &it.Prompt, &it.Priority, &branch, &it.Status,
			&session, &it.EnqueuedAt, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		it.Source = source.String
		it.Title = title.String
		it.StartingBranch = branch.String
		it.SessionID = session.String
		it.StartedAt = started.String
		it.FinishedAt = finished.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// QueueUpdateStatus updates an item's status. Sets started_at when moving to
// "active" and finished_at for terminal statuses. sessionID is stored when
// non-empty.
func (d *DB) QueueUpdateStatus(id, status, sessionID string) error {
	ts := d.timestamp()
	var res sql.Result
	var err error

	switch status {
	case QueueActive:
		res, err = d.exec(
			`UPDATE work_queue SET status = ?, started_at = ?, session_id = COALESCE(?, session_id) WHERE id = ?`,
			status, ts, nullString(sessionID), id)
	case QueueCompleted, QueueFailed, QueueDropped:
		res, err = d.exec(
			`UPDATE work_queue SET status = ?, finished_at = ?, session_id = COALESCE(?, session_id) WHERE id = ?`,
			status, ts, nullString(sessionID), id)
	case QueuePending:
		res, err = d.exec(`UPDATE work_queue SET status = ? WHERE id = ?`, status, id)
	default:
		return fmt.Errorf("unknown queue status %q", status)
	}
	if err != nil {
		return fmt.Errorf("update queue status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %s not found in queue", id)
	}
	return nil
}

// QueueRemove deletes a queue item.
func (d *DB) QueueRemove(id string) error {
	res, err := d.exec("DELETE FROM work_queue WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("remove from queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("item %s not found in queue", id)
	}
	return nil
}

// QueueClear deletes all items, returning the count deleted.
func (d *DB) QueueClear() (int, error) {
	res, err := d.exec("DELETE FROM work_queue")
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return int(n), nil
}

// Prune deletes events and attempts older than the cutoff and finished queue
// items, returning the number of rows removed.
func (d *DB) Prune(olderThan time.Duration) (int64, error) {
	cutoff := d.now().Add(-olderThan).UTC().Format(timestampLayout)
	var total int64
	for _, q := range []string{
		`DELETE FROM session_events WHERE timestamp < ?`,
		`DELETE FROM dispatch_attempts WHERE timestamp < ?`,
		`DELETE FROM work_queue WHERE status IN ('completed','failed','dropped') AND finished_at < ?`,
	} {
		res, err := d.exec(q, cutoff)
		if err != nil {
			return total, fmt.Errorf("prune: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
