package analytics

import (
	"database/sql"
	"fmt"
	"math"
	"sort"
	"time"
)

// DB is the interface for database queries used by analytics.
type DB interface {
	Conn() *sql.DB
	Rebind(q string) string
}

// timestamp formats to try when parsing timestamps from the database
var timestampFormats = []string{
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, f := range timestampFormats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}

// ModelStats holds dispatch outcomes for one model.
type ModelStats struct {
	Model       string  `json:"model"`
	Provider    string  `json:"provider"`
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_pct"`
	Tokens      int     `json:"tokens"`
	AvgMs       float64 `json:"avg_ms"`
	P95Ms       float64 `json:"p95_ms"`
}

// QueryModelStats returns per-model attempt counts, success rate and latency,
// busiest model first.
func QueryModelStats(database DB, since string) ([]ModelStats, error) {
	query := `SELECT model, provider, success, tokens, duration_ms FROM dispatch_attempts`
	args := []interface{}{}
	if since != "" {
		query += ` WHERE timestamp >= ?`
		args = append(args, since)
	}

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query model stats: %w", err)
	}
	defer rows.Close()

	type key struct{ model, provider string }
	stats := make(map[key]*ModelStats)
	durations := make(map[key][]float64)
	for rows.Next() {
		var k key
		var success bool
		var tokens int
		var ms int64
		if err := rows.Scan(&k.model, &k.provider, &success, &tokens, &ms); err != nil {
			return nil, fmt.Errorf("scan dispatch attempt: %w", err)
		}
		s, ok := stats[k]
		if !ok {
			s = &ModelStats{Model: k.model, Provider: k.provider}
			stats[k] = s
		}
		s.Attempts++
		s.Tokens += tokens
		if success {
			s.Successes++
		}
		durations[k] = append(durations[k], float64(ms))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]ModelStats, 0, len(stats))
	for k, s := range stats {
		d := durations[k]
		sort.Float64s(d)
		s.SuccessRate = pct(s.Successes, s.Attempts)
		s.AvgMs = avg(d)
		s.P95Ms = percentile(d, 95)
		results = append(results, *s)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Attempts != results[j].Attempts {
			return results[i].Attempts > results[j].Attempts
		}
		if results[i].Model != results[j].Model {
			return results[i].Model < results[j].Model
		}
		return results[i].Provider < results[j].Provider
	})
	return results, nil
}

// SessionDuration holds duration stats for sessions that ended one way.
type SessionDuration struct {
	Outcome string  `json:"outcome"`
	Count   int     `json:"count"`
	Avg     float64 `json:"avg_minutes"`
	P50     float64 `json:"p50_minutes"`
	P95     float64 `json:"p95_minutes"`
}

// QuerySessionDurations pairs each session's "created" event with its first
// COMPLETED or FAILED event and summarises the elapsed minutes per outcome.
// Sessions still running are ignored.
func QuerySessionDurations(database DB, since string) ([]SessionDuration, error) {
	query := `
		SELECT session_id, event, timestamp FROM session_events
		WHERE event IN ('created', 'COMPLETED', 'FAILED')`
	args := []interface{}{}
	if since != "" {
		query += ` AND timestamp >= ?`
		args = append(args, since)
	}
	query += ` ORDER BY session_id, timestamp, id`

	rows, err := database.Conn().Query(database.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query session durations: %w", err)
	}
	defer rows.Close()

	starts := make(map[string]time.Time)
	ended := make(map[string]bool)
	byOutcome := make(map[string][]float64)
	for rows.Next() {
		var sessionID, event, ts string
		if err := rows.Scan(&sessionID, &event, &ts); err != nil {
			return nil, fmt.Errorf("scan session event: %w", err)
		}
		t, err := parseTimestamp(ts)
		if err != nil {
			continue
		}
		if event == "created" {
			starts[sessionID] = t
			continue
		}
		start, ok := starts[sessionID]
		if !ok || ended[sessionID] {
			continue
		}
		ended[sessionID] = true
		outcome := "completed"
		if event == "FAILED" {
			outcome = "failed"
		}
		if minutes := t.Sub(start).Minutes(); minutes >= 0 {
			byOutcome[outcome] = append(byOutcome[outcome], minutes)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var results []SessionDuration
	for outcome, d := range byOutcome {
		sort.Float64s(d)
		results = append(results, SessionDuration{
			Outcome: outcome,
			Count:   len(d),
			Avg:     avg(d),
			P50:     percentile(d, 50),
			P95:     percentile(d, 95),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Outcome < results[j].Outcome
	})
	return results, nil
}

// DailyThroughput counts session outcomes and interventions per day.
type DailyThroughput struct {
	Day        string `json:"day"`
	Created    int    `json:"created"`
	Completed  int    `json:"completed"`
	Failed     int    `json:"failed"`
	Nudges     int    `json:"nudges"`
	Recoveries int    `json:"recoveries"`
}

// QueryDailyThroughput returns up to days rows, newest first.
func QueryDailyThroughput(database DB, days int) ([]DailyThroughput, error) {
	if days <= 0 {
		days = 14
	}
	query := `
		SELECT
			substr(timestamp, 1, 10) AS day,
			SUM(CASE WHEN event = 'created' THEN 1 ELSE 0 END) AS created,
			SUM(CASE WHEN event = 'COMPLETED' THEN 1 ELSE 0 END) AS completed,
			SUM(CASE WHEN event = 'FAILED' THEN 1 ELSE 0 END) AS failed,
			SUM(CASE WHEN event = 'nudge' THEN 1 ELSE 0 END) AS nudges,
			SUM(CASE WHEN event = 'recovered' THEN 1 ELSE 0 END) AS recoveries
		FROM session_events
		WHERE event IN ('created', 'COMPLETED', 'FAILED', 'nudge', 'recovered')
		GROUP BY day ORDER BY day DESC LIMIT ?`

	rows, err := database.Conn().Query(database.Rebind(query), days)
	if err != nil {
		return nil, fmt.Errorf("query daily throughput: %w", err)
	}
	defer rows.Close()

	var results []DailyThroughput
	for rows.Next() {
		var dt DailyThroughput
		if err := rows.Scan(&dt.Day, &dt.Created, &dt.Completed, &dt.Failed, &dt.Nudges, &dt.Recoveries); err != nil {
			return nil, fmt.Errorf("scan throughput: %w", err)
		}
		results = append(results, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// --- helpers ---

func avg(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return math.Round(sum/float64(len(values))*10) / 10
}

func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := float64(p) / 100.0 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper || upper >= len(sorted) {
		return math.Round(sorted[lower]*10) / 10
	}
	weight := rank - float64(lower)
	return math.Round((sorted[lower]*(1-weight)+sorted[upper]*weight)*10) / 10
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
