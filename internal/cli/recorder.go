package cli

import (
	"context"

	"github.com/chirag127/chirag127.github.io-sub000/internal/db"
	"github.com/chirag127/chirag127.github.io-sub000/internal/dispatch"
)

// attemptRecorder persists dispatch attempts to the event log.
type attemptRecorder struct {
	db *db.DB
}

func (r *attemptRecorder) RecordAttempt(_ context.Context, a dispatch.Attempt) error {
	row := db.DispatchAttempt{
		Model:      a.Model,
		Provider:   a.Provider.String(),
		JSONMode:   a.JSON,
		Success:    a.Success,
		Error:      a.Error,
		Tokens:     a.Tokens,
		DurationMs: a.Duration.Milliseconds(),
	}
	if !a.At.IsZero() {
		row.Timestamp = a.At.UTC().Format("2006-01-02 15:04:05.000000")
	}
	return r.db.LogDispatchAttempt(row)
}
