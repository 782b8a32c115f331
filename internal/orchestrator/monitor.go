package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chirag127/chirag127.github.io-sub000/internal/dispatch"
	"github.com/chirag127/chirag127.github.io-sub000/internal/jules"
	"github.com/chirag127/chirag127.github.io-sub000/internal/prompt"
)

// Journal actions besides state names.
const (
	actionCreated        = "created"
	actionCreateFailed   = "create_failed"
	actionPlanApproved   = "plan_approved"
	actionNudge          = "nudge"
	actionNudgeFallback  = "nudge_fallback"
	actionRecovered      = "recovered"
	actionRecoveryFailed = "recovery_failed"
	actionPollError      = "poll_error"
)

// verdictRecoverable is the only diagnosis that sends a session back to work.
const verdictRecoverable = "recoverable"

const (
	activityWindow   = 10
	nudgeMaxTokens   = 200
	diagnoseMaxToken = 300
)

// event is one journal entry produced while stepping a session.
type event struct {
	action string
	detail string
}

// move transitions s to the given state, recording an event. Staying in the
// same state is silent; illegal moves are logged and ignored.
func (o *Orchestrator) move(s *Session, to State, detail string, evs *[]event) {
	if s.State == to {
		return
	}
	if !CanTransition(s.State, to) {
		o.log.Error().Str("session", s.ID).Str("from", string(s.State)).Str("to", string(to)).Msg("illegal transition ignored")
		return
	}
	o.log.Info().Str("session", s.journalID()).Str("repo", s.Repo).Str("from", string(s.State)).Str("to", string(to)).Str("detail", detail).Msg("session transition")
	s.State = to
	*evs = append(*evs, event{action: string(to), detail: detail})
}

func (o *Orchestrator) fail(s *Session, err error, detail string, evs *[]event) {
	s.Errors++
	s.LastError = err.Error()
	o.move(s, StateFailed, detail+": "+err.Error(), evs)
}

// create asks the agent API for a session and, on success, charges the quota.
func (o *Orchestrator) create(ctx context.Context, s Session, item WorkItem) (Session, []event) {
	var evs []event

	title := item.Title
	if title == "" {
		title = o.render(prompt.SessionTitle, prompt.Vars{"action": "Work", "repo": item.Repo})
	}
	branch := item.StartingBranch
	if branch == "" {
		branch = o.cfg.StartingBranch
	}
	remote, err := o.api.CreateSession(ctx, jules.CreateRequest{
		Prompt:              item.Prompt,
		Title:               title,
		Owner:               o.cfg.Owner,
		Repo:                item.Repo,
		StartingBranch:      branch,
		RequirePlanApproval: o.cfg.RequirePlanApproval,
	})
	if err != nil {
		o.log.Error().Err(err).Str("repo", item.Repo).Str("item", item.ID).Msg("create session failed, dropping item")
		o.fail(&s, err, "create", &evs)
		evs = append(evs, event{action: actionCreateFailed, detail: err.Error()})
		return s, evs
	}

	s.RemoteID = remote.ID
	s.RemoteState = remote.State
	s.URL = remote.URL
	s.LastActivity = o.now()

	ok, qerr := o.budget.ConsumeQuota(s.RemoteID, s.Repo, s.Priority)
	switch {
	case qerr != nil:
		o.log.Warn().Err(qerr).Str("session", s.RemoteID).Msg("persist quota")
	case !ok:
		o.log.Warn().Str("session", s.RemoteID).Msg("session started after quota cap was reached")
	}

	o.move(&s, StateActive, s.RemoteID, &evs)
	evs = append(evs, event{action: actionCreated, detail: s.URL})
	return s, evs
}

// poll refreshes s from the agent API and reacts to what it finds.
func (o *Orchestrator) poll(ctx context.Context, s Session) (Session, []event) {
	var evs []event
	now := o.now()

	remote, err := o.api.GetSession(ctx, s.RemoteID)
	if err != nil {
		s.Errors++
		s.LastError = err.Error()
		o.log.Warn().Err(err).Str("session", s.RemoteID).Msg("poll failed, keeping last state")
		evs = append(evs, event{action: actionPollError, detail: err.Error()})
		return s, evs
	}

	if remote.State != s.RemoteState {
		s.RemoteState = remote.State
		s.LastActivity = now
	}
	if remote.UpdateTime.After(s.LastActivity) && !remote.UpdateTime.After(now) {
		s.LastActivity = remote.UpdateTime
	}
	if remote.URL != "" {
		s.URL = remote.URL
	}

	switch remote.State {
	case jules.StateCompleted:
		s.PRURL = remote.PullRequestURL()
		o.move(&s, StateCompleting, "", &evs)
		o.move(&s, StateCompleted, s.PRURL, &evs)
		return s, evs

	case jules.StateFailed:
		o.move(&s, StateFailed, "remote session failed", &evs)
		return s, evs

	case jules.StateAwaitingPlanApproval:
		if o.cfg.AutoApprovePlans {
			if err := o.api.ApprovePlan(ctx, s.RemoteID); err != nil {
				s.Errors++
				s.LastError = err.Error()
				o.log.Warn().Err(err).Str("session", s.RemoteID).Msg("approve plan")
			} else {
				s.LastActivity = now
				evs = append(evs, event{action: actionPlanApproved})
			}
		}
		o.move(&s, StateActive, "", &evs)

	case jules.StateAwaitingUserFeedback:
		msg, fallback := o.nudge(ctx, s)
		if fallback {
			evs = append(evs, event{action: actionNudgeFallback})
		}
		if err := o.api.SendMessage(ctx, s.RemoteID, msg); err != nil {
			s.Errors++
			s.LastError = err.Error()
			o.log.Warn().Err(err).Str("session", s.RemoteID).Msg("send nudge")
		} else {
			s.LastActivity = now
			evs = append(evs, event{action: actionNudge, detail: msg})
		}
		o.move(&s, StateActive, "", &evs)

	default:
		o.move(&s, StateWorking, string(remote.State), &evs)
	}

	if idle := now.Sub(s.LastActivity); idle > o.cfg.InactivityThreshold {
		s.StuckPasses++
	} else {
		s.StuckPasses = 0
	}
	if s.StuckPasses >= o.cfg.StuckThreshold {
		idle := now.Sub(s.LastActivity).Round(time.Second)
		o.move(&s, StateStuck, fmt.Sprintf("idle %s over %d passes", idle, s.StuckPasses), &evs)
		o.recoverStuck(ctx, &s, &evs)
	}
	return s, evs
}

// recoverStuck diagnoses a stuck session and either sends it back to work or
// fails it.
func (o *Orchestrator) recoverStuck(ctx context.Context, s *Session, evs *[]event) {
	o.move(s, StateRecovering, "", evs)

	verdict, reason := o.diagnose(ctx, *s)
	if verdict != verdictRecoverable {
		o.log.Warn().Str("session", s.RemoteID).Str("verdict", verdict).Str("reason", reason).Msg("session not recoverable")
		*evs = append(*evs, event{action: actionRecoveryFailed, detail: verdict + ": " + reason})
		o.move(s, StateFailed, "diagnosis "+verdict+": "+reason, evs)
		return
	}

	msg := o.render(prompt.Proceed, nil)
	if err := o.api.SendMessage(ctx, s.RemoteID, msg); err != nil {
		*evs = append(*evs, event{action: actionRecoveryFailed, detail: err.Error()})
		o.fail(s, err, "recovery message", evs)
		return
	}
	s.Retries++
	s.StuckPasses = 0
	s.LastActivity = o.now()
	*evs = append(*evs, event{action: actionRecovered, detail: reason})
	o.move(s, StateActive, reason, evs)
}

// diagnose asks a large model whether s can continue. Any failure to get a
// verdict is reported as "unknown".
func (o *Orchestrator) diagnose(ctx context.Context, s Session) (verdict, reason string) {
	vars := prompt.Vars{
		"session":  s.RemoteID,
		"repo":     s.Repo,
		"idle":     o.now().Sub(s.LastActivity).Round(time.Second).String(),
		"state":    string(s.RemoteState),
		"activity": o.recentActivity(ctx, s),
	}
	res := o.gen.GenerateJSON(ctx, dispatch.GenerateRequest{
		Prompt:       o.render(prompt.Diagnose, vars),
		SystemPrompt: o.render(prompt.DiagnoseSystem, nil),
		MaxTokens:    diagnoseMaxToken,
		MinModelSize: o.cfg.DiagnoseMinSize,
	})
	if !res.Success {
		return "unknown", "diagnosis unavailable: " + res.Error
	}
	obj, ok := res.Parsed.(map[string]any)
	if !ok {
		return "unknown", "diagnosis was not an object"
	}
	status, _ := obj["status"].(string)
	reason, _ = obj["reason"].(string)
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		status = "unknown"
	}
	return status, reason
}

// nudge writes a reply for a session waiting on the user, preferring a small
// model and falling back to canned text.
func (o *Orchestrator) nudge(ctx context.Context, s Session) (msg string, fallback bool) {
	vars := prompt.Vars{"repo": s.Repo, "activity": o.recentActivity(ctx, s)}
	res := o.gen.GenerateWithTier(ctx, dispatch.GenerateRequest{
		Prompt:       o.render(prompt.Nudge, vars),
		SystemPrompt: o.render(prompt.NudgeSystem, nil),
		MaxTokens:    nudgeMaxTokens,
	}, o.cfg.NudgeStartTier)
	if text := strings.TrimSpace(res.Content); res.Success && text != "" {
		return text, false
	}
	o.log.Debug().Str("session", s.RemoteID).Str("error", res.Error).Msg("nudge generation failed, using fallback")
	return o.render(prompt.NudgeFallback, vars), true
}

// recentActivity summarises the latest activities, oldest first.
func (o *Orchestrator) recentActivity(ctx context.Context, s Session) string {
	acts, err := o.api.ListActivities(ctx, s.RemoteID, activityWindow)
	if err != nil {
		o.log.Debug().Err(err).Str("session", s.RemoteID).Msg("list activities")
		return "(activity unavailable)"
	}
	if len(acts) == 0 {
		return "(no activity)"
	}
	if len(acts) > activityWindow {
		acts = acts[len(acts)-activityWindow:]
	}
	var b strings.Builder
	for _, a := range acts {
		fmt.Fprintf(&b, "- %s\n", a.Summary())
	}
	return strings.TrimRight(b.String(), "\n")
}

// render expands a template, falling back to the built-in text when a user
// override does not render.
func (o *Orchestrator) render(name string, vars prompt.Vars) string {
	out, err := o.prompts.Render(name, vars)
	if err == nil {
		return out
	}
	o.log.Warn().Err(err).Str("template", name).Msg("template override failed, using built-in")
	out, _ = prompt.NewSet(nil).Render(name, vars)
	return out
}
