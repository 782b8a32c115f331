// Package jules is a REST client for the Jules coding-agent API.
package jules

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public API root.
const DefaultBaseURL = "https://jules.googleapis.com/v1alpha"

// State is the remote session state.
type State string

const (
	StateUnspecified          State = "STATE_UNSPECIFIED"
	StateQueued               State = "QUEUED"
	StatePlanning             State = "PLANNING"
	StateAwaitingPlanApproval State = "AWAITING_PLAN_APPROVAL"
	StateAwaitingUserFeedback State = "AWAITING_USER_FEEDBACK"
	StateInProgress           State = "IN_PROGRESS"
	StatePaused               State = "PAUSED"
	StateFailed               State = "FAILED"
	StateCompleted            State = "COMPLETED"
)

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// PullRequest is the PR a session produced.
type PullRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Output is one session output.
type Output struct {
	PullRequest *PullRequest `json:"pullRequest,omitempty"`
}

// SourceContext points a session at a repository.
type SourceContext struct {
	Source            string             `json:"source"`
	GithubRepoContext *GithubRepoContext `json:"githubRepoContext,omitempty"`
}

// GithubRepoContext selects the branch to start from.
type GithubRepoContext struct {
	StartingBranch string `json:"startingBranch,omitempty"`
}

// Session is the remote session resource.
type Session struct {
	Name                string        `json:"name,omitempty"`
	ID                  string        `json:"id,omitempty"`
	Title               string        `json:"title,omitempty"`
	Prompt              string        `json:"prompt,omitempty"`
	State               State         `json:"state,omitempty"`
	URL                 string        `json:"url,omitempty"`
	SourceContext       SourceContext `json:"sourceContext"`
	RequirePlanApproval bool          `json:"requirePlanApproval,omitempty"`
	AutomationMode      string        `json:"automationMode,omitempty"`
	Outputs             []Output      `json:"outputs,omitempty"`
	CreateTime          time.Time     `json:"createTime,omitempty"`
	UpdateTime          time.Time     `json:"updateTime,omitempty"`
}

// PullRequestURL returns the first PR URL among the outputs, or "".
func (s *Session) PullRequestURL() string {
	for _, o := range s.Outputs {
		if o.PullRequest != nil && o.PullRequest.URL != "" {
			return o.PullRequest.URL
		}
	}
	return ""
}

// Activity is one entry of a session's activity log. Exactly one of the
// event fields is normally set.
type Activity struct {
	Name        string    `json:"name,omitempty"`
	ID          string    `json:"id,omitempty"`
	Description string    `json:"description,omitempty"`
	Originator  string    `json:"originator,omitempty"`
	CreateTime  time.Time `json:"createTime"`

	AgentMessaged *struct {
		AgentMessage string `json:"agentMessage"`
	} `json:"agentMessaged,omitempty"`
	UserMessaged *struct {
		UserMessage string `json:"userMessage"`
	} `json:"userMessaged,omitempty"`
	PlanGenerated *struct {
		Plan struct {
			Steps []struct {
				Title string `json:"title"`
			} `json:"steps"`
		} `json:"plan"`
	} `json:"planGenerated,omitempty"`
	ProgressUpdated *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	} `json:"progressUpdated,omitempty"`
	SessionFailed *struct {
		Reason string `json:"reason"`
	} `json:"sessionFailed,omitempty"`
}

// Summary renders the activity as one line of text.
func (a Activity) Summary() string {
	switch {
	case a.AgentMessaged != nil:
		return "agent: " + a.AgentMessaged.AgentMessage
	case a.UserMessaged != nil:
		return "user: " + a.UserMessaged.UserMessage
	case a.PlanGenerated != nil:
		return fmt.Sprintf("plan generated (%d steps)", len(a.PlanGenerated.Plan.Steps))
	case a.ProgressUpdated != nil:
		return strings.TrimSpace("progress: " + a.ProgressUpdated.Title + " " + a.ProgressUpdated.Description)
	case a.SessionFailed != nil:
		return "failed: " + a.SessionFailed.Reason
	case a.Description != "":
		return a.Description
	}
	return a.Name
}

// CreateRequest describes a new session.
type CreateRequest struct {
	Prompt              string
	Title               string
	Owner               string
	Repo                string
	StartingBranch      string
	RequirePlanApproval bool
}

// APIError is a non-2xx answer.
type APIError struct {
	Op     string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	return fmt.Sprintf("jules %s: status %d: %s", e.Op, e.Status, body)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Client calls the Jules API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     zerolog.Logger
}

// New builds a Client authenticating with apiKey.
func New(apiKey string, opts Options) *Client {
	c := &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  apiKey,
		http:    opts.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.http == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.http = &http.Client{Timeout: timeout}
	}
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	c.log = logger.With().Str("component", "jules").Logger()
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool { return c.apiKey != "" }

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if c.apiKey == "" {
		return fmt.Errorf("jules %s: api key not configured", op)
	}
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("jules %s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("jules %s: build request: %w", op, err)
	}
	req.Header.Set("X-Goog-Api-Key", c.apiKey)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jules %s: %w", op, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("jules %s: read response: %w", op, err)
	}
	c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("api call")

	if resp.StatusCode/100 != 2 {
		return &APIError{Op: op, Status: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("jules %s: decode response: %w", op, err)
	}
	return nil
}

func sessionPath(id string) string {
	return "/sessions/" + url.PathEscape(strings.TrimPrefix(id, "sessions/"))
}

type createBody struct {
	Prompt              string        `json:"prompt"`
	Title               string        `json:"title,omitempty"`
	SourceContext       SourceContext `json:"sourceContext"`
	RequirePlanApproval bool          `json:"requirePlanApproval"`
	AutomationMode      string        `json:"automationMode"`
}

// CreateSession starts a session that opens a PR automatically.
func (c *Client) CreateSession(ctx context.Context, r CreateRequest) (*Session, error) {
	in := createBody{
		Prompt: r.Prompt,
		Title:  r.Title,
		SourceContext: SourceContext{
			Source:            fmt.Sprintf("sources/github/%s/%s", r.Owner, r.Repo),
			GithubRepoContext: &GithubRepoContext{StartingBranch: r.StartingBranch},
		},
		RequirePlanApproval: r.RequirePlanApproval,
		AutomationMode:      "AUTO_CREATE_PR",
	}
	var out Session
	if err := c.do(ctx, "create session", http.MethodPost, "/sessions", in, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = strings.TrimPrefix(out.Name, "sessions/")
	}
	if out.ID == "" {
		return nil, fmt.Errorf("jules create session: response carried no session id")
	}
	return &out, nil
}

// GetSession fetches one session.
func (c *Client) GetSession(ctx context.Context, id string) (*Session, error) {
	var out Session
	if err := c.do(ctx, "get session", http.MethodGet, sessionPath(id), nil, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = strings.TrimPrefix(out.Name, "sessions/")
	}
	return &out, nil
}

// ListSessions returns every session, following page tokens.
func (c *Client) ListSessions(ctx context.Context, pageSize int) ([]Session, error) {
	var all []Session
	token := ""
	for {
		q := url.Values{}
		if pageSize > 0 {
			q.Set("pageSize", fmt.Sprint(pageSize))
		}
		if token != "" {
			q.Set("pageToken", token)
		}
		path := "/sessions"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
		var page struct {
			Sessions      []Session `json:"sessions"`
			NextPageToken string    `json:"nextPageToken"`
		}
		if err := c.do(ctx, "list sessions", http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Sessions...)
		if page.NextPageToken == "" {
			return all, nil
		}
		token = page.NextPageToken
	}
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "delete session", http.MethodDelete, sessionPath(id), nil, nil)
}

// ApprovePlan approves the session's pending plan.
func (c *Client) ApprovePlan(ctx context.Context, id string) error {
	return c.do(ctx, "approve plan", http.MethodPost, sessionPath(id)+":approvePlan", struct{}{}, nil)
}

// SendMessage posts a user message to the session.
func (c *Client) SendMessage(ctx context.Context, id, prompt string) error {
	in := struct {
		Prompt string `json:"prompt"`
	}{Prompt: prompt}
	return c.do(ctx, "send message", http.MethodPost, sessionPath(id)+":sendMessage", in, nil)
}

// ListActivities returns up to pageSize of the session's activities.
func (c *Client) ListActivities(ctx context.Context, id string, pageSize int) ([]Activity, error) {
	path := sessionPath(id) + "/activities"
	if pageSize > 0 {
		path += fmt.Sprintf("?pageSize=%d", pageSize)
	}
	var out struct {
		Activities []Activity `json:"activities"`
	}
	if err := c.do(ctx, "list activities", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Activities, nil
}
