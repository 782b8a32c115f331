package github

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// DefaultLimit caps repository listings.
const DefaultLimit = 200

// CmdRunner provides command execution. Interface for testing.
type CmdRunner interface {
	Run(args ...string) (string, error)
}

// ExecRunner runs gh commands via exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(args ...string) (string, error) {
	cmd := exec.Command("gh", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("gh %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Client provides GitHub operations through the gh CLI.
type Client struct {
	cmd CmdRunner
}

// NewClient creates a GitHub client.
func NewClient(cmd CmdRunner) *Client {
	return &Client{cmd: cmd}
}

// Repo is one repository of the owner.
type Repo struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	URL         string    `json:"url,omitempty"`
	IsArchived  bool      `json:"isArchived,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// CurrentUser returns the login gh is authenticated as.
func (c *Client) CurrentUser() (string, error) {
	out, err := c.cmd.Run("api", "user", "--jq", ".login")
	if err != nil {
		return "", fmt.Errorf("get current user: %w", err)
	}
	if out == "" {
		return "", fmt.Errorf("get current user: empty login")
	}
	return out, nil
}

// ListRepos lists up to limit repositories of owner. An empty owner means the
// authenticated user. Archived repositories are skipped.
func (c *Client) ListRepos(owner string, limit int) ([]Repo, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	args := []string{"repo", "list"}
	if owner != "" {
		args = append(args, owner)
	}
	args = append(args, "--json", "name,description,url,isArchived,updatedAt", "--limit", strconv.Itoa(limit))

	out, err := c.cmd.Run(args...)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	if out == "" {
		return nil, nil
	}

	var all []Repo
	if err := json.Unmarshal([]byte(out), &all); err != nil {
		return nil, fmt.Errorf("parse repo list JSON: %w", err)
	}
	repos := all[:0]
	for _, r := range all {
		if !r.IsArchived {
			repos = append(repos, r)
		}
	}
	return repos, nil
}

// PRStatus is the state of a pull request.
type PRStatus struct {
	URL      string     `json:"url"`
	State    string     `json:"state"`
	Title    string     `json:"title"`
	MergedAt *time.Time `json:"mergedAt,omitempty"`
}

// Merged reports whether the PR landed.
func (p *PRStatus) Merged() bool {
	return p.State == "MERGED"
}

// GetPR fetches the state of the pull request at url.
func (c *Client) GetPR(url string) (*PRStatus, error) {
	if url == "" {
		return nil, fmt.Errorf("get PR: empty url")
	}
	out, err := c.cmd.Run("pr", "view", url, "--json", "url,state,title,mergedAt")
	if err != nil {
		return nil, fmt.Errorf("get PR %s: %w", url, err)
	}
	var pr PRStatus
	if err := json.Unmarshal([]byte(out), &pr); err != nil {
		return nil, fmt.Errorf("parse PR JSON: %w", err)
	}
	return &pr, nil
}
