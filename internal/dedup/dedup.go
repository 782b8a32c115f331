// Package dedup classifies candidate project ideas as new work or updates to
// an existing repository by fuzzy-matching them against the repository list.
package dedup

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Default thresholds on the 0-100 similarity scale.
const (
	DefaultUpdateThreshold  = 80
	DefaultRelatedThreshold = 60
)

// Task is the classification outcome.
type Task string

const (
	TaskCreate Task = "CREATE"
	TaskUpdate Task = "UPDATE"
)

// Repo is an existing repository.
type Repo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Trend is a candidate idea.
type Trend struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
}

// Classified is a Trend with its verdict.
type Classified struct {
	Trend
	Task        Task    `json:"task"`
	Similarity  float64 `json:"similarity"`
	MatchedRepo string  `json:"matched_repo,omitempty"`
	// Related names the closest repository when a CREATE scored in the
	// related band.
	Related string `json:"related,omitempty"`
	Reason  string `json:"reason"`
}

// Options sets the thresholds. Zero values use the defaults.
type Options struct {
	UpdateThreshold  float64
	RelatedThreshold float64
}

type indexedRepo struct {
	name string
	norm string
	desc string
}

// Deduplicator holds the normalized repository list.
type Deduplicator struct {
	repos   []indexedRepo
	update  float64
	related float64
}

// New indexes repos for matching.
func New(repos []Repo, opts Options) *Deduplicator {
	d := &Deduplicator{update: opts.UpdateThreshold, related: opts.RelatedThreshold}
	if d.update <= 0 {
		d.update = DefaultUpdateThreshold
	}
	if d.related <= 0 {
		d.related = DefaultRelatedThreshold
	}
	for _, r := range repos {
		if r.Name == "" {
			continue
		}
		d.repos = append(d.repos, indexedRepo{name: r.Name, norm: Normalize(r.Name), desc: Normalize(r.Description)})
	}
	return d
}

// Classify scores t against every repository name and description and keeps
// the best match.
func (d *Deduplicator) Classify(t Trend) Classified {
	c := Classified{Trend: t, Task: TaskCreate}
	if len(d.repos) == 0 {
		c.Reason = "novel idea: no existing repositories"
		return c
	}

	title := Normalize(t.Title)
	var best float64
	var match string
	for _, r := range d.repos {
		if s := TokenSetRatio(title, r.norm); s > best {
			best, match = s, r.name
		}
		if r.desc == "" {
			continue
		}
		if s := TokenSetRatio(title, r.desc); s > best {
			best, match = s, r.name
		}
	}
	c.Similarity = best

	switch {
	case best >= d.update:
		c.Task = TaskUpdate
		c.MatchedRepo = match
		c.Reason = fmt.Sprintf("%.0f%% similar to existing repository %s", best, match)
	case best >= d.related:
		c.Related = match
		c.Reason = fmt.Sprintf("possibly related to %s (%.0f%% similar)", match, best)
	default:
		c.Reason = "novel idea"
	}
	return c
}

// ClassifyAll classifies each trend in order.
func (d *Deduplicator) ClassifyAll(trends []Trend) []Classified {
	out := make([]Classified, len(trends))
	for i, t := range trends {
		out[i] = d.Classify(t)
	}
	return out
}

// Normalize lowercases s and collapses every run of non-alphanumeric
// characters to a single space.
func Normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// TokenSetRatio scores a and b 0-100 ignoring token order and duplicates.
// The shared tokens are compared against each side's full token set, so a
// string whose tokens are a subset of the other's scores 100.
func TokenSetRatio(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	var common, onlyA, onlyB []string
	for t := range ta {
		if tb[t] {
			common = append(common, t)
		} else {
			onlyA = append(onlyA, t)
		}
	}
	for t := range tb {
		if !ta[t] {
			onlyB = append(onlyB, t)
		}
	}
	sort.Strings(common)
	sort.Strings(onlyA)
	sort.Strings(onlyB)

	base := strings.Join(common, " ")
	withA := strings.TrimSpace(base + " " + strings.Join(onlyA, " "))
	withB := strings.TrimSpace(base + " " + strings.Join(onlyB, " "))

	best := ratio(withA, withB)
	if base != "" {
		best = max(best, ratio(base, withA), ratio(base, withB))
	}
	return best
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.Fields(s) {
		set[f] = true
	}
	return set
}

// ratio is the normalized edit similarity of a and b, 0-100.
func ratio(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 100
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 100 * float64(longest-dist) / float64(longest)
}

// Slug turns an idea title into a repository name: lowercase words joined by
// hyphens.
func Slug(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "-")
}
