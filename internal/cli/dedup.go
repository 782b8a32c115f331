package cli

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chirag127/chirag127.github.io-sub000/internal/db"
	"github.com/chirag127/chirag127.github.io-sub000/internal/dedup"
	"github.com/chirag127/chirag127.github.io-sub000/internal/prompt"
	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup [title]...",
	Short: "Classify project ideas as new repositories or updates to existing ones",
	Long: `Compare each idea title against your repository names and descriptions
(listed through the gh CLI) and classify it as CREATE or UPDATE.

Ideas come from the arguments or from --file: either a JSON array of
{"title", "description", "source"} objects, or plain text with one idea per
line written as "title" or "title | description". Use "-" to read stdin.

With --enqueue, each idea is added to the work queue with the create or update
prompt. CREATE ideas are queued against a repository named after the title.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		owner, _ := cmd.Flags().GetString("owner")
		enqueue, _ := cmd.Flags().GetBool("enqueue")
		prio, _ := cmd.Flags().GetString("priority")
		format, _ := cmd.Flags().GetString("format")

		trends := make([]dedup.Trend, 0, len(args))
		for _, a := range args {
			trends = append(trends, dedup.Trend{Title: a, Source: "manual"})
		}
		if file != "" {
			more, err := readTrendFile(cmd, file)
			if err != nil {
				return err
			}
			trends = append(trends, more...)
		}
		if len(trends) == 0 {
			return fmt.Errorf("no ideas given: pass titles or --file")
		}
		p, err := quota.ParsePriority(prio)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if owner == "" {
			owner = cfg.GitHub.Owner
		}

		gh := newGitHub()
		if owner == "" {
			if owner, err = gh.CurrentUser(); err != nil {
				return err
			}
		}
		listed, err := gh.ListRepos(owner, cfg.GitHub.Limit)
		if err != nil {
			return err
		}
		repos := make([]dedup.Repo, 0, len(listed))
		for _, r := range listed {
			repos = append(repos, dedup.Repo{Name: r.Name, Description: r.Description})
		}

		d := dedup.New(repos, dedup.Options{
			UpdateThreshold:  cfg.Dedup.UpdateThreshold,
			RelatedThreshold: cfg.Dedup.RelatedThreshold,
		})
		results := d.ClassifyAll(trends)

		if enqueue {
			prompts, err := newPrompts(cfg)
			if err != nil {
				return err
			}
			store, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			for _, c := range results {
				item, err := queueItemFor(c, prompts, p)
				if err != nil {
					return err
				}
				if err := store.QueueAdd(item); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Queued %d item(s)\n", len(results))
		}

		if format == "json" {
			return writeJSON(cmd.OutOrStdout(), results)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TASK\tSCORE\tTITLE\tMATCH\tREASON")
		for _, c := range results {
			match := c.MatchedRepo
			if match == "" {
				match = "-"
			}
			fmt.Fprintf(w, "%s\t%.0f\t%s\t%s\t%s\n", c.Task, c.Similarity, truncate(c.Title, 40), match, c.Reason)
		}
		return w.Flush()
	},
}

func readTrendFile(cmd *cobra.Command, path string) ([]dedup.Trend, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read ideas: %w", err)
	}
	return parseTrends(data)
}

// parseTrends accepts a JSON array of trends or one "title | description" per
// line. Blank lines and lines starting with # are skipped.
func parseTrends(data []byte) ([]dedup.Trend, error) {
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("[")) {
		var trends []dedup.Trend
		if err := json.Unmarshal(trimmed, &trends); err != nil {
			return nil, fmt.Errorf("parse ideas JSON: %w", err)
		}
		out := trends[:0]
		for _, t := range trends {
			if strings.TrimSpace(t.Title) != "" {
				out = append(out, t)
			}
		}
		return out, nil
	}

	var trends []dedup.Trend
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		title, desc, _ := strings.Cut(line, "|")
		trends = append(trends, dedup.Trend{
			Title:       strings.TrimSpace(title),
			Description: strings.TrimSpace(desc),
			Source:      "file",
		})
	}
	return trends, sc.Err()
}

// queueItemFor renders the session prompt for a classified idea.
func queueItemFor(c dedup.Classified, prompts *prompt.Set, p quota.Priority) (db.QueueItem, error) {
	item := db.QueueItem{
		ID:       uuid.NewString(),
		Source:   c.Source,
		Priority: int(p),
	}
	var err error
	switch c.Task {
	case dedup.TaskUpdate:
		item.Repo = c.MatchedRepo
		item.Title = "Update: " + c.MatchedRepo
		item.Prompt, err = prompts.Render(prompt.UpdateRepo, prompt.Vars{
			"repo":        c.MatchedRepo,
			"title":       c.Title,
			"description": c.Description,
		})
	default:
		item.Repo = dedup.Slug(c.Title)
		if item.Repo == "" {
			return db.QueueItem{}, fmt.Errorf("idea %q has no usable repository name", c.Title)
		}
		item.Title = "Create: " + item.Repo
		item.Prompt, err = prompts.Render(prompt.CreateRepo, prompt.Vars{
			"title":       c.Title,
			"description": c.Description,
			"source":      c.Source,
			"related":     c.Related,
		})
	}
	if err != nil {
		return db.QueueItem{}, err
	}
	return item, nil
}

func init() {
	dedupCmd.Flags().String("file", "", "Read ideas from a file (JSON array or one per line, - for stdin)")
	dedupCmd.Flags().String("owner", "", "GitHub owner whose repositories to compare against (default from config)")
	dedupCmd.Flags().Bool("enqueue", false, "Add every classified idea to the work queue")
	dedupCmd.Flags().String("priority", "normal", "Priority for enqueued items")
	dedupCmd.Flags().String("format", "table", "Output format: table or json")
}
