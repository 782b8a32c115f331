package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chirag127/chirag127.github.io-sub000/internal/db"
	"github.com/chirag127/chirag127.github.io-sub000/internal/prompt"
	"github.com/chirag127/chirag127.github.io-sub000/internal/quota"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the persistent work queue",
}

var queueAddCmd = &cobra.Command{
	Use:   "add <repo>",
	Short: "Queue a session for a repository",
	Long: `Queue a coding-agent session for a repository. The prompt comes from
--prompt, --prompt-file, or the built-in update template when neither is given.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("prompt")
		file, _ := cmd.Flags().GetString("prompt-file")
		title, _ := cmd.Flags().GetString("title")
		source, _ := cmd.Flags().GetString("source")
		branch, _ := cmd.Flags().GetString("branch")
		prio, _ := cmd.Flags().GetString("priority")

		p, err := quota.ParsePriority(prio)
		if err != nil {
			return err
		}
		if text != "" && file != "" {
			return fmt.Errorf("use either --prompt or --prompt-file, not both")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		repo := args[0]
		switch {
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read prompt file: %w", err)
			}
			text = string(data)
		case text == "":
			prompts, err := newPrompts(cfg)
			if err != nil {
				return err
			}
			text, err = prompts.Render(prompt.UpdateRepo, prompt.Vars{"repo": repo, "title": title})
			if err != nil {
				return err
			}
		}

		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		item := db.QueueItem{
			ID:             uuid.NewString(),
			Repo:           repo,
			Source:         source,
			Title:          title,
			Prompt:         text,
			Priority:       int(p),
			StartingBranch: branch,
		}
		if err := d.QueueAdd(item); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Queued %s for %s (priority %s)\n", item.ID, repo, p)
		return nil
	},
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all items in the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		status, _ := cmd.Flags().GetString("status")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		all, err := d.QueueList()
		if err != nil {
			return err
		}
		items := all[:0]
		for _, it := range all {
			if status == "" || it.Status == status {
				items = append(items, it)
			}
		}

		if format == "json" {
			if items == nil {
				items = []db.QueueItem{}
			}
			return writeJSON(cmd.OutOrStdout(), items)
		}

		if len(items) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tREPO\tPRIORITY\tSTATUS\tTITLE\tSESSION\tENQUEUED")
		for _, it := range items {
			title := truncate(it.Title, 40)
			if title == "" {
				title = "(none)"
			}
			session := it.SessionID
			if session == "" {
				session = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(it.ID), it.Repo, quota.Priority(it.Priority), it.Status, title, session, it.EnqueuedAt)
		}
		return w.Flush()
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove an item from the queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		id, err := resolveQueueID(d, args[0])
		if err != nil {
			return err
		}
		if err := d.QueueRemove(id); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from the queue\n", id)
		return nil
	},
}

var queueClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all items from the queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			return fmt.Errorf("use --confirm to clear the entire queue")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		d, err := openDB(cfg)
		if err != nil {
			return err
		}
		defer d.Close()

		count, err := d.QueueClear()
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d item(s) from the queue\n", count)
		return nil
	},
}

// resolveQueueID expands an id prefix, as printed by queue list, to the full
// id. Ambiguous prefixes are rejected.
func resolveQueueID(d *db.DB, prefix string) (string, error) {
	items, err := d.QueueList()
	if err != nil {
		return "", err
	}
	var match string
	for _, it := range items {
		if it.ID == prefix {
			return it.ID, nil
		}
		if len(prefix) >= 4 && len(it.ID) > len(prefix) && it.ID[:len(prefix)] == prefix {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = it.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("queue item %q not found", prefix)
	}
	return match, nil
}

func init() {
	queueAddCmd.Flags().String("prompt", "", "Prompt text for the session")
	queueAddCmd.Flags().String("prompt-file", "", "Read the prompt from a file")
	queueAddCmd.Flags().String("title", "", "Session title")
	queueAddCmd.Flags().String("source", "manual", "Where this work came from")
	queueAddCmd.Flags().String("branch", "", "Starting branch (default from config)")
	queueAddCmd.Flags().String("priority", "normal", "Priority: low, normal, high or critical")
	queueListCmd.Flags().String("format", "table", "Output format: table or json")
	queueListCmd.Flags().String("status", "", "Only show items with this status (pending, active, completed, failed, dropped)")
	queueClearCmd.Flags().Bool("confirm", false, "Confirm clearing the entire queue")

	queueCmd.AddCommand(queueAddCmd)
	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueRemoveCmd)
	queueCmd.AddCommand(queueClearCmd)
}
