package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chirag127/chirag127.github.io-sub000/internal/dispatch"
	"github.com/chirag127/chirag127.github.io-sub000/internal/provider"
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send a prompt through the model fallback chain",
	Long: `Send one prompt through the fallback chain and print the first successful
completion. The prompt is read from stdin when no argument is given.

--json requires a JSON object or array reply and prints the parsed value.
--tier skips the largest models and starts the walk further down the chain.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonMode, _ := cmd.Flags().GetBool("json")
		tier, _ := cmd.Flags().GetInt("tier")
		minSize, _ := cmd.Flags().GetFloat64("min-size")
		system, _ := cmd.Flags().GetString("system")
		maxTokens, _ := cmd.Flags().GetInt("max-tokens")
		format, _ := cmd.Flags().GetString("format")

		if jsonMode && tier > 0 {
			return fmt.Errorf("--json and --tier cannot be combined")
		}

		var text string
		if len(args) == 1 {
			text = args[0]
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read prompt: %w", err)
			}
			text = string(data)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return fmt.Errorf("empty prompt")
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
		client, err := newDispatch(cfg, d)
		if err != nil {
			return err
		}

		req := dispatch.GenerateRequest{
			Prompt:       text,
			SystemPrompt: system,
			MaxTokens:    maxTokens,
			MinModelSize: minSize,
		}
		var res provider.Result
		switch {
		case jsonMode:
			res = client.GenerateJSON(cmd.Context(), req)
		case tier > 0:
			res = client.GenerateWithTier(cmd.Context(), req, tier)
		default:
			res = client.Generate(cmd.Context(), req)
		}

		if format == "json" {
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else if res.Success {
			if jsonMode {
				if err := writeJSON(cmd.OutOrStdout(), res.Parsed); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), res.Content)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "(%s via %s, %d tokens)\n", res.Model, res.Provider, res.Tokens)
		}
		if !res.Success {
			return fmt.Errorf("generation failed: %s", res.Error)
		}
		return nil
	},
}

func init() {
	askCmd.Flags().Bool("json", false, "Require a JSON reply")
	askCmd.Flags().Int("tier", 0, "Start the chain walk at this index")
	askCmd.Flags().Float64("min-size", 0, "Skip models smaller than this many billion parameters")
	askCmd.Flags().String("system", "", "System prompt")
	askCmd.Flags().Int("max-tokens", 0, "Cap on output tokens (0 uses each model's limit)")
	askCmd.Flags().String("format", "text", "Output format: text or json (full result)")
}
