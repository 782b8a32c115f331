package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/chirag127/chirag127.github.io-sub000/internal/config"
	"github.com/chirag127/chirag127.github.io-sub000/internal/prompt"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect the optimizer configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		errs := config.Validate(cfg)
		if _, err := newPrompts(cfg); err != nil {
			errs = append(errs, config.ValidationError{Field: "prompts", Message: err.Error()})
		}
		if len(errs) == 0 {
			cmd.Println("Configuration is valid.")
			return nil
		}

		cmd.Println("Validation errors:")
		for _, e := range errs {
			cmd.Printf("  - %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}

		cmd.Print(string(data))
		return nil
	},
}

var configPromptsCmd = &cobra.Command{
	Use:   "prompt [name]",
	Short: "List prompt templates or print one as it will be used",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			for _, n := range prompt.Names() {
				cmd.Println(n)
			}
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		set, err := newPrompts(cfg)
		if err != nil {
			return err
		}
		text, err := set.Template(args[0])
		if err != nil {
			return err
		}
		cmd.Println(text)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPromptsCmd)
}
