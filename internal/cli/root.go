package cli

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chirag127/chirag127.github.io-sub000/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configFile string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "optimizer",
	Short: "Drive coding-agent sessions across your GitHub repositories",
	Long: `optimizer deduplicates project ideas against your existing repositories,
queues create/update work, and drives Jules coding-agent sessions through to
pull requests within a daily session budget. Text generation goes through a
fallback chain of free-tier model providers.

Configuration is read from --config, ./optimizer.yaml or ~/.optimizer/config.yaml.
State lives under the data dir (SQLite event log and queue, JSON quota file).`,
	SilenceUsage: true,
	// Commands that need the config load it themselves and report its errors,
	// so a broken file only drops logging back to the defaults here.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var level, format string
		cfg, cfgErr := loadConfig()
		if cfgErr == nil {
			level, format = cfg.Logging.Level, cfg.Logging.Format
		}
		if logLevel != "" {
			level = logLevel
		}
		if logFormat != "" {
			format = logFormat
		}
		if err := logging.Setup(level, format, cmd.ErrOrStderr()); err != nil {
			return err
		}
		if cfgErr != nil {
			log.Debug().Err(cfgErr).Msg("config not loaded, using default logging")
		}
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to optimizer config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(quotaCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(dedupCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
}
