package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/omochice/room-chat-client/internal/client"
	"github.com/omochice/room-chat-client/internal/config"
	"github.com/omochice/room-chat-client/internal/logging"
)

var (
	envFile   string
	serverURL string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "roomchat",
	Short: "Terminal client for room based chat",
	Long: `roomchat talks to a room chat server: it lists and creates rooms, changes
room passwords and joins a room for a live chat session.

Settings come from the environment (ROOMCHAT_*, LOG_FORMAT, LOG_LEVEL),
optionally seeded from a .env file.

Use "roomchat [command] --help" for more information about a command.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if envFile != "" {
			cfg, err = config.Load(envFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		if serverURL != "" {
			cfg.ServerURL = serverURL
			if err := cfg.Validate(); err != nil {
				return err
			}
		}
		logger = logging.New(cfg.LogFormat, cfg.LogLevel)
		return nil
	},
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "read settings from this file instead of .env")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server base URL (overrides ROOMCHAT_SERVER_URL)")
}

// newClient builds the application client for one command run.
func newClient(p client.Presenter) (*client.Client, error) {
	c, err := client.NewFromConfig(cfg, p, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to start client: %w", err)
	}
	return c, nil
}
