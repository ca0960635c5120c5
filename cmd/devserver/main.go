package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/omochice/room-chat-client/internal/devserver"
	"github.com/omochice/room-chat-client/internal/logging"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Local room chat server for development",
	Long: `devserver serves the room directory API and the /ws chat endpoint from
memory. Rooms are lost when it stops.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))
		srv := devserver.New(devserver.WithLogger(logger))

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		errChan := make(chan error, 1)
		go func() {
			errChan <- srv.Start(addr)
		}()

		select {
		case err := <-errChan:
			if err != nil {
				return err
			}
		case sig := <-sigChan:
			slog.Info("shutting down", "signal", sig.String())
			srv.Stop()
		}

		slog.Info("dev server stopped")
		return nil
	},
}

func main() {
	rootCmd.Flags().StringVar(&addr, "addr", ":9099", "address to listen on for the directory API and /ws")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
