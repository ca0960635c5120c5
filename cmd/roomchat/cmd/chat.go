package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omochice/room-chat-client/internal/client"
	"github.com/omochice/room-chat-client/internal/session"
)

var (
	chatUsername string
	chatPassword string
)

var chatCmd = &cobra.Command{
	Use:   "chat ROOM_ID",
	Short: "Join a room and chat",
	Long: `Join a room and chat interactively. Every line typed is sent as a message.

Commands while chatting:
  /password NEW   change the room password
  /rooms          list rooms
  /leave, /quit   leave the room and exit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		term := newTerminal(cmd.OutOrStdout())
		term.setUsername(strings.TrimSpace(chatUsername))
		c, err := newClient(term)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.JoinRoom(ctx, args[0], chatUsername, chatPassword); err != nil {
			return err
		}
		if !runChat(ctx, c, cmd.InOrStdin(), term.Failed()) {
			fmt.Fprintln(cmd.ErrOrStderr(), "session ended, leaving the room")
		}

		if err := c.LeaveRoom(); err != nil {
			return err
		}
		waitIdle(c, cfg.CloseTimeout+time.Second)
		return nil
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatUsername, "username", "u", "", "name shown to other users")
	chatCmd.Flags().StringVarP(&chatPassword, "password", "p", "", "room password")
	_ = chatCmd.MarkFlagRequired("username")
	rootCmd.AddCommand(chatCmd)
}

// runChat forwards input lines until EOF, a quit command, ctx ending or
// the session failing. It reports false only for the failure.
func runChat(ctx context.Context, c *client.Client, in io.Reader, failed <-chan struct{}) bool {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-failed:
			return false
		case line, ok := <-lines:
			if !ok {
				return true
			}
			if !handleLine(ctx, c, line) {
				return true
			}
		}
	}
}

func handleLine(ctx context.Context, c *client.Client, line string) bool {
	text := strings.TrimSpace(line)
	switch {
	case text == "":
		return true
	case text == "/quit" || text == "/leave":
		return false
	case text == "/rooms":
		_, _ = c.RefreshRooms(ctx)
	case strings.HasPrefix(text, "/password"):
		_ = c.UpdatePassword(ctx, strings.TrimSpace(strings.TrimPrefix(text, "/password")))
	default:
		// failures are already shown by the presenter
		_ = c.SendMessage(text)
	}
	return true
}

func waitIdle(c *client.Client, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.Session().Phase() == session.PhaseIdle {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
