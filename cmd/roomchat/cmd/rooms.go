package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/omochice/room-chat-client/internal/directory"
)

var (
	createPassword string
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Manage rooms in the directory",
}

var roomsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all rooms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newTerminal(cmd.OutOrStdout())
		c, err := newClient(p)
		if err != nil {
			return err
		}
		defer c.Close()

		_, err = c.RefreshRooms(cmd.Context())
		return err
	},
}

var roomsCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a room",
	Long: `Create a room and print its id.

Examples:
  roomchat rooms create lobby
  roomchat rooms create vault --password s3cret`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newTerminal(cmd.ErrOrStderr())
		c, err := newClient(p)
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := c.CreateRoom(cmd.Context(), args[0], createPassword)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var roomsPasswordCmd = &cobra.Command{
	Use:   "password ROOM_ID NEW_PASSWORD",
	Short: "Change the password of a room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := directory.New(cfg.APIBaseURL(),
			directory.WithTimeout(cfg.RequestTimeout),
			directory.WithLogger(logger),
		)
		if err := dir.UpdatePassword(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "password updated")
		return nil
	},
}

func init() {
	roomsCreateCmd.Flags().StringVar(&createPassword, "password", "", "password required to join")

	roomsCmd.AddCommand(roomsListCmd)
	roomsCmd.AddCommand(roomsCreateCmd)
	roomsCmd.AddCommand(roomsPasswordCmd)
	rootCmd.AddCommand(roomsCmd)
}
