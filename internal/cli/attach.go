package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/overseer-cli/overseer/internal/client"
	"github.com/overseer-cli/overseer/internal/viewtui"
)

var attachCmd = &cobra.Command{
	Use:   "attach <session-id>",
	Short: "Watch a session in the terminal",
	Long:  `Attach a live terminal viewer to a session on a running overseer daemon. The viewer reconnects automatically if the connection drops.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runAttach,
}

func init() {
	attachCmd.Flags().String("server", "127.0.0.1:8080", "Daemon address (host:port)")
	attachCmd.Flags().Bool("secure", false, "Connect over wss:// instead of ws://")
	attachCmd.Flags().String("auth-token", "", "Bearer token for a protected daemon")
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		return fmt.Errorf("attach requires an interactive terminal")
	}

	sessionID := strings.TrimSpace(args[0])
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	server, _ := cmd.Flags().GetString("server")
	secure, _ := cmd.Flags().GetBool("secure")
	token, _ := cmd.Flags().GetString("auth-token")

	scheme := "ws"
	if secure {
		scheme = "wss"
	}

	return viewtui.Run(cmd.Context(), sessionID, client.Options{
		URL:   fmt.Sprintf("%s://%s/ws", scheme, server),
		Token: token,
	})
}
