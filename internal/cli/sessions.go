package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/overseer-cli/overseer/internal/hub"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions on a running daemon",
	Args:  cobra.NoArgs,
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().String("server", "127.0.0.1:8080", "Daemon address (host:port)")
	sessionsCmd.Flags().Bool("secure", false, "Connect over https:// instead of http://")
	sessionsCmd.Flags().String("auth-token", "", "Bearer token for a protected daemon")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	secure, _ := cmd.Flags().GetBool("secure")
	token, _ := cmd.Flags().GetString("auth-token")

	scheme := "http"
	if secure {
		scheme = "https"
	}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
		fmt.Sprintf("%s://%s/api/sessions", scheme, server), nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("contacting daemon at %s: %w", server, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	var infos []hub.SessionInfo
	if err := json.NewDecoder(resp.Body).Decode(&infos); err != nil {
		return fmt.Errorf("decoding session list: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No sessions.")
		return nil
	}
	fmt.Printf("%-20s %-10s %-10s %-8s %-6s %s\n", "SESSION", "PHASE", "ACTIVITY", "MESSAGES", "QUEUED", "PENDING")
	for _, info := range infos {
		pending := ""
		if info.HasPending {
			pending = "yes"
		}
		fmt.Printf("%-20s %-10s %-10s %-8d %-6d %s\n",
			info.SessionID, info.Runtime.Phase, info.Runtime.Activity,
			info.MessageCount, info.QueueLen, pending)
	}
	return nil
}
