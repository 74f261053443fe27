package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/mattn/go-isatty"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/overseer-cli/overseer/internal/history"
	"github.com/overseer-cli/overseer/internal/hub"
	"github.com/overseer-cli/overseer/internal/proc"
	"github.com/overseer-cli/overseer/internal/webserver"
)

const mdnsServiceType = "_overseer._tcp"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the overseer daemon",
	Long:  `Start the HTTP/WebSocket server that supervises agent sessions and streams transcripts to viewers.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().Bool("expose", false, "Bind to 0.0.0.0 for LAN access (enables TLS and an auth token)")
	serveCmd.Flags().String("tls", "", "TLS mode: 'self-signed' or 'custom' (requires --cert and --key)")
	serveCmd.Flags().String("cert", "", "Path to TLS certificate file (for --tls=custom)")
	serveCmd.Flags().String("key", "", "Path to TLS key file (for --tls=custom)")
	serveCmd.Flags().String("auth-token", "", "Require Bearer token for API access")
	serveCmd.Flags().Float64("rate-limit", 0, "Max requests per second (0 = unlimited)")
	serveCmd.Flags().String("workdir", "", "Working directory for agent sessions (default: current directory)")
	serveCmd.Flags().String("agent-command", "", "Agent CLI binary (default: claude)")
	serveCmd.Flags().StringSlice("agent-arg", nil, "Extra argument passed to the agent CLI (repeatable)")
	serveCmd.Flags().Bool("mdns", false, "Advertise the server on the local network via mDNS/Bonjour")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	port, _ := cmd.Flags().GetInt("port")
	host, _ := cmd.Flags().GetString("host")
	expose, _ := cmd.Flags().GetBool("expose")
	tlsMode, _ := cmd.Flags().GetString("tls")
	certFile, _ := cmd.Flags().GetString("cert")
	keyFile, _ := cmd.Flags().GetString("key")
	authToken, _ := cmd.Flags().GetString("auth-token")
	rateLimit, _ := cmd.Flags().GetFloat64("rate-limit")
	workDir, _ := cmd.Flags().GetString("workdir")
	agentCommand, _ := cmd.Flags().GetString("agent-command")
	agentArgs, _ := cmd.Flags().GetStringSlice("agent-arg")
	enableMDNS, _ := cmd.Flags().GetBool("mdns")

	if expose {
		host = "0.0.0.0"
		if !cmd.Flags().Changed("tls") {
			tlsMode = "self-signed"
		}
		if !cmd.Flags().Changed("auth-token") {
			authToken = generateToken()
			fmt.Fprintf(os.Stderr, "Generated auth token: %s\n", authToken)
		}
		fmt.Fprintln(os.Stderr, "Warning: Exposing server on all interfaces.")
	}
	if tlsMode != "" && tlsMode != "self-signed" && tlsMode != "custom" {
		return fmt.Errorf("invalid --tls value %q, expected 'self-signed' or 'custom'", tlsMode)
	}
	if tlsMode == "custom" && (certFile == "" || keyFile == "") {
		return fmt.Errorf("--tls=custom requires both --cert and --key")
	}

	if workDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}
		workDir = cwd
	}

	registry := webserver.NewConnRegistry()
	loader := history.NewReader(filepath.Join(workDir, ".overseer", "sessions"))
	h := hub.New(loader, registry)
	procs := proc.New(h, proc.Options{Command: agentCommand, ExtraArgs: agentArgs})

	srv := webserver.New(h, procs, registry, webserver.Options{
		Host:      host,
		Port:      port,
		TLSMode:   tlsMode,
		CertFile:  certFile,
		KeyFile:   keyFile,
		AuthToken: authToken,
		RateLimit: rateLimit,
		WorkDir:   workDir,
	})
	if err := srv.Start(); err != nil {
		if strings.Contains(err.Error(), "address already in use") {
			fmt.Fprintf(os.Stderr, "Port %d is already in use.\n", port)
			fmt.Fprintf(os.Stderr, "Try: overseer serve --port %d\n", port+1)
		}
		return fmt.Errorf("starting server: %w", err)
	}

	url := fmt.Sprintf("%s://%s", srv.Scheme(), srv.Addr())
	// Clickable URL via OSC 8 for terminals that support it.
	fmt.Printf("\033]8;;%s\033\\%s\033]8;;\033\\\n", url, url)
	if expose && isatty.IsTerminal(os.Stdout.Fd()) {
		if err := printQRCode(url); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to render QR code: %v\n", err)
		}
	}
	if authToken != "" {
		fmt.Println("Auth token required for API access.")
	}

	if expose || enableMDNS {
		server, err := startMDNSService(srv.Addr(), url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to start mDNS advertisement: %v\n", err)
		} else {
			defer server.Shutdown()
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	procs.StopAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startMDNSService(addr, url string) (*mdns.Server, error) {
	_, rawPort, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(rawPort)
	if err != nil || port <= 0 {
		return nil, fmt.Errorf("invalid port for mDNS advertisement: %q", rawPort)
	}

	txtRecords := []string{"url=" + url}
	service, err := mdns.NewMDNSService("overseer", mdnsServiceType, "local", "", port, nil, txtRecords)
	if err != nil {
		return nil, err
	}
	return mdns.NewServer(&mdns.Config{Zone: service})
}

func printQRCode(url string) error {
	code, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return err
	}
	fmt.Println(code.ToString(false))
	return nil
}

func generateToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
