// Package cli wires the overseer commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/overseer-cli/overseer/internal/buildinfo"
	"github.com/overseer-cli/overseer/internal/debug"
)

const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
	colorRed   = "\033[31m"

	styleBoldCyan  = "\033[1;36m"
	styleBoldWhite = "\033[1;37m"
)

var rootCmd = &cobra.Command{
	Use:   "overseer",
	Short: "Supervise and stream coding agent sessions",
	Long: colorBold + `
   ___ _  _____ _ __ ___  ___  ___ _ __
  / _ \ \/ / _ \ '__/ __|/ _ \/ _ \ '__|
 | (_) >  <  __/ |  \__ \  __/  __/ |
  \___/_/\_\___|_|  |___/\___|\___|_|` + colorReset + `

  ` + styleBoldCyan + `Agent session overseer` + colorReset + ` v` + buildinfo.Current().Version + `

  overseer runs long-lived coding agent sessions on one machine and
  streams their transcripts to any number of live viewers: the browser,
  the terminal, or another device on the LAN.

` + colorBold + `Getting Started:` + colorReset + `
  overseer serve                  Start the daemon and web viewer
  overseer attach <session>       Watch a session in the terminal
  overseer sessions               List known sessions
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().Bool("debug", false, "Enable verbose debug logging to ~/.overseer/debug/")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		debugFlag, _ := cmd.Flags().GetBool("debug")
		if !debugFlag && !debug.ShouldEnableFromEnv() {
			return nil
		}
		logPath, err := debug.Init()
		if err != nil {
			return fmt.Errorf("initializing debug logger: %w", err)
		}
		fmt.Fprintf(os.Stderr, "%s[debug]%s logging to %s\n", colorDim, colorReset, logPath)
		bi := buildinfo.Current()
		debug.LogKV("cli", "overseer starting",
			"version", bi.Version,
			"commit", bi.CommitHash,
			"build_date", bi.BuildDate,
			"pid", os.Getpid(),
			"command", cmd.Name(),
			"args", args,
		)
		return nil
	}
}

// Execute runs the root command.
func Execute() {
	defer debug.Close()
	if err := rootCmd.Execute(); err != nil {
		debug.Logf("cli", "exit with error: %v", err)
		fmt.Fprintf(os.Stderr, "%sError: %s%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
	debug.Log("cli", "exit success")
}
