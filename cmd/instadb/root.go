package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"instadb/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "instadb <account>",
	Short: "Archive a public Instagram feed into a local post database",
	Long: `instadb pages through an account's public media feed, records every post in a
local database, keeps like counts current and optionally downloads the media
with metadata embedded into each file.

Running "instadb <account>" is the same as "instadb scrape <account>".`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	Args:          cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			ui.SetQuiet(true)
		}
		if verbose && logLevel == "" {
			logLevel = "debug"
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 && !isKnownCommand(cmd.Root(), args[0]) {
			return runScrape(cmd, args)
		}
		return cmd.Help()
	},
}

// Execute runs the root command and maps failures onto exit codes
func Execute() {
	err := rootCmd.Execute()
	code := exitCode(err)
	switch code {
	case 0:
		return
	case 130:
		ui.PrintError("Interrupted by user")
	default:
		ui.PrintError("Error", err)
	}
	os.Exit(code)
}

// exitCode is 130 for an interrupted run and 1 for any other failure
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.instadb.yaml or ~/.config/instadb/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "list every post and log at debug level")

	rootCmd.SetVersionTemplate(`instadb {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

func isKnownCommand(root *cobra.Command, arg string) bool {
	for _, cmd := range root.Commands() {
		if cmd.Name() == arg || cmd.HasAlias(arg) {
			return true
		}
	}
	return false
}
