// Package main implements celixd, a thin command-line launcher that loads
// configuration, constructs the framework, and runs it to completion
// (spec.md §6). Bundle loading itself is left to an Installer implementation
// supplied at build time; zip extraction is out of scope (spec.md §1).
package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/apache/celix-go/pkg/celixerr"
)

// Exit codes. 0 is a normal shutdown; the others let shell scripts and
// process supervisors distinguish a framework-start failure from misuse of
// the CLI itself.
const (
	exitSuccess      = 0
	exitStartFailure = 1
	exitUsageError   = 2
)

// rootCmd is the base command for celixd.
var rootCmd = &cobra.Command{
	Use:   "celixd",
	Short: "Run an Apache Celix-style OSGi framework instance",
	Long: `celixd starts a framework instance, installs and starts every
bundle configured for auto-start, and runs until it receives SIGINT or
SIGTERM; it keeps running when bundles stop.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var buildVersion = "dev"

// SetVersion injects the build-time version string.
func SetVersion(v string) { buildVersion = v; rootCmd.Version = v }

// Execute runs the CLI and maps the resulting error to a process exit code.
func Execute() {
	rootCmd.SetVersionTemplate("celixd version {{.Version}}\n")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor classifies err into an exit code: a framework error with a
// recognized Kind starting the process maps to exitStartFailure; a plain
// Cobra usage error (unknown flag, bad args) maps to exitUsageError.
func exitCodeFor(err error) int {
	var celixErr *celixerr.Error
	if errors.As(err, &celixErr) {
		return exitStartFailure
	}
	return exitUsageError
}

func init() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())
}
