package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sidkik/repocheck/cmd/check"
	"github.com/sidkik/repocheck/cmd/util"
	"github.com/sidkik/repocheck/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info and
// above.
const verboseLogKey = "REPOCHECK_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := check.New()
	rootCmd.SilenceUsage = true

	// The call to rootCmd.Execute prints the error, so we silence errors
	// here to avoid double printing.
	rootCmd.SilenceErrors = true

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"log debug messages (same as "+verboseLogKey+"=true)")
	rootCmd.PersistentPreRun = func(_ *cobra.Command, _ []string) {
		if verbose {
			log.SetLevel(log.DebugLevel)
		}
	}

	rootCmd.AddCommand(version.New())

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
