package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sidkik/repocheck/pkg/version"
)

// New creates a new `version` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of repocheck",
		Long:  "Print the version of repocheck, as a git tag or commit hash.",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("repocheck version: %s\n", version.Version)
		},
	}
}
