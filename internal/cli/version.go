package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if IsJSONOutput() {
				printJSON(struct {
					Version string `json:"version"`
					Commit  string `json:"commit"`
					Date    string `json:"date"`
				}{Version: Version, Commit: Commit, Date: Date})
				return nil
			}

			fmt.Printf("gangway %s\n", Version)
			fmt.Printf("  commit: %s\n", Commit)
			fmt.Printf("  built:  %s\n", Date)
			return nil
		},
	}
}
