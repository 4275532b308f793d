// Package version prints build metadata.
package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/tphakala/dspcore/internal/buildinfo"
)

// Command creates a new cobra.Command to print the version.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of dspcore",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bi := buildinfo.Current()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "dspcore %s (built %s, %s %s/%s)\n",
				bi.GetVersion(), bi.GetBuildDate(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
