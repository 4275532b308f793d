// Package validate implements the command that checks a topology against
// the loaded settings without running it.
package validate

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/dspcore/internal/buildinfo"
	"github.com/tphakala/dspcore/internal/conf"
	"github.com/tphakala/dspcore/internal/dsp"
	"github.com/tphakala/dspcore/internal/errors"
	"github.com/tphakala/dspcore/internal/topology"
)

// Command creates the validate command.
func Command(settings *conf.Settings) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "validate <topology>",
		Short: "Check a topology file against the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := topology.Load(args[0])
			if err != nil {
				return err
			}
			res := dsp.Check(settings, doc)

			out := cmd.OutOrStdout()
			if jsonOutput {
				err = writeJSON(out, res)
			} else {
				writeText(out, args[0], res)
			}
			if err != nil {
				return err
			}
			if !res.Valid {
				return errors.Newf("topology %s is invalid: %d error(s)", args[0], len(res.Errors)).
					Component("validate").
					Category(errors.CategoryValidation).
					Build()
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}

func writeJSON(w io.Writer, res *buildinfo.ValidationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func writeText(w io.Writer, path string, res *buildinfo.ValidationResult) {
	for _, msg := range res.Errors {
		_, _ = fmt.Fprintf(w, "error: %s\n", msg)
	}
	for _, msg := range res.Warnings {
		_, _ = fmt.Fprintf(w, "warning: %s\n", msg)
	}
	if res.Valid {
		_, _ = fmt.Fprintf(w, "%s: ok\n", path)
	}
}
