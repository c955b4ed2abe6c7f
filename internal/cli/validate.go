package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/notelog/internal/notes"
)

// ValidateResult is the output of validate.
type ValidateResult struct {
	Records int  `json:"records"`
	Notes   int  `json:"notes"`
	Valid   bool `json:"valid"`
}

// ViolationDetails describes the first invariant violation found.
type ViolationDetails struct {
	Position int    `json:"position"`
	Kind     string `json:"kind"`
	Meta     string `json:"meta,omitempty"`
	Reason   string `json:"reason"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <dir/prefix>",
		Short: "Check the note lifecycle invariants of a notes log",
		Long: `Replay a notes log and check that every record respects the note
lifecycle: a note is created once while live, and content, metadata and
deletes only refer to live notes.

The check is meant for complete histories such as a service log. An offline
queue only holds part of the history and usually fails it.

Exit codes:
  0 - Log is valid
  1 - Invariant violation
  2 - Command error (log not found, etc.)

Examples:
  notelog validate ./server/notes
  notelog validate ./server/notes --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLog(args[0])
			if err != nil {
				return err
			}
			defer l.Close()

			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			records := l.Records()
			f.VerboseLog("validating %d record(s)", len(records))

			err = notes.ValidateIndex(records)
			var inv *notes.InvariantError
			if errors.As(err, &inv) {
				details := ViolationDetails{
					Position: inv.Position,
					Kind:     inv.Record.Kind,
					Meta:     inv.Record.Meta,
					Reason:   inv.Reason,
				}
				if err := f.Error(CodeInvariant, inv.Error(), details); err != nil {
					return err
				}
				return WrapExitError(ExitFailure, "invariant violation", inv)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "validation failed", err)
			}

			result := ValidateResult{
				Records: len(records),
				Notes:   len(notes.Derive(records, nil)),
				Valid:   true,
			}
			return f.Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %d record(s) valid, %d live note(s)\n", result.Records, result.Notes)
			})
		},
	}
}
