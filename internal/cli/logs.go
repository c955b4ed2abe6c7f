package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notelog/internal/bundle"
	"github.com/roach88/notelog/internal/recordlog"
)

// openLog opens the record log named by a "<dir>/<prefix>" path. Unlike
// recordlog.Open it refuses to create a log that does not exist.
func openLog(path string) (*recordlog.Log, error) {
	dir, prefix := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	indexPath, _ := recordlog.Paths(dir, prefix)
	if _, err := os.Stat(indexPath); errors.Is(err, fs.ErrNotExist) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no record log at %s (missing %s)", path, indexPath))
	}
	l, err := recordlog.Open(dir, prefix)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open record log", err)
	}
	return l, nil
}

// RecordView is one record as printed by inspect.
type RecordView struct {
	Position  int    `json:"position"`
	Offset    uint64 `json:"offset"`
	Size      uint64 `json:"size"`
	Timestamp int64  `json:"timestamp_ms"`
	Kind      string `json:"kind"`
	Meta      string `json:"meta,omitempty"`
}

// InspectResult is the output of inspect.
type InspectResult struct {
	Records   []RecordView `json:"records"`
	DataBytes uint64       `json:"data_bytes"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <dir/prefix>",
		Short: "List the records of a record log",
		Long: `List every record of the log stored as <prefix>_index.txt and
<prefix>_data.bin. Opening the log repairs a torn index tail.

Examples:
  notelog inspect ~/.notelog/offline
  notelog inspect ./server/notes --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLog(args[0])
			if err != nil {
				return err
			}
			defer l.Close()

			result := InspectResult{Records: make([]RecordView, 0, l.Len())}
			for i, rec := range l.Records() {
				result.Records = append(result.Records, RecordView{
					Position:  i,
					Offset:    rec.Offset,
					Size:      rec.Size,
					Timestamp: rec.TimestampMs,
					Kind:      rec.Kind,
					Meta:      rec.Meta,
				})
			}
			data, err := l.DataBytes()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read data stream", err)
			}
			result.DataBytes = uint64(len(data))

			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return f.Success(result, func(w io.Writer) {
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "#\tOFFSET\tSIZE\tTIME\tKIND\tMETA")
				for _, r := range result.Records {
					ts := time.UnixMilli(r.Timestamp).UTC().Format(time.RFC3339Nano)
					fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\n", r.Position, r.Offset, r.Size, ts, r.Kind, r.Meta)
				}
				tw.Flush()
				fmt.Fprintf(w, "%d record(s), %d data byte(s)\n", len(result.Records), result.DataBytes)
			})
		},
	}
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export <dir/prefix>",
		Short: "Write a record log as an interchange bundle",
		Long: `Write the index and data streams of a record log to a zip archive
holding index.txt and data.bin, the format offline changes are uploaded in.

Examples:
  notelog export ~/.notelog/offline -o queue.zip`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLog(args[0])
			if err != nil {
				return err
			}
			defer l.Close()

			b, err := bundle.FromLog(l)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to build bundle", err)
			}
			if err := os.WriteFile(opts.Output, b, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write bundle", err)
			}

			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			result := map[string]any{"output": opts.Output, "records": l.Len(), "bytes": len(b)}
			return f.Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "Wrote %d record(s) to %s (%d bytes)\n", l.Len(), opts.Output, len(b))
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "bundle path (required)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}
