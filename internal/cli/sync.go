package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notelog/internal/crypt"
	"github.com/roach88/notelog/internal/notes"
	"github.com/roach88/notelog/internal/remote"
	"github.com/roach88/notelog/internal/statedb"
	"github.com/roach88/notelog/internal/syncstore"
)

// openSyncStore opens the sync store in the configured data directory.
// Without a remote_url every write is queued.
func openSyncStore(ctx context.Context, opts *RootOptions) (*syncstore.Store, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, err
	}

	var r syncstore.Remote = syncstore.Unreachable{}
	if cfg.RemoteURL != "" {
		c, err := remote.New(cfg.RemoteURL, remote.WithTimeout(cfg.Timeout()))
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid remote", err)
		}
		r = c
	}

	s, err := syncstore.Open(ctx, cfg.DataDir, r, syncstore.WithFsync(cfg.Fsync))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open data directory", err)
	}
	return s, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// NotesResult is the output of notes.
type NotesResult struct {
	Notes  []notes.Note `json:"notes"`
	Queued int          `json:"queued"`
}

// NewNotesCommand creates the notes command.
func NewNotesCommand(rootOpts *RootOptions) *cobra.Command {
	var refresh, prefetch bool

	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List notes",
		Long: `List the notes known locally. The list is fetched from the remote when
there is none yet or --refresh is given; if the remote cannot be reached the
local list is shown. --prefetch also downloads the latest version of every
note that is not cached yet.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			s, err := openSyncStore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			list, err := s.GetAllNotes(ctx, refresh)
			if errors.Is(err, syncstore.ErrUnavailable) {
				if err := f.Error(CodeOffline, "no note list yet and the remote is unreachable", err.Error()); err != nil {
					return err
				}
				return WrapExitError(ExitFailure, "notes unavailable", err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list notes", err)
			}

			if prefetch {
				if err := s.CacheLatestNoteVersions(ctx); err != nil {
					f.VerboseLog("prefetch failed: %v", err)
				}
			}

			result := NotesResult{Notes: list, Queued: s.QueueLen()}
			return f.Success(result, func(w io.Writer) {
				if len(list) == 0 {
					fmt.Fprintln(w, "No notes.")
				} else {
					writeNotesTable(w, list, rootOpts.Verbose)
				}
				if result.Queued > 0 {
					fmt.Fprintf(w, "\n%d change(s) waiting to be uploaded\n", result.Queued)
				}
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "ask the remote for changes")
	cmd.Flags().BoolVar(&prefetch, "prefetch", false, "cache the latest version of every note")
	return cmd
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "create <name>",
		Short:         "Create a note",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			s, err := openSyncStore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.CreateNote(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create note", err)
			}
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return f.Success(n, func(w io.Writer) { fmt.Fprintln(w, n.ID) })
		},
	}
}

// WriteResult is the output of write.
type WriteResult struct {
	VersionID string `json:"version_id"`
	Bytes     int    `json:"bytes"`
	Encrypted bool   `json:"encrypted"`
	Queued    int    `json:"queued"`
}

// NewWriteCommand creates the write command.
func NewWriteCommand(rootOpts *RootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "write <noteID> <file|->",
		Short: "Store a new content version of a note",
		Long: `Store the contents of a file, or of stdin for "-", as a new version of
a note and print the version id. With --password the content is encrypted
before it leaves this machine.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if args[1] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[1])
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read content", err)
			}

			encrypted := password != ""
			if encrypted {
				if data, err = (crypt.XChaCha{}).Encrypt([]byte(password), data); err != nil {
					return WrapExitError(ExitCommandError, "failed to encrypt", err)
				}
			}

			ctx := cmdContext(cmd)
			s, err := openSyncStore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			verID := notes.NewVersionID(args[0])
			if err := s.Put(ctx, verID, data, encrypted); err != nil {
				return WrapExitError(ExitCommandError, "failed to store content", err)
			}
			result := WriteResult{VersionID: verID, Bytes: len(data), Encrypted: encrypted, Queued: s.QueueLen()}
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return f.Success(result, func(w io.Writer) { fmt.Fprintln(w, verID) })
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "encrypt the content with this password")
	return cmd
}

// CatResult is the output of cat in JSON mode.
type CatResult struct {
	VersionID string `json:"version_id"`
	Encrypted bool   `json:"encrypted"`
	Content   []byte `json:"content"`
}

// NewCatCommand creates the cat command.
func NewCatCommand(rootOpts *RootOptions) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:           "cat <versionID>",
		Short:         "Print a content version",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			s, err := openSyncStore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			e, err := s.Get(ctx, args[0])
			if errors.Is(err, syncstore.ErrUnavailable) {
				if err := f.Error(CodeOffline, "content is not cached and the remote is unreachable", err.Error()); err != nil {
					return err
				}
				return WrapExitError(ExitFailure, "content unavailable", err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read content", err)
			}

			data := e.Data
			if e.Encrypted && password != "" {
				data, err = (crypt.XChaCha{}).Decrypt([]byte(password), e.Data)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to decrypt", err)
				}
			} else if e.Encrypted && !f.JSON() {
				return NewExitError(ExitCommandError, "content is encrypted; pass --password")
			}

			if f.JSON() {
				return f.Success(CatResult{VersionID: args[0], Encrypted: e.Encrypted && password == "", Content: data}, nil)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&password, "password", "", "decrypt the content with this password")
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <noteID>",
		Short:         "Delete a note",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			s, err := openSyncStore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteNote(ctx, args[0]); err != nil {
				return WrapExitError(ExitCommandError, "failed to delete note", err)
			}
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return f.Success(map[string]string{"deleted": args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "Deleted %s\n", args[0])
			})
		},
	}
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Upload queued offline changes",
		Long: `Upload every queued change in one bundle. The queue is emptied only
after the remote accepted the upload.

Exit codes:
  0 - Queue uploaded (or empty)
  1 - Remote unreachable
  2 - Command error`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			s, err := openSyncStore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			n, err := s.FlushOfflineChanges(ctx)
			if errors.Is(err, syncstore.ErrOffline) {
				if err := f.Error(CodeOffline, "remote unreachable", err.Error()); err != nil {
					return err
				}
				return WrapExitError(ExitFailure, "flush failed", err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "flush failed", err)
			}
			return f.Success(map[string]int{"flushed": n}, func(w io.Writer) {
				fmt.Fprintf(w, "Uploaded %d change(s)\n", n)
			})
		},
	}
}

// StatusResult is the output of status.
type StatusResult struct {
	Queued  int              `json:"queued"`
	Uploads []statedb.Upload `json:"uploads"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show the offline queue and recent uploads",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			s, err := openSyncStore(ctx, rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			uploads, err := s.Uploads(ctx, limit)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list uploads", err)
			}
			if uploads == nil {
				uploads = []statedb.Upload{}
			}
			result := StatusResult{Queued: s.QueueLen(), Uploads: uploads}

			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return f.Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "Queued changes: %d\n", result.Queued)
				if len(uploads) == 0 {
					fmt.Fprintln(w, "No uploads yet.")
					return
				}
				fmt.Fprintln(w)
				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "UPLOADED\tRECORDS\tBYTES\tID")
				for _, u := range uploads {
					fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", u.UploadedAt.UTC().Format(time.RFC3339), u.Records, u.Bytes, u.ID)
				}
				tw.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of uploads to show (0 for all)")
	return cmd
}
