package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/notelog/internal/notes"
	"github.com/roach88/notelog/internal/recordlog"
	"github.com/roach88/notelog/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr  string
	Store string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the notes service",
		Long: `Serve the notes store API over HTTP from a record log on disk.

The log defaults to <data_dir>/server/notes. With validate_logs set, the log
is checked on open and after every mutation.

Examples:
  notelog serve --addr :8080
  notelog serve --store /var/lib/notelog/notes`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&opts.Store, "store", "", "record log path as <dir>/<prefix>")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	cfg, err := opts.Config()
	if err != nil {
		return err
	}
	path := opts.Store
	if path == "" {
		path = filepath.Join(cfg.DataDir, "server", "notes")
	}
	dir, prefix := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	l, err := recordlog.Open(dir, prefix, recordlog.WithFsync(cfg.Fsync))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open store", err)
	}
	defer l.Close()

	st, err := notes.Open(l, notes.WithValidation(cfg.ValidateLogs))
	if err != nil {
		return WrapExitError(ExitFailure, "store failed validation", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:              opts.Addr,
		Handler:           server.New(st, slog.Default()).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("serving notes", "addr", opts.Addr, "store", path, "records", st.Len())
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server failed", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitCommandError, "shutdown failed", err)
	}
	return nil
}
