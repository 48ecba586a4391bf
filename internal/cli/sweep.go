package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/entity"
	"github.com/roach88/quorum/internal/platform/fake"
	"github.com/roach88/quorum/internal/store"
)

// SweepOptions holds flags for the sweep command.
type SweepOptions struct {
	*RootOptions
	Database string
}

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SweepOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close overdue polls once and exit",
		Long: `Reconcile persisted poll deadlines once: every deadline that has
already elapsed closes its poll, writing the tally snapshot.

Intended for operational recovery after downtime; a running serve process
does the same reconciliation periodically.

Example:
  quorum sweep --db ./quorum.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runSweep(opts *SweepOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	logLevel := slog.LevelError
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	cfg, err := config.FromEnv()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	fired := 0
	s := buildStack(st, cfg, fake.NewMessenger(), logger, func(entity.Deadline) { fired++ })
	defer s.scheduler.Stop()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.scheduler.Sweep(ctx); err != nil {
		return WrapExitError(ExitFailure, "sweep failed", err)
	}

	// Drain the close events the sweep enqueued; the queue is closed so
	// the loop exits once empty.
	s.dispatcher.Close()
	if err := s.dispatcher.Run(ctx); err != nil {
		return WrapExitError(ExitFailure, "failed to process overdue closes", err)
	}

	return formatter.Success(sweepResult{Fired: fired})
}

type sweepResult struct {
	Fired int `json:"fired"`
}

func (r sweepResult) String() string {
	if r.Fired == 0 {
		return "no overdue polls"
	}
	return fmt.Sprintf("closed %d overdue poll(s)", r.Fired)
}
