package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/platform"
	"github.com/roach88/quorum/internal/platform/fake"
	"github.com/roach88/quorum/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string

	// Messenger overrides the chat platform client. Tests inject the
	// in-memory fake; a production transport implements
	// platform.Messenger and is wired here.
	Messenger platform.Messenger
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the meeting engine",
		Long: `Start the meeting engine: open the database, reconcile persisted
poll deadlines, and run the event loop until interrupted.

Configuration is read from the environment (QUORUM_DB, QUORUM_POLL_LIMIT,
QUORUM_SWEEP_INTERVAL, ...); the --db flag overrides QUORUM_DB.

Example:
  quorum serve --db ./quorum.db
  QUORUM_SWEEP_INTERVAL=10s quorum serve --db /var/lib/quorum.db --verbose`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides QUORUM_DB)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}

	logLevel := slog.LevelInfo
	if opts.Verbose || cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	msgr := opts.Messenger
	if msgr == nil {
		// No transport wired: the engine still runs, serving persisted
		// deadlines and whatever a transport later enqueues.
		logger.Warn("no chat transport configured, using in-memory messenger")
		msgr = fake.NewMessenger()
	}

	s := buildStack(st, cfg, msgr, logger, nil)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Run's first sweep re-arms deadlines that outlived the previous
	// process.
	sweepDone := make(chan error, 1)
	go func() {
		sweepDone <- s.scheduler.Run(ctx, cfg.SweepInterval)
	}()
	defer s.scheduler.Stop()

	logger.Info("engine running", "sweep_interval", cfg.SweepInterval)
	runErr := s.dispatcher.Run(ctx)
	if runErr != nil && ctx.Err() == nil {
		return WrapExitError(ExitFailure, "event loop failed", runErr)
	}

	<-sweepDone
	logger.Info("engine stopped")
	return nil
}
