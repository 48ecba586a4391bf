package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/quorum/internal/config"
	"github.com/roach88/quorum/internal/export"
	"github.com/roach88/quorum/internal/platform/fake"
	"github.com/roach88/quorum/internal/store"
)

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Database string
	Room     string
	Output   string
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a room's latest meeting results as CSV",
		Long: `Collect the poll result snapshots of the room's most recent meeting
and write them as CSV to stdout or a file.

Example:
  quorum export --db ./quorum.db --room Y2lzY29zcGFyazEx
  quorum export --db ./quorum.db --room Y2lzY29zcGFyazEx -o results.csv`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Room, "room", "", "room id to export (required)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default stdout)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	if _, err := os.Stat(opts.Database); err != nil {
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	cfg, err := config.FromEnv()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
	s := buildStack(st, cfg, fake.NewMessenger(), logger, nil)
	defer s.scheduler.Stop()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	snapshots, err := s.polls.MeetingResults(ctx, opts.Room)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to collect meeting results", err)
	}
	if len(snapshots) == 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("no meeting results for room %s", opts.Room))
	}

	rows := [][]string{}
	for _, snap := range snapshots {
		for _, row := range snap.Rows {
			rows = append(rows, []string{snap.Subject, row.Participant, row.Choice})
		}
	}

	csv := export.NewCSV()
	content, err := csv.Export([]string{"poll", "participant", "choice"}, rows)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to render CSV", err)
	}

	if opts.Output == "" {
		_, err = cmd.OutOrStdout().Write(content)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to write output", err)
		}
		return nil
	}

	if err := os.WriteFile(opts.Output, content, 0o644); err != nil {
		return WrapExitError(ExitFailure, "failed to write output file", err)
	}
	if opts.Verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", len(rows), opts.Output)
	}
	return nil
}
