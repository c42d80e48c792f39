package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/EricMurray-e-m-dev/SecureProctor/internal/clock"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/config"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/orchestrator"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/report"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/scoring"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/source"
	"github.com/EricMurray-e-m-dev/SecureProctor/internal/store"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "proctor",
		Short:         "Session integrity engine for remote proctoring",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newReplayCmd())
	root.AddCommand(newReportCmd())
	root.AddCommand(newExportCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its HTTP, gRPC and event bus surfaces",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := newLogger(os.Stderr, cfg.SlogLevel())
			slog.SetDefault(logger)

			orch := orchestrator.NewOrchestrator(cfg, logger)
			if err := orch.Start(); err != nil {
				return fmt.Errorf("failed to start: %w", err)
			}
			defer orch.Stop()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := orch.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newReplayCmd() *cobra.Command {
	var (
		format     string
		systemName string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "replay <fixture.yaml>",
		Short: "Replay a recorded session offline and print its report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := newLogger(os.Stderr, level)

			fixture, err := source.LoadFixture(args[0])
			if err != nil {
				return err
			}

			clk := clock.NewManual(time.Now().UTC().Truncate(time.Second))
			result, err := runReplay(cmd.Context(), fixture, clk, logger)
			if err != nil {
				return err
			}

			gen := report.NewGenerator(clk, systemName)
			return gen.NewRenderer(f).Render(cmd.OutOrStdout(), result.candidate, result.session)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatText), "output format: text or json")
	cmd.Flags().StringVar(&systemName, "system-name", report.DefaultSystemName, "report footer")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log engine activity to stderr")

	return cmd
}

func newReportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Print the report of a finished session from the configured store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}

			cfg, st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			s, err := st.GetSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}
			s.IntegrityScore = scoring.NewSeverityPolicy().Score(s.Violations)

			candidate, err := st.GetCandidate(cmd.Context(), s.CandidateID)
			if err != nil {
				return fmt.Errorf("candidate %s: %w", s.CandidateID, err)
			}

			gen := report.NewGenerator(clock.Real{}, cfg.SystemName)
			return gen.NewRenderer(f).Render(cmd.OutOrStdout(), candidate, s)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatText), "output format: text or json")
	return cmd
}

func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every candidate and session to a zstd-compressed JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, st, err := openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer st.Close()

			export, err := store.Export(cmd.Context(), st, time.Now())
			if err != nil {
				return err
			}

			file, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create file: %w", err)
			}
			defer file.Close()

			if err := writeExport(file, export); err != nil {
				return err
			}

			fmt.Fprintf(os.Stderr, "Exported %d sessions and %d candidates to %s\n", len(export.Sessions), len(export.Candidates), out)
			return file.Close()
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "proctor-export.json.zst", "output file path")
	return cmd
}

func openStore(ctx context.Context) (*config.Config, store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(os.Stderr, cfg.SlogLevel())
	st, err := store.New(ctx, cfg.StoreOptions(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	return cfg, st, nil
}

func parseFormat(value string) (report.Format, error) {
	switch f := report.Format(value); f {
	case report.FormatText, report.FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("invalid --format %q: want text or json", value)
	}
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}
