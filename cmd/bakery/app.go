package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"pkt.systems/pslog"

	"github.com/llxisdsh/bakery"
	"github.com/llxisdsh/bakery/internal/workload"
)

func submain(ctx context.Context) int {
	baseLogger := pslog.LoggerFromEnv(
		pslog.WithEnvPrefix("BAKERY_LOG_"),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole, MinLevel: pslog.InfoLevel}),
		pslog.WithEnvWriter(os.Stderr),
	).With("app", "bakery")
	cmd := newRootCommand(baseLogger)
	ctx = withSignalCancel(ctx)
	if _, err := cmd.ExecuteContextC(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			baseLogger.Error("command failed", "error", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(logger pslog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "bakery",
		Short:         "Exercise Lamport's bakery lock with a shared-counter workload",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(logger))
	return root
}

type runConfig struct {
	processes  int
	iterations int
	window     time.Duration
	hold       time.Duration
	think      time.Duration
	backoff    bakery.Backoff
	logLevel   string
}

func newRunCommand(logger pslog.Logger) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run N processes that each increment a shared counter K times under the lock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadRunConfig(v)
			if err != nil {
				return err
			}
			if level, ok := pslog.ParseLevel(cfg.logLevel); ok {
				logger = logger.LogLevel(level)
			}
			return runWorkload(cmd, logger.With("cmd", "run"), cfg)
		},
	}

	flags := cmd.Flags()
	flags.Int("processes", 3, "number of competing processes")
	flags.Int("iterations", 2, "critical-section entries per process")
	flags.Duration("window", 100*time.Millisecond, "maximum pause between reading and writing the counter")
	flags.Duration("hold", 200*time.Millisecond, "maximum extra time spent inside the critical section")
	flags.Duration("think", 500*time.Millisecond, "maximum time spent outside the critical section")
	flags.String("backoff", bakery.BackoffAdaptive.String(), "polling policy while waiting: adaptive, yield or spin")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")

	v.SetEnvPrefix("BAKERY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	flags.VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil {
			panic(err)
		}
	})
	return cmd
}

func loadRunConfig(v *viper.Viper) (runConfig, error) {
	cfg := runConfig{
		processes:  v.GetInt("processes"),
		iterations: v.GetInt("iterations"),
		window:     v.GetDuration("window"),
		hold:       v.GetDuration("hold"),
		think:      v.GetDuration("think"),
		logLevel:   strings.TrimSpace(v.GetString("log-level")),
	}
	if cfg.processes <= 0 {
		return cfg, fmt.Errorf("--processes must be positive, got %d", cfg.processes)
	}
	if cfg.iterations <= 0 {
		return cfg, fmt.Errorf("--iterations must be positive, got %d", cfg.iterations)
	}
	b, err := bakery.ParseBackoff(v.GetString("backoff"))
	if err != nil {
		return cfg, err
	}
	cfg.backoff = b
	if cfg.logLevel == "" {
		cfg.logLevel = "info"
	}
	return cfg, nil
}

func runWorkload(cmd *cobra.Command, logger pslog.Logger, cfg runConfig) error {
	logger.Info("starting workload",
		"processes", cfg.processes,
		"iterations", cfg.iterations,
		"backoff", cfg.backoff.String(),
	)
	l := bakery.New(cfg.processes, bakery.WithBackoff(cfg.backoff))
	report, err := workload.Run(cmd.Context(), l, workload.Options{
		Processes:  cfg.processes,
		Iterations: cfg.iterations,
		Window:     cfg.window,
		Hold:       cfg.hold,
		Think:      cfg.think,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "final counter:    %s\n", humanize.Comma(int64(report.Final)))
	fmt.Fprintf(out, "expected counter: %s\n", humanize.Comma(int64(report.Expected)))
	fmt.Fprintf(out, "elapsed:          %s (longest wait %s)\n", report.Elapsed.Round(time.Millisecond), report.MaxWait.Round(time.Microsecond))
	if !report.OK() {
		return fmt.Errorf("mutual exclusion violated: final=%d expected=%d overlaps=%d",
			report.Final, report.Expected, report.Overlaps)
	}
	return nil
}

func withSignalCancel(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx
}
