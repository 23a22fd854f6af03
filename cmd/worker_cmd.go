package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/jobagent/internal/bus"
	"github.com/nextlevelbuilder/jobagent/internal/config"
	"github.com/nextlevelbuilder/jobagent/internal/interrupt"
	"github.com/nextlevelbuilder/jobagent/internal/store/redisstore"
	"github.com/nextlevelbuilder/jobagent/internal/tools"
	"github.com/nextlevelbuilder/jobagent/internal/worker"
)

func workerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process queued jobs until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(concurrency)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "concurrent runs (overrides worker.concurrency)")
	return cmd
}

func runWorker(concurrency int) error {
	cfg := mustLoadConfig()
	if concurrency > 0 {
		cfg.Worker.Concurrency = concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry := initTelemetry(ctx, cfg)
	defer shutdownTelemetry()

	rdb := mustConnectRedis(ctx, cfg)
	defer rdb.Close()
	jobs := newJobStore(cfg, rdb)

	sessions, err := openSessionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer sessions.Close()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	ts, err := buildTools(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer ts.Close()

	progress := bus.New(cfg.Worker.ProgressBuffer)
	defer progress.Close()
	publisher := redisstore.NewProgressPublisher(rdb)
	publisher.Attach(progress)
	defer publisher.Detach(progress)

	lc := loopConfig(cfg, provider, ts.Registry)
	lc.Sessions = sessions
	lc.Jobs = jobs
	lc.Queue = jobs
	lc.Interrupts = interrupt.NewListener(rdb)
	lc.Sink = progress

	w := worker.New(worker.Config{
		Concurrency:   cfg.Worker.Concurrency,
		PollTimeout:   time.Duration(cfg.Worker.PollTimeoutSec) * time.Second,
		ShutdownGrace: time.Duration(cfg.Worker.ShutdownGraceSec) * time.Second,
	}, worker.Deps{
		Jobs:        jobs,
		Sessions:    sessions,
		Loop:        lc,
		RateLimiter: ts.Limiter,
	})

	if watcher := watchConfig(w); watcher != nil {
		defer watcher.Stop()
	}
	if ts.Limiter != nil {
		go cleanupLimiter(ctx, ts.Limiter)
	}

	slog.Info("jobagent worker",
		"version", Version,
		"provider", provider.Name(),
		"tools", ts.Registry.List(),
		"sessions", cfg.Sessions.Backend,
	)
	return w.Run(ctx)
}

// watchConfig hot-reloads agent settings into w. Returns nil when the config
// file does not exist or cannot be watched.
func watchConfig(w *worker.Worker) *config.Watcher {
	path := resolveConfigPath()
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	watcher, err := config.NewWatcher(path)
	if err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
		return nil
	}
	watcher.OnChange(func(cfg *config.Config) {
		w.UpdateSettings(cfg.LoopConfig())
	})
	if err := watcher.Start(); err != nil {
		slog.Warn("config hot reload unavailable", "error", err)
		watcher.Stop()
		return nil
	}
	return watcher
}

func cleanupLimiter(ctx context.Context, rl *tools.ToolRateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Cleanup()
		}
	}
}
