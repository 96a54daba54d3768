package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/see1right/internal/adapters/http/client"
	"github.com/okian/see1right/internal/adapters/repository"
	"github.com/okian/see1right/internal/adapters/scheduler"
	"github.com/okian/see1right/internal/adapters/source/reddit"
	service "github.com/okian/see1right/internal/app"
	"github.com/okian/see1right/internal/config"
	"github.com/okian/see1right/internal/miner"
	"github.com/okian/see1right/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

// errPassFailed marks a single-shot run whose pass had failures.
var errPassFailed = errors.New("mining pass had failures")

// options are the parsed command-line flags.
type options struct {
	once     bool
	interval time.Duration
	remote   bool
	printEnv bool
	list     int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Stderr.WriteString("miner: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("miner", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.BoolVar(&o.once, "once", false, "Run a single pass and exit")
	fs.DurationVar(&o.interval, "interval", 0, "Time between passes; overrides mine_interval")
	fs.BoolVar(&o.remote, "remote", false, "Submit through the HTTP API at api_base instead of the local store")
	fs.BoolVar(&o.printEnv, "env", false, "Print a starter .env for the current configuration and exit")
	fs.IntVar(&o.list, "list", 0, "Print the N most recent events from the API and exit")
	fs.Usage = func() { showHelp(out, fs) }
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseFlags(args, out)
	if err != nil {
		return err
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if opts.printEnv {
		_, err := io.WriteString(out, config.EnvTemplate(cfg))
		return err
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel))
		_ = logger.SetLevelString("info")
	}

	if opts.list > 0 {
		return listRecent(ctx, cfg, opts.list, out)
	}

	collector, err := reddit.New(reddit.ConfigFrom(cfg), reddit.WithLogger(log.Named("reddit")))
	if err != nil {
		return err
	}

	submitter, closeFn, err := newSubmitter(ctx, cfg, opts.remote, log)
	if err != nil {
		return err
	}
	defer closeFn()

	interval := cfg.MineInterval
	if opts.interval > 0 {
		interval = opts.interval
	}
	if opts.once {
		interval = 0
	}

	m := miner.New(collector, submitter, miner.WithLogger(log.Named("miner")))
	sched := scheduler.New(m.Bind(cfg.Channels, cfg.PostLimit),
		scheduler.WithInterval(interval),
		scheduler.WithLogger(log.Named("scheduler")),
	)

	log.Info(ctx, "miner starting",
		logger.Any("channels", cfg.Channels),
		logger.Int("postLimit", cfg.PostLimit),
		logger.Duration("interval", interval),
		logger.Bool("remote", opts.remote),
	)

	finished := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sched.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	total, failed := sched.Passes()
	log.Info(ctx, "miner stopped", logger.Int("passes", int(total)), logger.Int("failedPasses", int(failed)))
	if interval <= 0 && failed > 0 {
		return errPassFailed
	}
	return nil
}

// newSubmitter returns the write path for mined events and a func that
// releases it.
func newSubmitter(ctx context.Context, cfg *config.Config, remote bool, log logger.Logger) (miner.Submitter, func(), error) {
	if remote {
		gw := client.New(cfg.APIBase, client.WithTimeout(cfg.SubmitTimeout))
		if err := gw.Health(ctx); err != nil {
			return nil, nil, err
		}
		return gw, func() {}, nil
	}

	store, err := repository.Open(ctx, cfg.StoreDriver, cfg.StoreDSN())
	if err != nil {
		return nil, nil, err
	}
	svc := service.New(store,
		service.WithLogger(log.Named("service")),
		service.WithDefaultSource(reddit.DefaultSource),
		service.WithMaxRecentLimit(cfg.MaxRecentLimit),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return svc, svc.Stop, nil
}

func listRecent(ctx context.Context, cfg *config.Config, limit int, out io.Writer) error {
	gw := client.New(cfg.APIBase, client.WithTimeout(cfg.SubmitTimeout))
	events, err := gw.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range events {
		if _, err := fmt.Fprintf(out, "%s  [%s]  %s\n", e.CreatedAt, e.Category, e.Headline); err != nil {
			return err
		}
	}
	return nil
}

func showHelp(out io.Writer, fs *flag.FlagSet) {
	_, _ = io.WriteString(out, `see1right miner
===============

Polls the configured Reddit channels for new posts and stores them as events.

Usage:
  go run ./cmd/miner [options]

Options:
`)
	fs.PrintDefaults()
	_, _ = io.WriteString(out, `
Examples:
  # Write a starter .env, then fill in the Reddit credentials
  go run ./cmd/miner -env > .env

  # One pass into the local store
  go run ./cmd/miner -once

  # Poll every five minutes through a running API server
  go run ./cmd/miner -remote -interval 5m

  # Show what the API has stored
  go run ./cmd/miner -list 20
`)
}
