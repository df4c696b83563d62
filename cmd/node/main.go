package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tradepit/params"
	"tradepit/pkg/api"
	"tradepit/pkg/bots"
	"tradepit/pkg/engine"
	"tradepit/pkg/journal"
	"tradepit/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	var logger *zap.Logger
	var err error
	if cfg.LogPath != "" {
		logger, err = util.NewLoggerWithFile(cfg.LogPath)
	} else {
		logger, err = util.NewLogger()
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Round.Validate(); err != nil {
		logger.Fatal("invalid round config", zap.Error(err))
	}

	eng := engine.New(cfg.Round, logger, util.RealClock{})
	sched := engine.NewScheduler(eng, cfg.Round.TickInterval(), logger)

	// ---- Bots ----
	for i, bc := range cfg.Round.Bots {
		strat, err := bots.FromConfig(bc, cfg.Round.Seed+int64(i)+1)
		if err != nil {
			logger.Fatal("bot config", zap.String("bot", bc.ID), zap.Error(err))
		}
		if err := sched.AddBot(bc.ID, bc.Name, bc.Symbol, strat); err != nil {
			logger.Fatal("bot register", zap.String("bot", bc.ID), zap.Error(err))
		}
	}

	// ---- Journal (optional) ----
	var jnl *journal.Journal
	if cfg.JournalPath != "" {
		jnl, err = journal.Open(cfg.JournalPath)
		if err != nil {
			logger.Fatal("journal open", zap.Error(err))
		}
		defer jnl.Close()
		logger.Info("journal enabled", zap.String("path", cfg.JournalPath))
	}

	// ---- API ----
	srv := api.NewServer(sched, cfg.Round, logger)
	sched.OnDelta = func(d *engine.Delta) {
		srv.BroadcastDelta(d)
		if err := jnl.RecordDelta(d); err != nil {
			logger.Warn("journal write failed", zap.Error(err))
		}
	}

	go sched.Run()

	jnl.BeginRound()
	if err := sched.StartRound(cfg.Round); err != nil {
		logger.Fatal("round start", zap.Error(err))
	}
	logger.Info("round started",
		zap.Int("tick_ms", cfg.Round.TickMs),
		zap.Int64("seed", cfg.Round.Seed),
		zap.Bool("long_only", cfg.Round.LongOnly),
		zap.Int("assets", len(cfg.Round.Assets)),
		zap.Int("bots", len(cfg.Round.Bots)))

	go func() {
		if err := srv.ListenAndServe(cfg.Listen); err != nil {
			logger.Fatal("api server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	sched.StopRound()
	sched.Shutdown()
}
