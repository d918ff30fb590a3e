package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/cardroomhq/cardroom/internal/auth"
	"github.com/cardroomhq/cardroom/internal/server"
	"github.com/cardroomhq/cardroom/internal/store"
	"github.com/cardroomhq/cardroom/internal/timer"
)

// ServeCmd runs the table server.
type ServeCmd struct {
	Config  string `kong:"help='Path to HCL config file',type='path'"`
	Addr    string `kong:"help='Listen address override (host:port)'"`
	Debug   bool   `kong:"help='Enable debug logging'"`
	LogJSON bool   `kong:"name='log-json',help='Emit logs as JSON'"`
	Seed    *int64 `kong:"help='Deterministic RNG seed (optional)'"`
}

func (c *ServeCmd) Run() error {
	cfg := server.DefaultConfig()
	if c.Config != "" {
		loaded, err := server.LoadConfig(c.Config)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := log.InfoLevel
	if c.Debug || cfg.Server.LogLevel == "debug" {
		level = log.DebugLevel
	}
	opts := log.Options{
		ReportTimestamp: true,
		Level:           level,
	}
	if c.LogJSON {
		opts.Formatter = log.JSONFormatter
	}
	logger := log.NewWithOptions(os.Stderr, opts)

	seed := time.Now().UnixNano()
	if c.Seed != nil {
		seed = *c.Seed
	}
	logger.Info("seeding rng", "seed", seed)
	rng := rand.New(rand.NewSource(seed))

	reg := prometheus.NewRegistry()
	metrics := server.NewMetrics(reg)

	mem := store.NewMemoryStore()
	var archive *store.Archive
	if cfg.Server.ArchiveDSN != "" {
		opened, err := store.OpenArchive(cfg.Server.ArchiveDSN)
		if err != nil {
			return fmt.Errorf("open archive: %w", err)
		}
		archive = opened
		logger.Info("event archive enabled")
	}

	svc := server.NewGameService(mem, mem, archive, metrics, logger, rng)

	budget := time.Duration(cfg.Server.TurnBudgetSecs) * time.Second
	orch := server.NewOrchestrator(svc, metrics, logger, budget)
	orch.SetScheduler(timer.NewClockScheduler(quartz.NewReal(), orch.HandleTimeout, logger))
	svc.SetTurnWatcher(orch)

	addr := c.Addr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	}
	srv := server.NewServer(addr, svc, logger)
	svc.SetNotifier(srv)
	if cfg.Server.AuthURL != "" {
		srv.SetValidator(auth.NewHTTPValidator(cfg.Server.AuthURL, cfg.Server.AuthAdminSecret))
		logger.Info("token authentication enabled", "url", cfg.Server.AuthURL)
	}

	ctx := context.Background()
	for _, t := range cfg.Tables {
		doc, err := svc.CreateTable(ctx, t.Name, t.SmallBlind, t.BigBlind, t.MaxPlayers)
		if err != nil {
			return fmt.Errorf("open table %s: %w", t.Name, err)
		}
		logger.Info("table open", "name", t.Name, "id", doc.ID)
	}

	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.MetricsPort),
		Handler: server.MetricsHandler(reg),
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(srv.Start)
	g.Go(func() error {
		logger.Info("starting metrics listener", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
		return srv.Stop()
	})

	return g.Wait()
}
