package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/httpapi"
	"docrag/internal/logging"
	"docrag/internal/watch"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, addr, watchDir string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/docrag/config.yaml if not provided)")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	flag.StringVar(&watchDir, "watch", "", "Directory to watch for new documents")
	flag.Parse()

	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	if err := run(cfg, flag.Args(), watchDir, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, inputs []string, watchDir string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := app.Build(cfg, logger)
	if err != nil {
		return err
	}
	for _, res := range svc.AddPaths(ctx, inputs) {
		if !res.OK() {
			logger.Warn("document skipped", "source", res.Source, "reason", res.Reason())
		}
	}

	if watchDir != "" {
		w := watch.New(svc, logger, 0)
		w.MarkSeen(inputs...)
		go func() {
			if err := w.Run(ctx, watchDir); err != nil {
				logger.Error("watcher stopped", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.New(svc, logger).WithBackends(app.NewBackends(cfg.Generation, svc.Backend())).Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Generation.Timeout() + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}
