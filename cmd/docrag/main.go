package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"docrag/internal/app"
	"docrag/internal/logging"
	"docrag/internal/tui"
	"docrag/internal/watch"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, watchDir, logFile string
	var useGeneration bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/docrag/config.yaml if not provided)")
	flag.BoolVar(&useGeneration, "generate", false, "Start with LLM answer generation enabled")
	flag.StringVar(&watchDir, "watch", "", "Directory to watch for new documents")
	flag.StringVar(&logFile, "log-file", "", "Write logs to this file (default: discard)")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 && watchDir == "" {
		fmt.Println("Usage: docrag [--config=config.yaml] [--generate] [--watch=dir] file1.txt [file2.pdf ...]")
		os.Exit(1)
	}

	cfg, err := app.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var logOut io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("failed to open log file: %v", err)
		}
		defer f.Close()
		logOut = f
	}
	logger, err := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("failed to set up logging: %v", err)
	}

	svc, err := app.Build(cfg, logger)
	if err != nil {
		log.Fatalf("failed to build service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loaded := 0
	for _, res := range svc.AddPaths(ctx, inputs) {
		if res.OK() {
			loaded++
			fmt.Fprintf(os.Stderr, "loaded %s (%d fragments)\n", res.Source, res.Fragments)
		} else {
			fmt.Fprintf(os.Stderr, "skipped %s: %s (%v)\n", res.Source, res.Reason(), res.Err)
		}
	}
	if loaded == 0 && watchDir == "" {
		log.Fatalf("no documents could be loaded")
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

	m := tui.New(ctx, svc, svc.Backend(), app.NewBackends(cfg.Generation, svc.Backend()), useGeneration)
	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
