package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"memearena/internal/app"
	"memearena/internal/config"
	"memearena/internal/logger"
)

func main() {
	defaultPath := os.Getenv("MEMEARENA_CONFIG")
	if defaultPath == "" {
		defaultPath = "configs/config.yaml"
	}
	cfgPath := flag.String("config", defaultPath, "path to the config file")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger.SetFormat(cfg.App.LogFormat)
	logger.SetLevel(cfg.App.LogLevel)
	logFile, err := openLog(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("open log file: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
		mw := io.MultiWriter(os.Stdout, logFile)
		log.SetOutput(mw)
		logger.SetOutput(mw)
	}
	transcriptFile, err := openLog(cfg.App.TranscriptLog)
	if err != nil {
		log.Fatalf("open transcript log: %v", err)
	}
	if transcriptFile != nil {
		defer transcriptFile.Close()
		logger.SetTranscriptWriter(transcriptFile)
	}
	logger.Infof("config loaded (env=%s, agents=%d)", cfg.App.Env, len(cfg.Agents.ActiveModels()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	arena, err := app.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("build app: %v", err)
	}
	defer arena.Close()

	if *once {
		if _, err := arena.RunOnce(ctx); err != nil {
			logger.Errorf("cycle failed: %v", err)
		}
		return
	}
	if err := arena.Run(ctx); err != nil {
		logger.Errorf("run: %v", err)
	}
}

func openLog(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if dir := filepath.Dir(trimmed); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
