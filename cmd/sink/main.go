package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"frame-relay/controller"
	"frame-relay/utils"
)

func main() {
	configPath := flag.String("config", "config/sink.yaml", "path to sink.yaml")
	logFile := flag.String("log", "", "optional log file path (stdout is always included)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := utils.INFO
	if *debug {
		level = utils.DEBUG
	}
	logger := utils.InitLogger(level, *logFile)
	defer logger.Close()

	utils.L().Info("═══════════════════════════════════════════════════")
	utils.L().Info("  frame-relay sink  ·  multipart frame receiver")
	utils.L().Info("  GOMAXPROCS=%d  ·  PID=%d", runtime.GOMAXPROCS(0), os.Getpid())
	utils.L().Info("═══════════════════════════════════════════════════")

	cfg, err := utils.LoadSinkConfig(*configPath)
	if err != nil {
		utils.L().Fatal("load sink config: %v", err)
	}

	// Resolve relative base_dir to absolute.
	if !filepath.IsAbs(cfg.Sink.BaseDir) {
		abs, _ := filepath.Abs(cfg.Sink.BaseDir)
		cfg.Sink.BaseDir = abs
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sinkCtrl, err := controller.NewSinkController(cfg)
	if err != nil {
		utils.L().Fatal("init sink controller: %v", err)
	}
	if err := sinkCtrl.Start(ctx); err != nil {
		utils.L().Fatal("start sink: %v", err)
	}

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.L().Info("shutting down")
			sinkCtrl.Stop()
			fmt.Println("\n✓ sink finished. Frames at:", sinkCtrl.SessionDir())
			return
		case <-statsTicker.C:
			sinkCtrl.LogStats()
		}
	}
}
