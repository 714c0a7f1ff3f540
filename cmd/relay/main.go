package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"frame-relay/controller"
	"frame-relay/services/device"
	"frame-relay/services/ingest"
	"frame-relay/services/telemetry"
	"frame-relay/services/upload"
	"frame-relay/utils"
)

func main() {
	// ── CLI flags ────────────────────────────────────────────────────
	configPath := flag.String("config", "config/relay.yaml", "path to relay.yaml")
	logFile := flag.String("log", "", "optional log file path (stdout is always included)")
	debug := flag.Bool("debug", false, "log every frame at debug level")
	flag.Parse()

	// ── Logger ───────────────────────────────────────────────────────
	level := utils.INFO
	if *debug {
		level = utils.DEBUG
	}
	logger := utils.InitLogger(level, *logFile)
	defer logger.Close()

	utils.L().Info("═══════════════════════════════════════════════════")
	utils.L().Info("  frame-relay  ·  camera → queue → HTTP uploader")
	utils.L().Info("  GOMAXPROCS=%d  ·  PID=%d", runtime.GOMAXPROCS(0), os.Getpid())
	utils.L().Info("═══════════════════════════════════════════════════")

	// ── Load config ──────────────────────────────────────────────────
	cfg, err := utils.LoadRelayConfig(*configPath)
	if err != nil {
		utils.L().Fatal("load relay config: %v", err)
	}

	// ── Context with OS signal cancellation ──────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if d := cfg.Run.DurationSeconds; d > 0 {
		var timerCancel context.CancelFunc
		ctx, timerCancel = context.WithTimeout(ctx, time.Duration(d)*time.Second)
		defer timerCancel()
		utils.L().Info("relay will auto-stop after %ds", d)
	}

	// ── Device bring-up ──────────────────────────────────────────────
	src, err := ingest.NewSource(cfg.Camera)
	if err != nil {
		utils.L().Fatal("camera: %v", err)
	}
	network, err := device.NewHostNetwork(cfg.Server.BaseURL, 5*time.Second)
	if err != nil {
		utils.L().Fatal("network: %v", err)
	}
	if err := device.BringUp(ctx, *cfg, device.Devices{
		Camera:  src,
		Flash:   device.NewHostFlash(),
		Network: network,
	}); err != nil {
		utils.L().Fatal("device bring-up: %v", err)
	}

	var pub telemetry.Publisher
	if cfg.Telemetry.Enabled {
		mq, err := telemetry.DialMQTT(ctx, cfg.Telemetry.Broker, "frame-relay-"+cfg.Device.ID)
		if err != nil {
			utils.L().Warn("telemetry disabled: %v", err)
		} else {
			pub = mq
			defer mq.Close()
		}
	}

	// ── Pipeline ─────────────────────────────────────────────────────
	//
	//  FrameSource ──► CaptureLoop ──► FrameQueue (bounded) ──► Uploader ──► POST /post
	//
	transport := upload.NewHTTPTransport(utils.MillisDuration(cfg.Upload.RequestTimeoutMs, 10*time.Second))
	relay, err := controller.NewRelayController(*cfg, src, transport, pub)
	if err != nil {
		utils.L().Fatal("init relay controller: %v", err)
	}
	relay.Start(ctx)

	utils.L().Info("relay running, press Ctrl+C to stop")

	statsTicker := time.NewTicker(utils.MillisDuration(cfg.Run.StatsIntervalMs, 5*time.Second))
	defer statsTicker.Stop()

	// ── Main event loop ──────────────────────────────────────────────
	for {
		select {
		case sig := <-sigCh:
			utils.L().Info("received signal: %v, shutting down", sig)
			cancel()
			goto shutdown

		case <-ctx.Done():
			goto shutdown

		case <-statsTicker.C:
			utils.L().Info("── stats ─────────────────────────")
			relay.LogStats()
			utils.L().Info("──────────────────────────────────")
		}
	}

shutdown:
	cancel()
	relay.Wait()
	relay.LogStats()

	st := relay.Status()
	fmt.Printf("\n✓ frame-relay finished: %d captured, %d uploaded, %d still queued\n",
		st.Capture.Captured, st.Upload.Uploaded, st.Queue.Length)
}
