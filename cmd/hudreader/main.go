// hudreader reads HUD stats from screen captures and serves the results
// over WebSocket/REST, with gRPC health reporting.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/GriffinCanCode/hudreader/internal/config"
	"github.com/GriffinCanCode/hudreader/internal/health"
	"github.com/GriffinCanCode/hudreader/internal/icon"
	"github.com/GriffinCanCode/hudreader/internal/ocr"
	"github.com/GriffinCanCode/hudreader/internal/ocr/tesseract"
	"github.com/GriffinCanCode/hudreader/internal/orchestrator"
	"github.com/GriffinCanCode/hudreader/internal/screen"
	"github.com/GriffinCanCode/hudreader/internal/server"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}
	rs, err := cfg.Regions()
	if err != nil {
		fatal("failed to load regions", err)
	}

	// Engine and icon template failures are fatal at startup
	engine, err := ocr.New(cfg.OCR(), tesseract.Factory(tesseract.Config{
		Language:       cfg.OCRLanguage,
		TessdataPrefix: cfg.TessdataPrefix,
	}))
	if err != nil {
		fatal("failed to initialize recognition engine", err)
	}
	defer func() { _ = engine.Close() }()

	tmpl, err := icon.LoadTemplate(cfg.IconTemplate)
	if err != nil {
		fatal("failed to load icon template", err)
	}
	iconCfg := icon.DefaultConfig()
	iconCfg.Threshold = cfg.IconThreshold

	capturer, err := screen.Open(cfg.CaptureSource)
	if err != nil {
		fatal("failed to open capture source", err)
	}

	mgr := orchestrator.New(cfg, orchestrator.Deps{
		Engine:   engine,
		Icon:     icon.New(tmpl, iconCfg),
		Capturer: capturer,
		Regions:  rs,
	})
	hs := health.New(mgr.Breaker())
	srv := server.New(mgr, cfg.CORSOrigins)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mgr.Start(ctx); err != nil {
		fatal("failed to start pipeline", err)
	}
	go srv.Broadcast(ctx)

	// Start HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server starting", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	// Start gRPC health server
	grpcServer := health.NewGRPCServer(hs)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		fatal("failed to listen for grpc", err)
	}
	go func() {
		slog.Info("grpc health server starting", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("grpc server error", "error", err)
		}
	}()

	slog.Info("hudreader running", "engine", engine.String(), "capture", cfg.CaptureSource, "regions", len(rs))

	// Wait for shutdown signal or pipeline failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case sig := <-sigCh:
		slog.Info("shutting down...", "signal", sig.String())
	case <-mgr.Done():
		hs.MarkDown()
		if err := mgr.Err(); err != nil {
			slog.Error("pipeline stopped", "error", err)
			exitCode = 1
		}
	}

	mgr.Stop()
	cancel()
	hs.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	grpcServer.GracefulStop()

	slog.Info("shutdown complete")
	if exitCode != 0 {
		_ = engine.Close()
		os.Exit(exitCode)
	}
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.LogFormat, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler).With("run_id", uuid.NewString()))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
