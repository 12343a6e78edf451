package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/menta2k/zone-annotator/internal/config"
	"github.com/menta2k/zone-annotator/internal/events"
	"github.com/menta2k/zone-annotator/internal/logger"
	"github.com/menta2k/zone-annotator/internal/metrics"
	"github.com/menta2k/zone-annotator/internal/server"
	"github.com/menta2k/zone-annotator/internal/store"
	"github.com/menta2k/zone-annotator/pkg/capture"
	"github.com/menta2k/zone-annotator/pkg/media"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "render" {
		if err := runRender(os.Args[2:]); err != nil {
			log.Fatal(err)
		}
		return
	}
	if err := runServer(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("zone-annotator", flag.ExitOnError)
	var configPath, envFile, addr, logLevel, logFormat, storePath string
	var mock, writeConfig bool

	fs.StringVar(&configPath, "config", "", "config file (default "+config.GetConfigPath()+" when present)")
	fs.StringVar(&envFile, "env", ".env", ".env file to load before reading ZA_* variables")
	fs.StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	fs.StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	fs.StringVar(&logFormat, "log-format", "", "log format: json|text")
	fs.StringVar(&storePath, "store", "", "JSON file for sites and configurations")
	fs.BoolVar(&mock, "mock", true, "publish simulated alerts")
	fs.BoolVar(&writeConfig, "write-config", false, "write the effective config to -config (or the default path) and exit")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: %s [flags]\n       %s render -in image|video [-zone JSON] [-out overlay.png]\n",
			filepath.Base(os.Args[0]), filepath.Base(os.Args[0]))
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(configPath, envFile)
	if err != nil {
		return err
	}

	// Flags win over the file and the environment, but only when given.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = addr
		case "log-level":
			cfg.Server.LogLevel = logLevel
		case "log-format":
			cfg.Server.LogFormat = logFormat
		case "store":
			cfg.Store.Path = storePath
		case "mock":
			cfg.Events.Mock = mock
		}
	})

	if writeConfig {
		path := configPath
		if path == "" {
			path = config.GetConfigPath()
		}
		if err := cfg.SaveToFile(path); err != nil {
			return err
		}
		fmt.Println("wrote", path)
		return nil
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return serve(cfg, logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat))
}

// loadConfig reads the .env file, then the config file, then applies ZA_*
// overrides.
func loadConfig(configPath, envFile string) (*config.Config, error) {
	if err := config.LoadEnv(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := config.Default()
	path := configPath
	if path == "" {
		if _, err := os.Stat(config.GetConfigPath()); err == nil {
			path = config.GetConfigPath()
		}
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func serve(cfg *config.Config, log *slog.Logger) error {
	st, err := store.New(store.Options{
		Path:      cfg.Store.Path,
		MaxAlerts: cfg.Store.MaxAlerts,
		Seed:      true,
		Logger:    log,
	})
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}

	bus := events.NewBus(cfg.Events.BufferSize, log)
	met := metrics.New()

	decoder := capture.NewGoCVDecoder()
	if cfg.Capture.VideoTempDir != "" {
		decoder.TempDir = cfg.Capture.VideoTempDir
	}

	h := server.NewHandler(server.Options{
		Loader: media.Config{
			TargetWidth:  cfg.Editor.TargetWidth,
			FetchTimeout: cfg.Media.FetchTimeout.Std(),
			MaxBytes:     cfg.MaxUploadBytes(),
			UserAgent:    cfg.Media.UserAgent,
		},
		Capture: capture.Config{
			TargetWidth:     cfg.Editor.TargetWidth,
			SnapshotFormat:  cfg.Capture.SnapshotFormat,
			SnapshotQuality: cfg.Capture.SnapshotQuality,
		},
		UploadLimits: media.UploadLimits{MaxBytes: cfg.MaxUploadBytes()},
		Decoder:      decoder,
		HitRadius:    cfg.Editor.HitRadius,
		SessionTTL:   cfg.Editor.SessionTTL.Std(),
	}, st, bus, log, met)

	// Cancelling ctx ends the background loops and any open event streams.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.RecordAlerts(ctx)
	if cfg.Events.Mock {
		src := events.NewMockSource(events.MockConfig{
			MinInterval: cfg.Events.MinInterval.Std(),
			MaxInterval: cfg.Events.MaxInterval.Std(),
		}, bus, log)
		go src.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	log.Info("server starting",
		"addr", cfg.Server.Addr,
		"target_width", cfg.Editor.TargetWidth,
		"max_upload_mb", cfg.Media.MaxUploadMB,
		"mock_events", cfg.Events.Mock,
		"store", cfg.Store.Path,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("shutdown signal received, draining connections")
	case err := <-errCh:
		log.Error("server error", "error", err)
		return err
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	h.Close()
	bus.Close()

	log.Info("server stopped", "alerts_dropped", bus.Dropped())
	return nil
}
