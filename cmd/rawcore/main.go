// Command rawcore is the process entry point: it loads configuration,
// starts the metrics/debug HTTP server, and runs the archive-inbox
// watcher that feeds completed captures into the offline processor.
// Wiring style (zap logger, promauto/promhttp metrics server,
// kardianos/service wrapper) generalizes cmd/driver/main.go.
//
// The capture session itself (internal/session) is driven by a
// platform-specific camera Driver that spec.md §1 places out of scope;
// RunCaptureSession below is the extension point an integration layer
// calls once it has a concrete Driver to hand the session facade.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	_ "net/http/pprof"

	"github.com/kardianos/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warpcomdev/rawcore/internal/archive"
	"github.com/warpcomdev/rawcore/internal/config"
	"github.com/warpcomdev/rawcore/internal/metadata"
	"github.com/warpcomdev/rawcore/internal/processor"
	"github.com/warpcomdev/rawcore/internal/rawlog"
	"github.com/warpcomdev/rawcore/internal/session"
	"github.com/warpcomdev/rawcore/internal/statemachine"
)

type program struct {
	cfg    *config.Config
	logger rawlog.Logger
	cancel context.CancelFunc
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.run(ctx)
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

func (p *program) run(ctx context.Context) {
	camera, err := loadCameraDescription(p.cfg.CameraDescriptionPath)
	if err != nil {
		p.logger.Fatal("failed to load camera description", rawlog.Error(err))
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/", http.DefaultServeMux)
	metricsSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", p.cfg.MetricsPort),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 7 * time.Second,
	}
	go func() {
		p.logger.Info("metrics server listening", rawlog.Int("port", p.cfg.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.logger.Error("metrics server failed", rawlog.Error(err))
		}
	}()
	defer metricsSrv.Close()

	os.MkdirAll(p.cfg.ArchiveInboxFolder, 0o755)
	os.MkdirAll(p.cfg.ArchiveOutFolder, 0o755)

	settings := processor.DefaultSettings()
	settings.JpegQuality = p.cfg.JpegQuality

	handle := func(ctx context.Context, path string) error {
		outPath := fmt.Sprintf("%s/%s.jpg", p.cfg.ArchiveOutFolder, baseNoExt(path))
		p.logger.Info("processing archive", rawlog.String("path", path))
		return processor.Process(path, outPath, camera, settings, processorProgress{p.logger, path})
	}

	inbox := archive.NewInbox(p.logger, p.cfg.ArchiveInboxFolder, 2*time.Second, handle)
	if err := inbox.Watch(ctx); err != nil && ctx.Err() == nil {
		p.logger.Error("inbox watcher stopped", rawlog.Error(err))
	}
}

type processorProgress struct {
	logger rawlog.Logger
	path   string
}

func (p processorProgress) OnProgress(progress int) {
	p.logger.Debug("processing progress", rawlog.String("archive", p.path), rawlog.Int("percent", progress))
}

func (p processorProgress) OnCompleted(outputPath string) {
	p.logger.Info("processing completed", rawlog.String("archive", p.path), rawlog.String("output", outputPath))
}

func (p processorProgress) OnError(err error) {
	p.logger.Error("processing failed", rawlog.String("archive", p.path), rawlog.Error(err))
}

func loadCameraDescription(path string) (metadata.CameraDescription, error) {
	var c metadata.CameraDescription
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, err
	}
	return c, nil
}

func baseNoExt(path string) string {
	base := path
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			base = path[i+1:]
			break
		}
	}
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			return base[:i]
		}
	}
	return base
}

// RunCaptureSession is the integration point a platform-specific binary
// calls once it has built a concrete session.Driver (spec.md §1 places
// the camera driver itself out of this module's scope).
func RunCaptureSession(ctx context.Context, logger rawlog.Logger, driver session.Driver, camera metadata.CameraDescription, collector statemachine.HdrCollector, listener session.Listener) {
	s := session.New(logger, driver, camera, collector, listener)
	s.Run(ctx)
}

func main() {
	configPath := flag.String("config", "rawcore.json", "path to the rawcore configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := rawlog.New(cfg.Debug, filepath.Join(cfg.LogFolder, "rawcore.log"))
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}

	prg := &program{cfg: cfg, logger: logger}

	svcConfig := &service.Config{
		Name:        "rawcore",
		DisplayName: "RawCore Capture & Fusion Core",
		Description: "Zero-shutter-lag RAW capture session and offline fusion processor",
	}
	svc, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatalf("failed to initialize service wrapper: %v", err)
	}
	if err := svc.Run(); err != nil {
		logger.Error("service exited with error", rawlog.Error(err))
	}
}
