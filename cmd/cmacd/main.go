// Command cmacd consumes scan requests from Kafka, runs the CMAC sequence on
// each referenced volume and publishes product events.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/couchcryptid/storm-cmac-service/internal/adapter/catalog"
	httpadapter "github.com/couchcryptid/storm-cmac-service/internal/adapter/http"
	"github.com/couchcryptid/storm-cmac-service/internal/adapter/influx"
	kafkaadapter "github.com/couchcryptid/storm-cmac-service/internal/adapter/kafka"
	"github.com/couchcryptid/storm-cmac-service/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-cmac-service/internal/adapter/sounding"
	"github.com/couchcryptid/storm-cmac-service/internal/cmac"
	"github.com/couchcryptid/storm-cmac-service/internal/config"
	"github.com/couchcryptid/storm-cmac-service/internal/observability"
	"github.com/couchcryptid/storm-cmac-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	site, err := config.LoadSite(cfg.SiteConfig)
	if err != nil {
		logger.Error("failed to load site config", "path", cfg.SiteConfig, "error", err)
		os.Exit(1)
	}
	if _, err := cfg.MetaAppend.Resolve(site.Metadata); err != nil {
		logger.Error("metadata source unusable", "metadata", cfg.MetaAppend.String(), "error", err)
		os.Exit(1)
	}
	logger.Info("site config loaded", "site", site.Name, "path", cfg.SiteConfig, "metadata", cfg.MetaAppend.String())

	products, err := catalog.Open(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to open catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}

	secondaries := map[string]pipeline.Recorder{"catalog": products}
	var stats *influx.Recorder
	if cfg.InfluxEnabled() {
		stats = influx.NewRecorder(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
		secondaries["influx"] = stats
		logger.Info("influx statistics enabled", "url", cfg.InfluxURL, "bucket", cfg.InfluxBucket)
	} else {
		logger.Info("influx statistics disabled")
	}

	soundings := sounding.NewCachedSource(
		sounding.NewClient(cfg.SoundingTimeout, metrics, logger),
		cfg.SoundingCacheSize,
		metrics,
	)
	processor := cmac.NewProcessor(logger, cmac.WithMetrics(metrics))
	transformer := pipeline.NewScanTransformer(processor, soundings, netcdf.Store{}, site, pipeline.ScanOptions{
		OutputDir:   cfg.OutputDir,
		Metadata:    cfg.MetaAppend,
		CommandLine: strings.Join(os.Args, " "),
		Verbose:     cfg.Verbose,
	}, logger)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	loader := pipeline.NewFanOutLoader(writer, secondaries, logger, metrics)

	p := pipeline.New(reader, transformer, loader, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, products, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	if err := products.Close(); err != nil {
		logger.Error("catalog close error", "error", err)
	}
	if stats != nil {
		stats.Close()
	}

	logger.Info("shutdown complete")
}
