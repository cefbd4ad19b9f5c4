// Command cmac runs the CMAC sequence once over local files and writes the
// processed volume.
//
// Usage:
//
//	go run ./cmd/cmac [-o out.nc] [-meta-append meta.json|config] [-verbose] \
//	  radar.nc sounding.nc configs/sgp_xsapr.toml
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/storm-cmac-service/internal/adapter/netcdf"
	"github.com/couchcryptid/storm-cmac-service/internal/adapter/sounding"
	"github.com/couchcryptid/storm-cmac-service/internal/cmac"
	"github.com/couchcryptid/storm-cmac-service/internal/config"
	"github.com/couchcryptid/storm-cmac-service/internal/domain"
	"github.com/couchcryptid/storm-cmac-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "cmac: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	output := flag.String("o", "", "output path (default: <radar>.cmac.nc)")
	metaAppend := flag.String("meta-append", "", "metadata source: a .json file or \"config\" (default: built-in block)")
	verbose := flag.Bool("verbose", false, "log each derived field at info level")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "text", "log format: text or json")
	soundingTimeout := flag.Duration("sounding-timeout", 30*time.Second, "timeout for HTTP sounding downloads")
	flag.Parse()

	if flag.NArg() != 3 {
		flag.Usage()
		return fmt.Errorf("expected 3 arguments: radar file, sounding file, site config")
	}
	radarPath, soundingRef, sitePath := flag.Arg(0), flag.Arg(1), flag.Arg(2)

	meta, err := domain.ParseMetadataSource(*metaAppend)
	if err != nil {
		return err
	}
	site, err := config.LoadSite(sitePath)
	if err != nil {
		return err
	}

	logger := sharedobs.NewLogger(*logLevel, *logFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vol, err := netcdf.ReadVolume(radarPath)
	if err != nil {
		return err
	}
	snd, err := sounding.NewClient(*soundingTimeout, metrics, logger).Fetch(ctx, soundingRef)
	if err != nil {
		return err
	}

	out, err := cmac.NewProcessor(logger, cmac.WithMetrics(metrics)).Process(ctx, vol, *snd, site, cmac.RunOptions{
		Metadata:    meta,
		CommandLine: strings.Join(os.Args, " "),
		Verbose:     *verbose,
	})
	if err != nil {
		return err
	}

	path := *output
	if path == "" {
		path = strings.TrimSuffix(radarPath, ".nc") + ".cmac.nc"
	}
	if err := netcdf.WriteVolume(path, out); err != nil {
		return err
	}

	req := domain.ScanRequest{ID: "local", RadarFile: radarPath, Sounding: soundingRef, Output: path}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(domain.Summarize(req, out, path))
}
