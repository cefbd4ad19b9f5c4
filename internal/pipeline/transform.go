package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/storm-cmac-service/internal/cmac"
	"github.com/couchcryptid/storm-cmac-service/internal/config"
	"github.com/couchcryptid/storm-cmac-service/internal/domain"
)

// VolumeProcessor runs the CMAC sequence on a volume.
type VolumeProcessor interface {
	Process(ctx context.Context, vol *domain.Volume, snd domain.Sounding, site config.Site, opts cmac.RunOptions) (*domain.Volume, error)
}

// SoundingSource resolves a sounding reference.
type SoundingSource interface {
	Fetch(ctx context.Context, ref string) (*domain.Sounding, error)
}

// VolumeStore reads input volumes and writes processed ones.
type VolumeStore interface {
	ReadVolume(path string) (*domain.Volume, error)
	WriteVolume(path string, vol *domain.Volume) error
}

// ScanOptions configure how each request is processed.
type ScanOptions struct {
	OutputDir   string
	Metadata    domain.MetadataSource
	CommandLine string
	Verbose     bool
}

// ScanTransformer implements Transformer: it loads the requested volume and
// sounding, runs CMAC, writes the product file and summarises it.
type ScanTransformer struct {
	processor VolumeProcessor
	soundings SoundingSource
	store     VolumeStore
	site      config.Site
	opts      ScanOptions
	logger    *slog.Logger
}

// NewScanTransformer creates a ScanTransformer for one site configuration.
func NewScanTransformer(processor VolumeProcessor, soundings SoundingSource, store VolumeStore, site config.Site, opts ScanOptions, logger *slog.Logger) *ScanTransformer {
	return &ScanTransformer{
		processor: processor,
		soundings: soundings,
		store:     store,
		site:      site,
		opts:      opts,
		logger:    logger,
	}
}

func (t *ScanTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.ProductEvent, error) {
	req, err := domain.ParseScanRequest(raw)
	if err != nil {
		return domain.ProductEvent{}, err
	}
	log := t.logger.With("scan_id", req.ID, "radar_file", req.RadarFile)
	if req.Output != "" && !filepath.IsLocal(req.Output) {
		return domain.ProductEvent{}, fmt.Errorf("%w: output %q must be a relative path inside the output directory", domain.ErrInvalidRequest, req.Output)
	}

	vol, err := t.store.ReadVolume(req.RadarFile)
	if err != nil {
		return domain.ProductEvent{}, fmt.Errorf("read radar file: %w", err)
	}
	snd, err := t.soundings.Fetch(ctx, req.Sounding)
	if err != nil {
		return domain.ProductEvent{}, fmt.Errorf("fetch sounding: %w", err)
	}

	out, err := t.processor.Process(ctx, vol, *snd, t.site, cmac.RunOptions{
		Metadata:    t.opts.Metadata,
		CommandLine: t.opts.CommandLine,
		Verbose:     t.opts.Verbose,
	})
	if err != nil {
		return domain.ProductEvent{}, err
	}

	name := req.Output
	if name == "" {
		name = ProductFileName(out, req.ID)
	}
	path := filepath.Join(t.opts.OutputDir, name)
	if err := t.store.WriteVolume(path, out); err != nil {
		return domain.ProductEvent{}, fmt.Errorf("write product: %w", err)
	}

	ev := domain.Summarize(req, out, path)
	log.Info("scan processed", "output", path, "rain_gates", ev.RainRate.Gates)
	return ev, nil
}

// ProductFileName names a product file by site, scan time and request id.
func ProductFileName(vol *domain.Volume, id string) string {
	site := vol.Site
	if site == "" {
		site = "unknown"
	}
	return fmt.Sprintf("%s_cmac_%s_%s.nc", site, vol.Time.UTC().Format("20060102_150405"), id)
}
