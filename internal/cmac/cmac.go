// Package cmac runs the Corrected Moments in Antenna Coordinates sequence over
// one radar volume: gate classification, velocity dealiasing, differential
// phase processing, attenuation correction, rain rate and provenance metadata.
package cmac

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/storm-cmac-service/internal/config"
	"github.com/couchcryptid/storm-cmac-service/internal/correct"
	"github.com/couchcryptid/storm-cmac-service/internal/domain"
	"github.com/couchcryptid/storm-cmac-service/internal/observability"
	"github.com/couchcryptid/storm-cmac-service/internal/retrieve"
)

// Classifier assigns every gate of a volume to a category.
type Classifier interface {
	Classify(vol *domain.Volume) (*domain.Field, domain.Categories, error)
}

// Dealiaser unfolds Doppler velocity over the gates the filter includes.
type Dealiaser interface {
	Dealias(vol *domain.Volume, gf *correct.GateFilter) (*domain.Field, error)
}

// PhaseProcessor derives corrected differential phase and specific
// differential phase given the freezing level in metres.
type PhaseProcessor interface {
	Process(vol *domain.Volume, fzl float64) (phidp, kdp *domain.Field, err error)
}

// AttenuationCorrector derives specific attenuation and corrected
// reflectivity from a differential phase field.
type AttenuationCorrector interface {
	Correct(vol *domain.Volume, phidpField string, fzl float64) (specAtt, corrRefl *domain.Field, err error)
}

// Stages are the replaceable algorithms of a run.
type Stages struct {
	Classifier  Classifier
	Dealiaser   Dealiaser
	Phase       PhaseProcessor
	Attenuation AttenuationCorrector
}

// DefaultStages builds the baseline algorithms configured for site.
func DefaultStages(site config.Site) Stages {
	return Stages{
		Classifier:  retrieve.NewFuzzyClassifier(site.Texture.Start, site.Texture.End),
		Dealiaser:   correct.NewRegionDealiaser(),
		Phase:       correct.NewPhaseProcessor(site.Phase.Offset, site.Phase.NoWrap),
		Attenuation: correct.NewZPHI(site.AttenuationACoef),
	}
}

// RunOptions are the per-invocation inputs that are not part of the volume.
type RunOptions struct {
	Metadata domain.MetadataSource
	// CommandLine is recorded verbatim in the output metadata.
	CommandLine string
	// Verbose promotes per-field confirmations from debug to info.
	Verbose bool
}

// Processor runs the CMAC sequence.
type Processor struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	stages  func(config.Site) Stages
}

// Option configures a Processor.
type Option func(*Processor)

// WithStages replaces the stage constructor.
func WithStages(fn func(config.Site) Stages) Option {
	return func(p *Processor) { p.stages = fn }
}

// WithMetrics records per-stage durations and gate class counts.
func WithMetrics(m *observability.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a Processor using the default stages.
func NewProcessor(logger *slog.Logger, opts ...Option) *Processor {
	p := &Processor{logger: logger, stages: DefaultStages}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the full sequence over vol and returns it. The caller hands
// over vol for the duration of the call. Metadata source errors are reported
// before vol is touched; a later failure leaves the fields added so far.
func (p *Processor) Process(ctx context.Context, vol *domain.Volume, snd domain.Sounding, site config.Site, opts RunOptions) (*domain.Volume, error) {
	meta, err := opts.Metadata.Resolve(site.Metadata)
	if err != nil {
		return nil, fmt.Errorf("resolve metadata: %w", err)
	}
	r := &run{
		Processor: p,
		ctx:       ctx,
		vol:       vol,
		site:      site,
		stages:    p.stages(site),
		verbose:   opts.Verbose,
	}

	vol.Altitude = site.Altitude()
	p.logger.Info("processing scan", "site", vol.Site, "scan_time", vol.Time.Format(time.RFC3339))

	steps := []struct {
		name string
		fn   func() error
	}{
		{"fields", func() error { return r.deriveFields(snd) }},
		{"classify", r.classify},
		{"dealias", r.dealias},
		{"freezing_level", r.freezingLevel},
		{"phase", r.phase},
		{"attenuation", r.attenuation},
		{"rain_rate", r.rainRate},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		start := time.Now()
		if err := s.fn(); err != nil {
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		p.observeStage(s.name, start)
	}

	vol.ReplaceMetadata(meta, opts.CommandLine)
	p.logger.Info("scan processed", "site", vol.Site, "scan_time", vol.Time.Format(time.RFC3339),
		"metadata", opts.Metadata.String(), "freezing_level_m", r.fzl)
	return vol, nil
}

func (p *Processor) observeStage(stage string, start time.Time) {
	if p.metrics == nil {
		return
	}
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// run carries the state threaded between the steps of one Process call.
type run struct {
	*Processor
	ctx     context.Context
	vol     *domain.Volume
	site    config.Site
	stages  Stages
	verbose bool

	prof   domain.Profile
	cats   domain.Categories
	precip *correct.GateFilter
	fzl    float64
}

func (r *run) addField(name string, f *domain.Field) error {
	if err := r.vol.AddField(name, f, true); err != nil {
		return err
	}
	level := slog.LevelDebug
	if r.verbose {
		level = slog.LevelInfo
	}
	r.logger.Log(r.ctx, level, "field added", "field", name)
	return nil
}

func (r *run) deriveFields(snd domain.Sounding) error {
	prof, err := snd.Profile(r.site.Sonde.Temperature, r.site.Sonde.Height)
	if err != nil {
		return err
	}
	r.prof = prof
	temp, height := retrieve.GateProfile(r.vol, prof)

	snr, err := retrieve.SNRFromReflectivity(r.vol, retrieve.DefaultTopOfAtmosphere)
	if err != nil {
		return err
	}
	tex, err := retrieve.VelocityTexture(r.vol, retrieve.DefaultTextureWindow)
	if err != nil {
		return err
	}

	for _, f := range []struct {
		name  string
		field *domain.Field
	}{
		{domain.FieldHeight, height},
		{domain.FieldSoundingTemperature, temp},
		{domain.FieldSNR, snr},
		{domain.FieldVelocityTexture, tex},
	} {
		if err := r.addField(f.name, f.field); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) classify() error {
	gateID, cats, err := r.stages.Classifier.Classify(r.vol)
	if err != nil {
		return err
	}
	cats, err = r.applyClutter(gateID, cats)
	if err != nil {
		return err
	}
	if err := r.addField(domain.FieldGateID, gateID); err != nil {
		return err
	}
	r.cats = cats
	r.countClasses(gateID)

	r.precip, err = correct.CategoryFilter(r.vol, cats,
		domain.CategoryRain, domain.CategoryMelting, domain.CategorySnow)
	if err != nil {
		return err
	}
	r.logger.Debug("precipitation filter built", "included_gates", r.precip.CountIncluded())
	return nil
}

// applyClutter appends the clutter category one past the classifier's largest
// id and assigns it to every gate flagged in the site's clutter mask.
func (r *run) applyClutter(gateID *domain.Field, cats domain.Categories) (domain.Categories, error) {
	cats, clutterID, err := cats.WithLabel(domain.CategoryClutter)
	if err != nil {
		return domain.Categories{}, err
	}
	validMax := float64(clutterID)
	gateID.Attrs.ValidMax = &validMax
	gateID.Attrs.Notes = cats.Notes()
	gateID.Categories = &cats

	mask, ok := r.vol.Fields[r.site.ClutterField]
	if !ok {
		r.logger.Warn("clutter mask not found, no gates reassigned", "field", r.site.ClutterField)
		return cats, nil
	}
	ids := gateID.Values()
	for k, v := range mask.Values() {
		if !mask.Masked(k) && v == 1 {
			ids[k] = validMax
		}
	}
	return cats, nil
}

func (r *run) countClasses(gateID *domain.Field) {
	if r.metrics == nil {
		return
	}
	counts := make(map[string]int, r.cats.Len())
	for k, v := range gateID.Values() {
		if gateID.Masked(k) {
			continue
		}
		counts[r.cats.Label(int(v))]++
	}
	for label, n := range counts {
		if label == "" {
			continue
		}
		r.metrics.GateClass.WithLabelValues(label).Add(float64(n))
	}
}

func (r *run) dealias() error {
	vel, err := r.stages.Dealiaser.Dealias(r.vol, r.precip)
	if err != nil {
		return err
	}
	return r.addField(domain.FieldCorrectedVelocity, vel)
}

func (r *run) freezingLevel() error {
	fzl, err := retrieve.FreezingLevel(r.vol, r.cats, r.prof)
	if err != nil {
		return err
	}
	r.fzl = fzl
	r.logger.Debug("freezing level estimated", "fzl_m", fzl)
	return nil
}

func (r *run) phase() error {
	phidp, kdp, err := r.stages.Phase.Process(r.vol, r.fzl)
	if err != nil {
		return err
	}
	if err := r.addField(domain.FieldCorrectedPhiDP, phidp); err != nil {
		return err
	}
	if err := r.addField(domain.FieldCorrectedKDP, kdp); err != nil {
		return err
	}

	fphidp, fkdp, err := FixPhaseFields(r.vol, phidp, kdp, r.precip)
	if err != nil {
		return err
	}
	if err := r.addField(domain.FieldFilteredPhiDP, fphidp); err != nil {
		return err
	}
	return r.addField(domain.FieldFilteredKDP, fkdp)
}

func (r *run) attenuation() error {
	specAtt, corrRefl, err := r.stages.Attenuation.Correct(r.vol, domain.FieldFilteredPhiDP, r.fzl)
	if err != nil {
		return err
	}
	rain, err := correct.CategoryFilter(r.vol, r.cats, domain.CategoryRain)
	if err != nil {
		return err
	}
	a := specAtt.Values()
	for k := range a {
		if rain.Excluded(k) {
			a[k] = 0
		}
	}
	if err := r.addField(domain.FieldSpecificAttenuation, specAtt); err != nil {
		return err
	}
	return r.addField(domain.FieldCorrectedRefl, corrRefl)
}

func (r *run) rainRate() error {
	specAtt, err := r.vol.Field(domain.FieldSpecificAttenuation)
	if err != nil {
		return err
	}
	refl, err := r.vol.Field(domain.FieldReflectivity)
	if err != nil {
		return err
	}
	invalid := correct.NewGateFilter(r.vol)
	invalid.ExcludeMasked(refl)
	return r.addField(domain.FieldRainRate, domain.RainRateFromAttenuation(specAtt, invalid.Mask()))
}
