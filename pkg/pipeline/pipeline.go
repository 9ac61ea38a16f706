// Package pipeline turns one experience request into a rendered activation
// figure and a per-region summary.
//
// The pipeline consists of several steps:
// 1. Validating the request
// 2. Rasterizing one Gaussian activation volume per named region
// 3. Blending the active regions over the anatomical template
// 4. Rendering the fixed views and legend to a base64 PNG
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/color"
	"time"

	"go.uber.org/zap"

	"brainmap/internal/models"
	"brainmap/pkg/activation"
	"brainmap/pkg/config"
	"brainmap/pkg/regions"
	"brainmap/pkg/render"
)

var (
	// ErrInvalidRequest marks input that is not a JSON request object.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoExperiences marks a request without experiences.
	ErrNoExperiences = errors.New("no experiences provided")

	// ErrNoActivation marks a request naming no known region.
	ErrNoActivation = activation.ErrNoActivation
)

// Request is the JSON payload accepted by brainmap.
type Request struct {
	Experiences []models.Experience `json:"experiences"`
}

// RegionSummary describes one active region in the result.
type RegionSummary struct {
	Region      string   `json:"region"`
	Intensity   float64  `json:"intensity"`
	Description string   `json:"description"`
	Details     string   `json:"details"`
	Color       string   `json:"color"`
	Experiences []string `json:"experiences,omitempty"`
}

// Result is the JSON document printed on success.
type Result struct {
	Visualization string          `json:"visualization"`
	Regions       []RegionSummary `json:"regions"`
	MaxIntensity  float64         `json:"max_intensity"`
}

// ParseRequest decodes and validates a request document.
func ParseRequest(data []byte) (*Request, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidRequest)
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the request carries at least one experience.
func (r *Request) Validate() error {
	if len(r.Experiences) == 0 {
		return ErrNoExperiences
	}
	return nil
}

// CheckRegions returns ErrNoActivation unless some experience with a positive
// intensity names a region of table. It needs no template, so a request can
// be rejected before one is loaded.
func (r *Request) CheckRegions(table *regions.Table) error {
	for _, exp := range r.Experiences {
		if exp.ClampedIntensity() <= 0 {
			continue
		}
		for _, name := range exp.BrainRegions {
			if _, ok := table.Resolve(name); ok {
				return nil
			}
		}
	}
	return ErrNoActivation
}

// Pipeline holds everything loaded once per process. It is read-only after
// New and safe to reuse across requests.
type Pipeline struct {
	cfg        *config.Config
	table      *regions.Table
	background *models.Volume
	rasterizer *activation.Rasterizer
	renderer   *render.Renderer
	logger     *zap.Logger
}

// New creates a pipeline over the given anatomical template. The template is
// normalized to [0, 1] here; the caller's volume is not modified.
func New(cfg *config.Config, table *regions.Table, template *models.Volume, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if template == nil || template.Len() == 0 || len(template.Data) != template.Len() {
		return nil, fmt.Errorf("template volume is empty or malformed")
	}
	if !template.Affine.Valid() {
		return nil, fmt.Errorf("template affine has a zero voxel size")
	}

	background := activation.NormalizeBackground(template, cfg.Processing.BackgroundQuantile)

	rasterizer := activation.NewRasterizer(table, background, activation.Params{
		SigmaMM:      cfg.Processing.SigmaMM,
		RadiusSigmas: cfg.Processing.RadiusSigmas,
		Threshold:    cfg.Processing.Threshold,
		NumCores:     cfg.Processing.NumCores,
	}, logger)

	renderer := render.NewRenderer(&render.Params{
		WidthInches:  cfg.Render.WidthInches,
		HeightInches: cfg.Render.HeightInches,
		DPI:          cfg.Render.DPI,
		Upscale:      cfg.Render.Upscale,
		Title:        cfg.Render.Title,
		Views:        cfg.Render.Views,
	}, logger)

	return &Pipeline{
		cfg:        cfg,
		table:      table,
		background: background,
		rasterizer: rasterizer,
		renderer:   renderer,
		logger:     logger,
	}, nil
}

// ProcessJSON parses a request document and processes it.
func (p *Pipeline) ProcessJSON(ctx context.Context, data []byte) (*Result, error) {
	req, err := ParseRequest(data)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, req)
}

// Process runs the complete visualization pipeline
func (p *Pipeline) Process(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	// Step 1: Rasterize region activations
	p.logger.Debug("Step 1: Rasterizing activations", zap.Int("experiences", len(req.Experiences)))
	acts, err := p.rasterizer.Rasterize(ctx, req.Experiences)
	if err != nil {
		return nil, fmt.Errorf("failed to rasterize activations: %w", err)
	}

	// Step 2: Blend active regions over the template
	p.logger.Debug("Step 2: Blending activations", zap.Int("regions", len(acts)))
	composite, err := activation.Blend(p.background, acts, p.cfg.Processing.Opacity)
	if err != nil {
		return nil, fmt.Errorf("failed to blend activations: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: Render views and legend
	p.logger.Debug("Step 3: Rendering figure", zap.Int("views", len(p.cfg.Render.Views)))
	legend, err := legendEntries(acts)
	if err != nil {
		return nil, err
	}
	png, err := p.renderer.Render(composite, legend)
	if err != nil {
		return nil, fmt.Errorf("failed to render figure: %w", err)
	}

	result := &Result{
		Visualization: render.DataURI(png),
		Regions:       summarize(acts),
	}
	for _, r := range result.Regions {
		if r.Intensity > result.MaxIntensity {
			result.MaxIntensity = r.Intensity
		}
	}

	p.logger.Info("Visualization complete",
		zap.Int("active_regions", len(acts)),
		zap.Float64("coverage", coverage(acts)),
		zap.Float64("max_intensity", result.MaxIntensity),
		zap.Int("png_bytes", len(png)),
		zap.Duration("elapsed", time.Since(start)))

	return result, nil
}

// legendEntries lists the active regions with their display colors.
func legendEntries(acts []*activation.Activation) ([]render.LegendEntry, error) {
	entries := make([]render.LegendEntry, 0, len(acts))
	for _, act := range acts {
		c, err := regions.ParseHex(act.Region.Color)
		if err != nil {
			return nil, err
		}
		entries = append(entries, render.LegendEntry{
			Label:     act.Region.Label,
			Color:     color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xb3},
			Intensity: act.Intensity,
		})
	}
	return entries, nil
}

// summarize reports active regions in region table order.
func summarize(acts []*activation.Activation) []RegionSummary {
	out := make([]RegionSummary, 0, len(acts))
	for _, act := range acts {
		out = append(out, RegionSummary{
			Region:      act.Region.Name,
			Intensity:   act.Intensity,
			Description: act.Region.Label,
			Details:     act.Region.Description,
			Color:       act.Region.Color,
			Experiences: act.Experiences,
		})
	}
	return out
}

// coverage returns the fraction of voxels touched by any region.
func coverage(acts []*activation.Activation) float64 {
	if len(acts) == 0 || len(acts[0].Volume) == 0 {
		return 0
	}
	n := len(acts[0].Volume)
	var touched int
	for i := 0; i < n; i++ {
		for _, act := range acts {
			if act.Volume[i] > 0 {
				touched++
				break
			}
		}
	}
	return float64(touched) / float64(n)
}
