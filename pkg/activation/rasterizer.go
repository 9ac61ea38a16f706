// Package activation turns experiences into per-region activation volumes and
// blends them over the anatomical background.
package activation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"brainmap/internal/models"
	"brainmap/pkg/regions"
)

// ErrNoActivation is returned when no experience names a known region with a
// non-zero intensity.
var ErrNoActivation = errors.New("no known brain region activated")

// Params controls blob shape and fan-out.
type Params struct {
	// SigmaMM is the Gaussian width in millimetres
	SigmaMM float64

	// RadiusSigmas truncates each blob at RadiusSigmas*SigmaMM
	RadiusSigmas float64

	// Threshold zeroes normalized values below it
	Threshold float64

	// NumCores bounds concurrent region rasterization
	NumCores int
}

// Activation is the rasterized result for one region.
type Activation struct {
	Region regions.Region

	// Volume is the region's activation on the template grid, peak 1
	Volume []float64

	// Intensity is the highest clamped intensity among experiences naming
	// the region
	Intensity float64

	// Experiences lists the sorted distinct experience types naming it
	Experiences []string
}

// Rasterizer stamps Gaussian blobs for each region onto the template grid.
type Rasterizer struct {
	table  *regions.Table
	grid   *models.Volume
	params Params
	logger *zap.Logger
}

// NewRasterizer creates a rasterizer for the grid of the given volume. Only the
// volume's shape and affine are used.
func NewRasterizer(table *regions.Table, grid *models.Volume, params Params, logger *zap.Logger) *Rasterizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if params.NumCores < 1 {
		params.NumCores = 1
	}
	return &Rasterizer{
		table:  table,
		grid:   grid,
		params: params,
		logger: logger,
	}
}

// regionJob gathers everything the experiences say about one region.
type regionJob struct {
	region    regions.Region
	weights   []float64
	intensity float64
	types     map[string]struct{}
}

// Rasterize builds one normalized activation per active region, in region
// table order.
func (r *Rasterizer) Rasterize(ctx context.Context, experiences []models.Experience) ([]*Activation, error) {
	jobs := r.collect(experiences)
	if len(jobs) == 0 {
		return nil, ErrNoActivation
	}

	results := make([]*Activation, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.params.NumCores)

	for i, job := range jobs {
		g.Go(func() error {
			act, err := r.rasterizeRegion(gctx, job)
			if err != nil {
				return fmt.Errorf("rasterize %s: %w", job.region.Name, err)
			}
			results[i] = act
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	active := results[:0]
	for _, act := range results {
		if act != nil {
			active = append(active, act)
		}
	}
	if len(active) == 0 {
		return nil, ErrNoActivation
	}
	return active, nil
}

// collect groups the experiences by region, in table order, dropping unknown
// names.
func (r *Rasterizer) collect(experiences []models.Experience) []*regionJob {
	byName := make(map[string]*regionJob)
	for _, exp := range experiences {
		intensity := exp.ClampedIntensity()
		seen := make(map[string]bool, len(exp.BrainRegions))
		for _, name := range exp.BrainRegions {
			region, ok := r.table.Lookup(name)
			if !ok {
				r.logger.Debug("Ignoring unknown region", zap.String("region", name))
				continue
			}
			// A region listed twice in one experience counts once
			if seen[region.Name] {
				continue
			}
			seen[region.Name] = true

			job, ok := byName[region.Name]
			if !ok {
				job = &regionJob{region: region, types: make(map[string]struct{})}
				byName[region.Name] = job
			}
			job.weights = append(job.weights, intensity/models.MaxIntensity)
			job.intensity = math.Max(job.intensity, intensity)
			if exp.Type != "" {
				job.types[exp.Type] = struct{}{}
			}
		}
	}

	jobs := make([]*regionJob, 0, len(byName))
	for _, name := range r.table.Names() {
		if job, ok := byName[name]; ok && job.intensity > 0 {
			jobs = append(jobs, job)
		}
	}
	return jobs
}

// rasterizeRegion returns nil when the region ends up with no voxels inside
// the grid.
func (r *Rasterizer) rasterizeRegion(ctx context.Context, job *regionJob) (*Activation, error) {
	vol := r.grid.Grid()

	// Blobs add linearly, so the weights of every experience fold into one
	// amplitude per coordinate.
	amplitude := floats.Sum(job.weights)

	for _, c := range job.region.Coords {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.stamp(vol, [3]float64{float64(c[0]), float64(c[1]), float64(c[2])}, amplitude)
	}

	if !Normalize(vol.Data, r.params.Threshold) {
		r.logger.Debug("Region falls outside the template grid", zap.String("region", job.region.Name))
		return nil, nil
	}

	types := make([]string, 0, len(job.types))
	for t := range job.types {
		types = append(types, t)
	}
	sort.Strings(types)

	return &Activation{
		Region:      job.region,
		Volume:      vol.Data,
		Intensity:   job.intensity,
		Experiences: types,
	}, nil
}

// stamp adds a truncated Gaussian of the given amplitude centred at a world
// coordinate.
func (r *Rasterizer) stamp(vol *models.Volume, centerMM [3]float64, amplitude float64) {
	sigma := r.params.SigmaMM
	radius := r.params.RadiusSigmas * sigma
	radius2 := radius * radius
	twoSigma2 := 2 * sigma * sigma

	center := vol.Affine.ToVoxel(centerMM)
	dims := [3]int{vol.Width, vol.Height, vol.Depth}
	var lo, hi [3]int
	for i := 0; i < 3; i++ {
		ext := radius / math.Abs(vol.Affine.Scale[i])
		lo[i] = max(int(math.Floor(center[i]-ext)), 0)
		hi[i] = min(int(math.Ceil(center[i]+ext)), dims[i]-1)
		if lo[i] > hi[i] {
			return
		}
	}

	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				p := vol.Affine.ToWorld([3]float64{float64(x), float64(y), float64(z)})
				dx, dy, dz := p[0]-centerMM[0], p[1]-centerMM[1], p[2]-centerMM[2]
				d2 := dx*dx + dy*dy + dz*dz
				if d2 > radius2 {
					continue
				}
				vol.Data[vol.Index(x, y, z)] += amplitude * math.Exp(-d2/twoSigma2)
			}
		}
	}
}

// Normalize divides data by its maximum in place and zeroes values below
// threshold. It reports false when data has no positive value.
func Normalize(data []float64, threshold float64) bool {
	if len(data) == 0 {
		return false
	}
	peak := floats.Max(data)
	if peak <= 0 {
		return false
	}
	floats.Scale(1/peak, data)
	if threshold > 0 {
		for i, v := range data {
			if v < threshold {
				data[i] = 0
			}
		}
	}
	return true
}
