package activation

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"brainmap/internal/models"
)

// Composite is an RGB volume with channels in [0, 1].
type Composite struct {
	Width, Height, Depth int
	Affine               models.Affine
	R, G, B              []float64
}

// Index returns the offset of voxel (x, y, z) in each channel.
func (c *Composite) Index(x, y, z int) int {
	return z*c.Width*c.Height + y*c.Width + x
}

// Clip01 limits x to [0, 1].
func Clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// NormalizeBackground returns a copy of v scaled to [0, 1]. The scale is the
// given quantile of the positive voxels, so a few hot voxels do not darken the
// whole anatomy; voxels above it saturate at 1. A quantile of 1 scales by the
// maximum. Negative voxels are clipped to 0.
func NormalizeBackground(v *models.Volume, quantile float64) *models.Volume {
	out := v.Grid()
	copy(out.Data, v.Data)

	positive := make([]float64, 0, len(out.Data))
	for _, x := range out.Data {
		if x > 0 {
			positive = append(positive, x)
		}
	}
	if len(positive) == 0 {
		for i := range out.Data {
			out.Data[i] = 0
		}
		return out
	}

	sort.Float64s(positive)
	peak := stat.Quantile(Clip01(quantile), stat.Empirical, positive, nil)
	if peak <= 0 {
		peak = floats.Max(positive)
	}

	floats.Scale(1/peak, out.Data)
	for i, x := range out.Data {
		out.Data[i] = Clip01(x)
	}
	return out
}

// Blend alpha-composites the activations over a grayscale background that is
// already normalized to [0, 1].
//
// Per voxel the overlay color is the activation-weighted mean of the region
// colors and the coverage is the clipped sum of activations scaled by
// opacity. Activations are summed in region-name order so the result does not
// depend on the order of acts.
func Blend(background *models.Volume, acts []*Activation, opacity float64) (*Composite, error) {
	n := background.Len()
	if len(background.Data) != n {
		return nil, fmt.Errorf("background has %d voxels, grid needs %d", len(background.Data), n)
	}

	ordered := append([]*Activation(nil), acts...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Region.Name < ordered[j].Region.Name })

	colors := make([][3]float64, len(ordered))
	for i, act := range ordered {
		if len(act.Volume) != n {
			return nil, fmt.Errorf("activation for %s has %d voxels, grid needs %d", act.Region.Name, len(act.Volume), n)
		}
		rgb, err := act.Region.RGB()
		if err != nil {
			return nil, err
		}
		colors[i] = rgb
	}

	out := &Composite{
		Width:  background.Width,
		Height: background.Height,
		Depth:  background.Depth,
		Affine: background.Affine,
		R:      make([]float64, n),
		G:      make([]float64, n),
		B:      make([]float64, n),
	}
	opacity = Clip01(opacity)

	for i := 0; i < n; i++ {
		gray := Clip01(background.Data[i])

		var coverage float64
		var mix [3]float64
		for k, act := range ordered {
			a := act.Volume[i]
			if a <= 0 {
				continue
			}
			coverage += a
			mix[0] += colors[k][0] * a
			mix[1] += colors[k][1] * a
			mix[2] += colors[k][2] * a
		}

		if coverage == 0 {
			out.R[i], out.G[i], out.B[i] = gray, gray, gray
			continue
		}

		alpha := Clip01(coverage) * opacity
		out.R[i] = Clip01((1-alpha)*gray + alpha*mix[0]/coverage)
		out.G[i] = Clip01((1-alpha)*gray + alpha*mix[1]/coverage)
		out.B[i] = Clip01((1-alpha)*gray + alpha*mix[2]/coverage)
	}

	return out, nil
}
