package render

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"brainmap/pkg/activation"
)

// Viewer cuts 2D RGB slices out of a composite volume
type Viewer struct {
	// composite holds the blended RGB volume
	composite *activation.Composite
}

// NewViewer creates a new slice viewer
func NewViewer(composite *activation.Composite) *Viewer {
	return &Viewer{composite: composite}
}

// axisIndex maps an axis name onto 0 (x), 1 (y) or 2 (z)
func axisIndex(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}
}

// dims returns the grid size along each axis
func (v *Viewer) dims() [3]int {
	c := v.composite
	return [3]int{c.Width, c.Height, c.Depth}
}

// SliceIndex converts an MNI coordinate along axis into the nearest voxel
// index of the composite grid
func (v *Viewer) SliceIndex(axis string, positionMM float64) (int, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return 0, err
	}
	aff := v.composite.Affine
	idx := int(math.Round((positionMM - aff.Offset[a]) / aff.Scale[a]))
	if idx < 0 || idx >= v.dims()[a] {
		return 0, fmt.Errorf("position %g mm on axis %s falls outside the grid", positionMM, axis)
	}
	return idx, nil
}

// planeAxes returns the in-plane (horizontal, vertical) axes for a cut along
// axis. Vertical runs superior-up for sagittal and coronal cuts and
// anterior-up for axial cuts.
func planeAxes(a int) (int, int) {
	switch a {
	case 0:
		return 1, 2
	case 1:
		return 0, 2
	default:
		return 0, 1
	}
}

// ExtractSlice extracts a 2D RGB slice from the composite along the
// specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.RGBA, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	a, err := axisIndex(axis)
	if err != nil {
		return nil, err
	}
	dims := v.dims()
	if position >= dims[a] {
		return nil, fmt.Errorf("position %d exceeds size %d of axis %s", position, dims[a], axis)
	}

	h, vert := planeAxes(a)
	cols, rows := dims[h], dims[vert]
	scale := v.composite.Affine.Scale
	img := image.NewRGBA(image.Rect(0, 0, cols, rows))

	var voxel [3]int
	voxel[a] = position
	for i := 0; i < cols; i++ {
		for j := 0; j < rows; j++ {
			voxel[h], voxel[vert] = i, j

			// World coordinates grow rightwards and upwards
			px := i
			if scale[h] < 0 {
				px = cols - 1 - i
			}
			py := rows - 1 - j
			if scale[vert] < 0 {
				py = j
			}

			idx := v.composite.Index(voxel[0], voxel[1], voxel[2])
			img.SetRGBA(px, py, color.RGBA{
				R: toByte(v.composite.R[idx]),
				G: toByte(v.composite.G[idx]),
				B: toByte(v.composite.B[idx]),
				A: 0xff,
			})
		}
	}

	return img, nil
}

// PlaneExtent returns the world extent in mm of a cut along axis as
// (xmin, ymin, xmax, ymax), matching the orientation of ExtractSlice
func (v *Viewer) PlaneExtent(axis string) (float64, float64, float64, float64, error) {
	a, err := axisIndex(axis)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	h, vert := planeAxes(a)
	dims := v.dims()
	aff := v.composite.Affine

	lo := func(k int) float64 {
		return math.Min(aff.Offset[k], aff.Offset[k]+aff.Scale[k]*float64(dims[k]-1)) - math.Abs(aff.Scale[k])/2
	}
	hi := func(k int) float64 {
		return math.Max(aff.Offset[k], aff.Offset[k]+aff.Scale[k]*float64(dims[k]-1)) + math.Abs(aff.Scale[k])/2
	}
	return lo(h), lo(vert), hi(h), hi(vert), nil
}

// toByte maps a [0, 1] channel value to 0..255
func toByte(x float64) uint8 {
	return uint8(math.Round(activation.Clip01(x) * 255))
}
