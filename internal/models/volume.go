package models

import "math"

// Affine maps voxel indices to MNI millimetres along each axis independently.
// Oblique (off-diagonal) transforms are not represented.
type Affine struct {
	// Scale is the signed voxel size in mm for x, y and z
	Scale [3]float64 `yaml:"scale"`

	// Offset is the world coordinate of voxel (0, 0, 0) in mm
	Offset [3]float64 `yaml:"offset"`
}

// MNI152Affine2mm is the voxel-to-world mapping of the 91x109x91 MNI152 2 mm template.
var MNI152Affine2mm = Affine{
	Scale:  [3]float64{2, 2, 2},
	Offset: [3]float64{-90, -126, -72},
}

// ToVoxel converts a world coordinate in mm to fractional voxel indices.
func (a Affine) ToVoxel(mm [3]float64) [3]float64 {
	var v [3]float64
	for i := 0; i < 3; i++ {
		v[i] = (mm[i] - a.Offset[i]) / a.Scale[i]
	}
	return v
}

// ToWorld converts voxel indices to world coordinates in mm.
func (a Affine) ToWorld(v [3]float64) [3]float64 {
	var mm [3]float64
	for i := 0; i < 3; i++ {
		mm[i] = v[i]*a.Scale[i] + a.Offset[i]
	}
	return mm
}

// Valid reports whether every axis has a usable non-zero voxel size.
func (a Affine) Valid() bool {
	for i := 0; i < 3; i++ {
		if a.Scale[i] == 0 || math.IsNaN(a.Scale[i]) || math.IsInf(a.Scale[i], 0) {
			return false
		}
	}
	return true
}

// Volume represents a 3D scalar volume on the template voxel grid
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order
	Data []float64

	// Width is the size of the volume along x in voxels
	Width int

	// Height is the size of the volume along y in voxels
	Height int

	// Depth is the size of the volume along z in voxels
	Depth int

	// Affine places the voxel grid in MNI space
	Affine Affine
}

// NewVolume allocates a zeroed volume with the given grid.
func NewVolume(width, height, depth int, affine Affine) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
		Affine: affine,
	}
}

// Grid returns an empty volume sharing this volume's shape and affine.
func (v *Volume) Grid() *Volume {
	return NewVolume(v.Width, v.Height, v.Depth, v.Affine)
}

// Index returns the offset of voxel (x, y, z) in Data.
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// Contains reports whether (x, y, z) lies inside the grid.
func (v *Volume) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.Width && y < v.Height && z < v.Depth
}

// Len returns the number of voxels.
func (v *Volume) Len() int {
	return v.Width * v.Height * v.Depth
}
