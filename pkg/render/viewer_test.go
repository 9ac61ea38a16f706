package render

import (
	"testing"

	"brainmap/internal/models"
	"brainmap/pkg/activation"
)

// testComposite builds a 6x5x4 composite whose red channel encodes x, green
// encodes y and blue encodes z
func testComposite(affine models.Affine) *activation.Composite {
	width, height, depth := 6, 5, 4
	n := width * height * depth
	c := &activation.Composite{
		Width: width, Height: height, Depth: depth,
		Affine: affine,
		R:      make([]float64, n),
		G:      make([]float64, n),
		B:      make([]float64, n),
	}
	for z := 0; z < depth; z++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				idx := c.Index(x, y, z)
				c.R[idx] = float64(x) / float64(width-1)
				c.G[idx] = float64(y) / float64(height-1)
				c.B[idx] = float64(z) / float64(depth-1)
			}
		}
	}
	return c
}

var unitAffine = models.Affine{Scale: [3]float64{1, 1, 1}}

// TestExtractSlice verifies slice dimensions and orientation along each axis
func TestExtractSlice(t *testing.T) {
	viewer := NewViewer(testComposite(unitAffine))

	// Axial: x runs right, y runs up
	img, err := viewer.ExtractSlice("z", 2)
	if err != nil {
		t.Fatalf("Failed to extract Z slice: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 5 {
		t.Errorf("Expected Z slice dimensions 6x5, got %dx%d", b.Dx(), b.Dy())
	}
	// Bottom-left pixel is voxel (0, 0, 2)
	if px := img.RGBAAt(0, 4); px.R != 0 || px.G != 0 || px.B != 170 {
		t.Errorf("Unexpected bottom-left pixel %v", px)
	}
	// Top-right pixel is voxel (5, 4, 2)
	if px := img.RGBAAt(5, 0); px.R != 255 || px.G != 255 {
		t.Errorf("Unexpected top-right pixel %v", px)
	}

	// Sagittal: y runs right, z runs up
	img, err = viewer.ExtractSlice("x", 0)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 5 || b.Dy() != 4 {
		t.Errorf("Expected X slice dimensions 5x4, got %dx%d", b.Dx(), b.Dy())
	}
	if px := img.RGBAAt(4, 0); px.G != 255 || px.B != 255 {
		t.Errorf("Unexpected top-right pixel of sagittal slice %v", px)
	}

	// Coronal: x runs right, z runs up
	img, err = viewer.ExtractSlice("y", 1)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 6 || b.Dy() != 4 {
		t.Errorf("Expected Y slice dimensions 6x4, got %dx%d", b.Dx(), b.Dy())
	}

	// Test invalid axis
	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}

	// Test out of bounds position
	if _, err := viewer.ExtractSlice("z", 4); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("z", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestExtractSliceFlippedAxis checks that a negative voxel size mirrors the
// slice so world x still grows to the right
func TestExtractSliceFlippedAxis(t *testing.T) {
	flipped := models.Affine{Scale: [3]float64{-1, 1, 1}}
	viewer := NewViewer(testComposite(flipped))

	img, err := viewer.ExtractSlice("z", 0)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	// Voxel x=0 has the largest world x and lands on the right edge
	if px := img.RGBAAt(5, 4); px.R != 0 {
		t.Errorf("Expected voxel x=0 on the right edge, got %v", px)
	}
	if px := img.RGBAAt(0, 4); px.R != 255 {
		t.Errorf("Expected voxel x=5 on the left edge, got %v", px)
	}
}

func TestSliceIndex(t *testing.T) {
	composite := testComposite(models.Affine{
		Scale:  [3]float64{2, 2, 2},
		Offset: [3]float64{-6, -4, -4},
	})
	viewer := NewViewer(composite)

	tests := []struct {
		axis    string
		mm      float64
		want    int
		wantErr bool
	}{
		{"x", -6, 0, false},
		{"x", 0, 3, false},
		{"x", 0.9, 3, false},
		{"y", 4, 4, false},
		{"z", 2, 3, false},
		{"z", 10, 0, true},
		{"x", -9, 0, true},
		{"w", 0, 0, true},
	}

	for _, tt := range tests {
		got, err := viewer.SliceIndex(tt.axis, tt.mm)
		if tt.wantErr {
			if err == nil {
				t.Errorf("SliceIndex(%s, %g): expected error", tt.axis, tt.mm)
			}
			continue
		}
		if err != nil {
			t.Errorf("SliceIndex(%s, %g): %v", tt.axis, tt.mm, err)
			continue
		}
		if got != tt.want {
			t.Errorf("SliceIndex(%s, %g) = %d, want %d", tt.axis, tt.mm, got, tt.want)
		}
	}
}

func TestPlaneExtent(t *testing.T) {
	viewer := NewViewer(testComposite(models.MNI152Affine2mm))

	xmin, ymin, xmax, ymax, err := viewer.PlaneExtent("z")
	if err != nil {
		t.Fatalf("PlaneExtent failed: %v", err)
	}
	// Six voxels of 2 mm starting at -90 cover [-91, -79]
	if xmin != -91 || xmax != -79 {
		t.Errorf("Expected x extent [-91, -79], got [%g, %g]", xmin, xmax)
	}
	if ymin != -127 || ymax != -117 {
		t.Errorf("Expected y extent [-127, -117], got [%g, %g]", ymin, ymax)
	}
}
