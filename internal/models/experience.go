package models

// MaxIntensity is the top of the intensity scale used by callers.
const MaxIntensity = 5.0

// Experience is one reported experience and the brain regions it engages
type Experience struct {
	// Type is a free-form label such as "anxiety" or "learning"
	Type string `json:"type,omitempty"`

	// Intensity is expected in [0, MaxIntensity]
	Intensity float64 `json:"intensity"`

	// BrainRegions lists region names from the region table
	BrainRegions []string `json:"brain_regions"`
}

// ClampedIntensity returns the intensity limited to [0, MaxIntensity].
func (e Experience) ClampedIntensity() float64 {
	switch {
	case e.Intensity < 0:
		return 0
	case e.Intensity > MaxIntensity:
		return MaxIntensity
	default:
		return e.Intensity
	}
}
