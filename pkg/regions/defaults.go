package regions

// defaultRegions lists the regions painted by brainmap. Coordinates are MNI
// millimetres; most regions carry a mirrored left/right pair.
var defaultRegions = []Region{
	{
		Name:        "prefrontal_cortex",
		Label:       "Front of Brain (Planning & Emotions)",
		Description: "Responsible for decision-making, planning, and emotional regulation",
		Color:       "#FF6B6B",
		Coords: []Coord{
			{40, 30, 20}, {-40, 30, 20},
			{35, 35, 15}, {-35, 35, 15},
			{45, 25, 25}, {-45, 25, 25},
		},
	},
	{
		Name:        "temporal_lobe",
		Label:       "Side of Brain (Social & Memory)",
		Description: "Processes auditory information and language",
		Color:       "#4ECDC4",
		Coords: []Coord{
			{-50, -20, -10}, {50, -20, -10},
			{-45, -25, -5}, {45, -25, -5},
			{-55, -15, -15}, {55, -15, -15},
		},
	},
	{
		Name:        "parietal_lobe",
		Label:       "Top Back (Sensory & Focus)",
		Description: "Processes sensory information and spatial awareness",
		Color:       "#45B7D1",
		Coords: []Coord{
			{30, -50, 40}, {-30, -50, 40},
			{35, -45, 35}, {-35, -45, 35},
			{25, -55, 45}, {-25, -55, 45},
		},
	},
	{
		Name:        "occipital_lobe",
		Label:       "Back of Brain (Vision)",
		Description: "Processes visual information",
		Color:       "#96CEB4",
		Coords: []Coord{
			{0, -80, 20},
			{10, -75, 25}, {-10, -75, 25},
			{0, -85, 15},
		},
	},
	{
		Name:        "amygdala",
		Label:       "Emotion Center",
		Description: "Involved in processing emotions, particularly fear and anxiety",
		Color:       "#FFD93D",
		Coords: []Coord{
			{-20, -10, -20}, {20, -10, -20},
			{-25, -5, -25}, {25, -5, -25},
			{-15, -15, -15}, {15, -15, -15},
		},
	},
	{
		Name:        "hippocampus",
		Label:       "Memory Center",
		Description: "Critical for memory formation and spatial navigation",
		Color:       "#FF8B94",
		Coords: []Coord{
			{-30, -20, -20}, {30, -20, -20},
			{-35, -15, -25}, {35, -15, -25},
			{-25, -25, -15}, {25, -25, -15},
		},
	},
	{
		Name:        "cerebellum",
		Label:       "Balance & Coordination",
		Description: "Essential for balance, coordination, and motor learning",
		Color:       "#6C5B7B",
		Coords: []Coord{
			{0, -50, -30},
			{15, -45, -35}, {-15, -45, -35},
			{0, -55, -25},
		},
	},
	{
		Name:        "brainstem",
		Label:       "Basic Functions",
		Description: "Controls vital functions like breathing and heart rate",
		Color:       "#C06C84",
		Coords: []Coord{
			{0, -30, -40},
			{5, -25, -45}, {-5, -25, -45},
			{0, -35, -35},
		},
	},
	{
		Name:        "thalamus",
		Label:       "Sensory Relay",
		Description: "Acts as a relay station for sensory information",
		Color:       "#F8B195",
		Coords: []Coord{
			{0, -20, 0},
			{5, -15, 5}, {-5, -15, 5},
			{0, -25, -5},
		},
	},
	{
		Name:        "hypothalamus",
		Label:       "Hunger & Basic Needs",
		Description: "Controls basic bodily functions and hormone regulation",
		Color:       "#355C7D",
		Coords: []Coord{
			{0, -10, -10},
			{5, -5, -15}, {-5, -5, -15},
			{0, -15, -5},
		},
	},
	{
		Name:        "insula",
		Label:       "Taste & Internal Awareness",
		Description: "Involved in emotional awareness and interoception",
		Color:       "#FFA07A",
		Coords: []Coord{
			{-35, 0, 0}, {35, 0, 0},
			{-40, 5, 5}, {40, 5, 5},
			{-30, -5, -5}, {30, -5, -5},
		},
	},
	{
		Name:        "motor_cortex",
		Label:       "Movement Control",
		Description: "Controls voluntary movement and coordination",
		Color:       "#98FB98",
		Coords: []Coord{
			{30, -20, 50}, {-30, -20, 50},
			{35, -15, 45}, {-35, -15, 45},
			{25, -25, 55}, {-25, -25, 55},
		},
	},
}

var defaultAliases = map[string]string{
	"brain_stem":           "brainstem",
	"frontal_lobe":         "prefrontal_cortex",
	"visual_cortex":        "occipital_lobe",
	"somatosensory_cortex": "parietal_lobe",
}

// Default returns the built-in region table.
func Default() *Table {
	t, err := NewTable(defaultRegions, defaultAliases)
	if err != nil {
		panic("regions: invalid built-in table: " + err.Error())
	}
	return t
}
