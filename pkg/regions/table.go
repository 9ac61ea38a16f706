// Package regions holds the static table of brain regions that experiences
// can activate: their MNI coordinates, display colors and legend text.
package regions

import (
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"
)

// Coord is a point in MNI space, in millimetres.
type Coord [3]int

// Region describes one named brain region
type Region struct {
	// Name is the lookup key, e.g. "hippocampus"
	Name string `json:"name"`

	// Label is the short text shown in the legend
	Label string `json:"label"`

	// Description explains what the region does
	Description string `json:"description"`

	// Color is the display color as #RRGGBB
	Color string `json:"color"`

	// Coords are the blob centres painted for this region
	Coords []Coord `json:"coords"`
}

// RGB returns the region color as channel weights in [0, 1].
func (r Region) RGB() ([3]float64, error) {
	c, err := ParseHex(r.Color)
	if err != nil {
		return [3]float64{}, fmt.Errorf("region %s: %w", r.Name, err)
	}
	return [3]float64{float64(c.R) / 255, float64(c.G) / 255, float64(c.B) / 255}, nil
}

// ParseHex parses a #RRGGBB color string.
func ParseHex(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}

// Table is an immutable, ordered set of regions. It is safe for concurrent
// reads.
type Table struct {
	order   []string
	regions map[string]Region
	aliases map[string]string
}

// NewTable builds a table from regions, keeping their order. Aliases map
// alternate spellings onto region names.
func NewTable(regions []Region, aliases map[string]string) (*Table, error) {
	t := &Table{
		regions: make(map[string]Region, len(regions)),
		aliases: make(map[string]string, len(aliases)),
	}
	for _, r := range regions {
		key := Normalize(r.Name)
		if key == "" {
			return nil, fmt.Errorf("region with empty name")
		}
		if _, dup := t.regions[key]; dup {
			return nil, fmt.Errorf("duplicate region %q", key)
		}
		if len(r.Coords) == 0 {
			return nil, fmt.Errorf("region %q has no coordinates", key)
		}
		if _, err := ParseHex(r.Color); err != nil {
			return nil, fmt.Errorf("region %q: %w", key, err)
		}
		r.Name = key
		r.Coords = append([]Coord(nil), r.Coords...)
		t.regions[key] = r
		t.order = append(t.order, key)
	}
	for alias, target := range aliases {
		target = Normalize(target)
		if _, ok := t.regions[target]; !ok {
			return nil, fmt.Errorf("alias %q points at unknown region %q", alias, target)
		}
		t.aliases[Normalize(alias)] = target
	}
	return t, nil
}

// Normalize folds a user-supplied region name to table form.
func Normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	return n
}

// Resolve maps a user-supplied name (or alias) to its canonical region name.
func (t *Table) Resolve(name string) (string, bool) {
	key := Normalize(name)
	if _, ok := t.regions[key]; ok {
		return key, true
	}
	if target, ok := t.aliases[key]; ok {
		return target, true
	}
	return "", false
}

// Lookup returns the region for a name or alias.
func (t *Table) Lookup(name string) (Region, bool) {
	key, ok := t.Resolve(name)
	if !ok {
		return Region{}, false
	}
	r := t.regions[key]
	r.Coords = append([]Coord(nil), r.Coords...)
	return r, true
}

// Names returns region names in table order.
func (t *Table) Names() []string {
	return append([]string(nil), t.order...)
}

// Regions returns all regions in table order.
func (t *Table) Regions() []Region {
	out := make([]Region, 0, len(t.order))
	for _, name := range t.order {
		r, _ := t.Lookup(name)
		out = append(out, r)
	}
	return out
}

// Aliases returns the alias map sorted by alias.
func (t *Table) Aliases() [][2]string {
	out := make([][2]string, 0, len(t.aliases))
	for a, n := range t.aliases {
		out = append(out, [2]string{a, n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}
