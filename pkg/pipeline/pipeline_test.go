package pipeline

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brainmap/internal/models"
	"brainmap/pkg/config"
	"brainmap/pkg/regions"
	"brainmap/pkg/render"
)

// testConfig shrinks the figure so tests render quickly
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Processing.NumCores = 2
	cfg.Render.WidthInches = 6
	cfg.Render.HeightInches = 2.5
	cfg.Render.DPI = 40
	cfg.Render.Upscale = 1
	return cfg
}

// testTemplate builds an ellipsoidal "brain" on the 2 mm MNI grid
func testTemplate() *models.Volume {
	vol := models.NewVolume(91, 109, 91, models.MNI152Affine2mm)
	for z := 0; z < vol.Depth; z++ {
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				p := vol.Affine.ToWorld([3]float64{float64(x), float64(y), float64(z)})
				r := p[0]*p[0]/(70*70) + (p[1]+18)*(p[1]+18)/(100*100) + p[2]*p[2]/(75*75)
				if r <= 1 {
					vol.Data[vol.Index(x, y, z)] = 8000 * (1.2 - r)
				}
			}
		}
	}
	return vol
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(testConfig(), regions.Default(), testTemplate(), nil)
	require.NoError(t, err)
	return p
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"Empty", "", ErrInvalidRequest},
		{"Whitespace", "  \n", ErrInvalidRequest},
		{"Malformed", `{"experiences": [`, ErrInvalidRequest},
		{"Array", `[1, 2]`, ErrInvalidRequest},
		{"WrongType", `{"experiences": [{"intensity": "high"}]}`, ErrInvalidRequest},
		{"MissingExperiences", `{}`, ErrNoExperiences},
		{"EmptyExperiences", `{"experiences": []}`, ErrNoExperiences},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tt.input))
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}

	req, err := ParseRequest([]byte(`{"experiences": [{"type": "learning", "intensity": 3, "brain_regions": ["hippocampus"]}]}`))
	require.NoError(t, err)
	require.Len(t, req.Experiences, 1)
	assert.Equal(t, "learning", req.Experiences[0].Type)
	assert.Equal(t, 3.0, req.Experiences[0].Intensity)
	assert.Equal(t, []string{"hippocampus"}, req.Experiences[0].BrainRegions)
}

func TestCheckRegions(t *testing.T) {
	table := regions.Default()
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"Known", `{"experiences": [{"intensity": 2, "brain_regions": ["spleen", "Motor Cortex"]}]}`, nil},
		{"Alias", `{"experiences": [{"intensity": 2, "brain_regions": ["brain stem"]}]}`, nil},
		{"OnlyUnknown", `{"experiences": [{"intensity": 5, "brain_regions": ["spleen", "liver"]}]}`, ErrNoActivation},
		{"NoRegions", `{"experiences": [{"intensity": 5}]}`, ErrNoActivation},
		{"ZeroIntensity", `{"experiences": [{"intensity": 0, "brain_regions": ["insula"]}, {"intensity": -3, "brain_regions": ["thalamus"]}]}`, ErrNoActivation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.input))
			require.NoError(t, err)
			err = req.CheckRegions(table)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

// TestProcessHippocampus runs the full pipeline for one experience and checks
// the result contract
func TestProcessHippocampus(t *testing.T) {
	p := newTestPipeline(t)

	result, err := p.ProcessJSON(context.Background(),
		[]byte(`{"experiences": [{"type": "learning", "intensity": 5, "brain_regions": ["hippocampus"]}]}`))
	require.NoError(t, err)

	want := []RegionSummary{{
		Region:      "hippocampus",
		Intensity:   5,
		Description: "Memory Center",
		Details:     "Critical for memory formation and spatial navigation",
		Color:       "#FF8B94",
		Experiences: []string{"learning"},
	}}
	if diff := cmp.Diff(want, result.Regions); diff != "" {
		t.Errorf("unexpected regions (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5.0, result.MaxIntensity)

	require.True(t, strings.HasPrefix(result.Visualization, render.DataURIPrefix))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(result.Visualization, render.DataURIPrefix))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(raw))
	require.NoError(t, err)

	// The JSON contract has exactly these keys
	data, err := json.Marshal(result)
	require.NoError(t, err)
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.ElementsMatch(t, []string{"visualization", "regions", "max_intensity"}, keys(doc))
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestProcessErrors(t *testing.T) {
	p := newTestPipeline(t)

	_, err := p.Process(context.Background(), &Request{})
	assert.True(t, errors.Is(err, ErrNoExperiences), "got %v", err)

	_, err = p.Process(context.Background(), &Request{Experiences: []models.Experience{
		{Intensity: 4, BrainRegions: []string{"pineal_gland"}},
	}})
	assert.True(t, errors.Is(err, ErrNoActivation), "got %v", err)

	_, err = p.ProcessJSON(context.Background(), []byte(`not json`))
	assert.True(t, errors.Is(err, ErrInvalidRequest), "got %v", err)
}

// TestProcessOrderIndependent verifies repeated runs with reordered
// experiences give the same result
func TestProcessOrderIndependent(t *testing.T) {
	p := newTestPipeline(t)

	a := models.Experience{Type: "anxiety", Intensity: 2, BrainRegions: []string{"amygdala", "insula"}}
	b := models.Experience{Type: "stress", Intensity: 4, BrainRegions: []string{"amygdala"}}

	first, err := p.Process(context.Background(), &Request{Experiences: []models.Experience{a, b}})
	require.NoError(t, err)
	second, err := p.Process(context.Background(), &Request{Experiences: []models.Experience{b, a}})
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("result depends on experience order (-first +second):\n%s", diff)
	}

	require.Len(t, first.Regions, 2)
	assert.Equal(t, "amygdala", first.Regions[0].Region)
	assert.Equal(t, 4.0, first.Regions[0].Intensity)
	assert.Equal(t, 2.0, first.Regions[1].Intensity)
	assert.Equal(t, 4.0, first.MaxIntensity)
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(testConfig(), regions.Default(), nil, nil)
	assert.Error(t, err)

	_, err = New(testConfig(), regions.Default(), models.NewVolume(0, 0, 0, models.MNI152Affine2mm), nil)
	assert.Error(t, err)

	_, err = New(testConfig(), regions.Default(), models.NewVolume(2, 2, 2, models.Affine{}), nil)
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Processing.SigmaMM = -1
	_, err = New(cfg, regions.Default(), testTemplate(), nil)
	assert.Error(t, err)
}

func TestNewKeepsTemplate(t *testing.T) {
	tpl := testTemplate()
	before := append([]float64(nil), tpl.Data...)

	_, err := New(testConfig(), regions.Default(), tpl, nil)
	require.NoError(t, err)
	assert.Equal(t, before, tpl.Data)
}
