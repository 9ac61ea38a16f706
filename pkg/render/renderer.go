// Package render draws the blended activation volume as a multi-panel PNG
// figure with a legend.
package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"strconv"

	"go.uber.org/zap"
	xdraw "golang.org/x/image/draw"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/text"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"brainmap/pkg/activation"
	"brainmap/pkg/config"
)

// DataURIPrefix starts every encoded figure.
const DataURIPrefix = "data:image/png;base64,"

// legendPadding separates legend rows.
const legendPadding = vg.Length(3)

// Params holds the figure layout.
type Params struct {
	WidthInches  float64
	HeightInches float64
	DPI          int

	// Upscale enlarges each voxel slice before drawing
	Upscale int

	// Title is drawn across the top of the figure
	Title string

	Views []config.View
}

// LegendEntry is one active region shown in the legend.
type LegendEntry struct {
	Label     string
	Color     color.Color
	Intensity float64
}

// Text returns the legend line, e.g. "Memory Center (4/5)".
func (e LegendEntry) Text() string {
	return fmt.Sprintf("%s (%s/5)", e.Label, strconv.FormatFloat(e.Intensity, 'f', -1, 64))
}

// Renderer draws composites into PNG figures.
type Renderer struct {
	params *Params
	logger *zap.Logger
}

// NewRenderer creates a renderer with the given layout.
func NewRenderer(params *Params, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{params: params, logger: logger}
}

// Render draws one panel per view plus a legend panel and returns PNG bytes.
func (r *Renderer) Render(composite *activation.Composite, legend []LegendEntry) ([]byte, error) {
	if len(r.params.Views) == 0 {
		return nil, fmt.Errorf("no views configured")
	}

	width := vg.Length(r.params.WidthInches) * vg.Inch
	height := vg.Length(r.params.HeightInches) * vg.Inch
	titleSize := vg.Points(16)
	titleHeight := titleSize * 2

	// Each panel gets an equal share of the width; the data range of every
	// slice is padded to that shape so voxels stay square.
	cols := len(r.params.Views) + 1
	panelAspect := float64(width) / float64(cols) / float64(height-titleHeight)

	viewer := NewViewer(composite)
	panels := make([]*plot.Plot, 0, cols)
	for _, view := range r.params.Views {
		p, err := r.viewPanel(viewer, view, panelAspect)
		if err != nil {
			return nil, fmt.Errorf("view %q: %w", view.Title, err)
		}
		panels = append(panels, p)
	}
	panels = append(panels, legendPanel(legend))

	canvas := vgimg.NewWith(vgimg.UseWH(width, height), vgimg.UseDPI(r.params.DPI))
	dc := draw.New(canvas)

	if r.params.Title != "" {
		sty := text.Style{
			Color:   color.Black,
			Font:    font.From(plot.DefaultFont, titleSize),
			XAlign:  draw.XCenter,
			YAlign:  draw.YTop,
			Handler: plot.DefaultTextHandler,
		}
		at := vg.Point{X: (dc.Min.X + dc.Max.X) / 2, Y: dc.Max.Y - titleSize/2}
		dc.FillText(sty, at, r.params.Title)
	}

	body := draw.Crop(dc, 0, 0, 0, -titleHeight)
	tiles := draw.Tiles{
		Rows: 1,
		Cols: cols,
		PadX: vg.Millimeter * 2,
	}
	grid := [][]*plot.Plot{panels}
	canvases := plot.Align(grid, tiles, body)
	for j, p := range panels {
		p.Draw(canvases[0][j])
	}

	var buf bytes.Buffer
	if _, err := (vgimg.PngCanvas{Canvas: canvas}).WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	r.logger.Debug("Rendered figure",
		zap.Int("panels", len(panels)),
		zap.Int("legend_entries", len(legend)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// viewPanel draws one slice as an image plot with hidden axes.
func (r *Renderer) viewPanel(viewer *Viewer, view config.View, aspect float64) (*plot.Plot, error) {
	idx, err := viewer.SliceIndex(view.Axis, view.PositionMM)
	if err != nil {
		return nil, err
	}
	slice, err := viewer.ExtractSlice(view.Axis, idx)
	if err != nil {
		return nil, err
	}
	xmin, ymin, xmax, ymax, err := viewer.PlaneExtent(view.Axis)
	if err != nil {
		return nil, err
	}

	p := plot.New()
	p.Title.Text = view.Title
	p.HideAxes()
	p.Add(plotter.NewImage(upscale(slice, r.params.Upscale), xmin, ymin, xmax, ymax))

	xmin, ymin, xmax, ymax = fitAspect(xmin, ymin, xmax, ymax, aspect)
	p.X.Min, p.X.Max = xmin, xmax
	p.Y.Min, p.Y.Max = ymin, ymax
	return p, nil
}

// upscale enlarges img by factor using Catmull-Rom resampling.
func upscale(img *image.RGBA, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

// fitAspect widens the shorter side of a data range so that its
// width/height ratio equals aspect, keeping it centred.
func fitAspect(xmin, ymin, xmax, ymax, aspect float64) (float64, float64, float64, float64) {
	w, h := xmax-xmin, ymax-ymin
	if w <= 0 || h <= 0 || aspect <= 0 {
		return xmin, ymin, xmax, ymax
	}
	if w/h < aspect {
		pad := (h*aspect - w) / 2
		return xmin - pad, ymin, xmax + pad, ymax
	}
	pad := (w/aspect - h) / 2
	return xmin, ymin - pad, xmax, ymax + pad
}

// swatch is a filled legend thumbnail.
type swatch struct {
	color color.Color
}

// Thumbnail implements plot.Thumbnailer.
func (s swatch) Thumbnail(c *draw.Canvas) {
	pts := []vg.Point{
		{X: c.Min.X, Y: c.Min.Y},
		{X: c.Min.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Max.Y},
		{X: c.Max.X, Y: c.Min.Y},
	}
	c.FillPolygon(s.color, c.ClipPolygonXY(pts))
	outline := draw.LineStyle{Color: color.Black, Width: vg.Points(0.5)}
	c.StrokeLines(outline, append(pts, pts[0]))
}

// legendPanel builds an empty plot whose legend lists the active regions.
func legendPanel(entries []LegendEntry) *plot.Plot {
	p := plot.New()
	p.HideAxes()
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1

	p.Legend.Left = true
	p.Legend.Top = true
	p.Legend.TextStyle.Font = font.From(plot.DefaultFont, vg.Points(11))
	p.Legend.ThumbnailWidth = vg.Points(14)
	// Keep consecutive rows from touching
	p.Legend.Padding = legendPadding
	for _, e := range entries {
		p.Legend.Add(e.Text(), swatch{color: e.Color})
	}
	return p
}

// DataURI base64-encodes PNG bytes into a data URI.
func DataURI(png []byte) string {
	return DataURIPrefix + base64.StdEncoding.EncodeToString(png)
}
