package diagram

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strconv"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	margin  = 56.0
	samples = 400
)

var (
	colorAxis  = color.NRGBA{R: 0x55, G: 0x55, B: 0x55, A: 0xff}
	colorGrid  = color.NRGBA{R: 0xe3, G: 0xe3, B: 0xe3, A: 0xff}
	colorPlot  = color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	colorFill  = color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0x40}
	colorLabel = color.Black
)

// Renderer draws Specs onto a fixed-size canvas.
type Renderer struct {
	width, height int
	font          *truetype.Font
}

// NewRenderer parses the embedded Go font once.
func NewRenderer(width, height int) (*Renderer, error) {
	if width < 2*int(margin)+10 || height < 2*int(margin)+10 {
		return nil, fmt.Errorf("canvas %dx%d is too small", width, height)
	}
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return &Renderer{width: width, height: height, font: f}, nil
}

// face builds a fresh face per render; truetype faces cache glyphs and are
// not safe for concurrent use.
func (r *Renderer) face(size float64) font.Face {
	return truetype.NewFace(r.font, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
}

// Render draws spec and returns PNG bytes.
func (r *Renderer) Render(spec Spec) ([]byte, error) {
	spec = spec.WithDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	dc := gg.NewContext(r.width, r.height)
	dc.SetColor(color.White)
	dc.Clear()

	dc.SetFontFace(r.face(20))
	dc.SetColor(colorLabel)
	dc.DrawStringAnchored(spec.Title, float64(r.width)/2, margin/2, 0.5, 0.5)
	dc.SetFontFace(r.face(12))

	var err error
	switch spec.Kind {
	case KindFunction:
		err = r.drawFunction(dc, spec)
	case KindGeometry:
		r.drawGeometry(dc, spec)
	case KindBarChart:
		r.drawBars(dc, spec)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// viewport maps data coordinates into the plot area.
type viewport struct {
	x0, x1, y0, y1 float64
	left, top      float64
	w, h           float64
}

func (r *Renderer) viewport(x0, x1, y0, y1 float64) viewport {
	return viewport{
		x0: x0, x1: x1, y0: y0, y1: y1,
		left: margin, top: margin,
		w: float64(r.width) - 2*margin,
		h: float64(r.height) - 2*margin,
	}
}

func (v viewport) px(x float64) float64 { return v.left + (x-v.x0)/(v.x1-v.x0)*v.w }
func (v viewport) py(y float64) float64 { return v.top + v.h - (y-v.y0)/(v.y1-v.y0)*v.h }

// square widens the shorter data range so one unit has the same length on
// both axes.
func (v viewport) square() viewport {
	sx := (v.x1 - v.x0) / v.w
	sy := (v.y1 - v.y0) / v.h
	if sx > sy {
		extra := (sx*v.h - (v.y1 - v.y0)) / 2
		v.y0, v.y1 = v.y0-extra, v.y1+extra
	} else {
		extra := (sy*v.w - (v.x1 - v.x0)) / 2
		v.x0, v.x1 = v.x0-extra, v.x1+extra
	}
	return v
}

func (r *Renderer) drawAxes(dc *gg.Context, v viewport) {
	dc.SetLineWidth(1)
	dc.SetColor(colorGrid)
	dc.DrawRectangle(v.left, v.top, v.w, v.h)
	dc.Stroke()

	dc.SetColor(colorAxis)
	if v.y0 <= 0 && v.y1 >= 0 {
		dc.DrawLine(v.left, v.py(0), v.left+v.w, v.py(0))
		dc.Stroke()
	}
	if v.x0 <= 0 && v.x1 >= 0 {
		dc.DrawLine(v.px(0), v.top, v.px(0), v.top+v.h)
		dc.Stroke()
	}
	dc.DrawStringAnchored(formatNum(v.x0), v.left, v.top+v.h+14, 0, 0.5)
	dc.DrawStringAnchored(formatNum(v.x1), v.left+v.w, v.top+v.h+14, 1, 0.5)
	dc.DrawStringAnchored(formatNum(v.y1), v.left-6, v.top, 1, 0.5)
	dc.DrawStringAnchored(formatNum(v.y0), v.left-6, v.top+v.h, 1, 0.5)
}

func (r *Renderer) drawFunction(dc *gg.Context, spec Spec) error {
	f, err := Compile(spec.Expression)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	xs := make([]float64, samples+1)
	ys := make([]float64, samples+1)
	yMin, yMax := math.Inf(1), math.Inf(-1)
	step := (spec.XMax - spec.XMin) / samples
	for i := range xs {
		x := spec.XMin + float64(i)*step
		y := f(x)
		xs[i], ys[i] = x, y
		if finite(y) {
			yMin = math.Min(yMin, y)
			yMax = math.Max(yMax, y)
		}
	}
	if math.IsInf(yMin, 1) {
		return fmt.Errorf("%w: %q is undefined on [%g, %g]", ErrInvalidSpec, spec.Expression, spec.XMin, spec.XMax)
	}
	if yMax-yMin < 1e-9 {
		yMin, yMax = yMin-1, yMax+1
	}
	pad := (yMax - yMin) * 0.05
	v := r.viewport(spec.XMin, spec.XMax, yMin-pad, yMax+pad)
	r.drawAxes(dc, v)

	dc.SetColor(colorPlot)
	dc.SetLineWidth(2)
	pen := false
	for i := range xs {
		if !finite(ys[i]) {
			pen = false
			continue
		}
		if pen {
			dc.LineTo(v.px(xs[i]), v.py(ys[i]))
		} else {
			dc.MoveTo(v.px(xs[i]), v.py(ys[i]))
			pen = true
		}
	}
	dc.Stroke()
	return nil
}

func (r *Renderer) drawGeometry(dc *gg.Context, spec Spec) {
	var pts []Point
	switch spec.Shape {
	case ShapeTriangle:
		pts = spec.Points
	case ShapeRectangle, ShapeSquare:
		pts = []Point{{0, 0}, {spec.Width, 0}, {spec.Width, spec.Height}, {0, spec.Height}}
	case ShapeCircle:
		v := r.viewport(-spec.Radius*1.2, spec.Radius*1.2, -spec.Radius*1.2, spec.Radius*1.2).square()
		r.drawAxes(dc, v)
		rpx := v.px(spec.Radius) - v.px(0)
		dc.DrawCircle(v.px(0), v.py(0), rpx)
		dc.SetColor(colorFill)
		dc.FillPreserve()
		dc.SetColor(colorPlot)
		dc.SetLineWidth(2)
		dc.Stroke()
		dc.SetColor(colorLabel)
		dc.DrawStringAnchored("r = "+formatNum(spec.Radius), v.px(spec.Radius/2), v.py(0)-10, 0.5, 0.5)
		return
	}

	x0, x1, y0, y1 := bounds(pts)
	padX, padY := (x1-x0)*0.15+0.5, (y1-y0)*0.15+0.5
	v := r.viewport(x0-padX, x1+padX, y0-padY, y1+padY).square()
	r.drawAxes(dc, v)

	for i, p := range pts {
		if i == 0 {
			dc.MoveTo(v.px(p.X), v.py(p.Y))
		} else {
			dc.LineTo(v.px(p.X), v.py(p.Y))
		}
	}
	dc.ClosePath()
	dc.SetColor(colorFill)
	dc.FillPreserve()
	dc.SetColor(colorPlot)
	dc.SetLineWidth(2)
	dc.Stroke()

	dc.SetColor(colorLabel)
	for _, p := range pts {
		dc.DrawStringAnchored(fmt.Sprintf("(%s, %s)", formatNum(p.X), formatNum(p.Y)), v.px(p.X), v.py(p.Y)-10, 0.5, 0.5)
	}
}

func (r *Renderer) drawBars(dc *gg.Context, spec Spec) {
	yMin, yMax := 0.0, 0.0
	for _, val := range spec.Values {
		yMin = math.Min(yMin, val)
		yMax = math.Max(yMax, val)
	}
	if yMax-yMin < 1e-9 {
		yMax = yMin + 1
	}
	n := float64(len(spec.Values))
	v := r.viewport(0, n, yMin, yMax*1.1)
	r.drawAxes(dc, v)

	for i, val := range spec.Values {
		left := v.px(float64(i) + 0.15)
		right := v.px(float64(i) + 0.85)
		top, bottom := v.py(math.Max(val, 0)), v.py(math.Min(val, 0))
		dc.DrawRectangle(left, top, right-left, bottom-top)
		dc.SetColor(colorPlot)
		dc.Fill()

		dc.SetColor(colorLabel)
		mid := (left + right) / 2
		dc.DrawStringAnchored(spec.Labels[i], mid, v.top+v.h+28, 0.5, 0.5)
		dc.DrawStringAnchored(formatNum(val), mid, top-8, 0.5, 0.5)
	}
}

func bounds(pts []Point) (x0, x1, y0, y1 float64) {
	x0, y0 = math.Inf(1), math.Inf(1)
	x1, y1 = math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		x0, x1 = math.Min(x0, p.X), math.Max(x1, p.X)
		y0, y1 = math.Min(y0, p.Y), math.Max(y1, p.Y)
	}
	return
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func formatNum(f float64) string { return strconv.FormatFloat(f, 'g', 4, 64) }
