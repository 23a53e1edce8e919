package diagram

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	r, err := NewRenderer(640, 480)
	require.NoError(t, err)

	specs := []Spec{
		{Kind: KindFunction},
		{Kind: KindFunction, Expression: "1/x", XMin: -5, XMax: 5},
		{Kind: KindGeometry},
		{Kind: KindGeometry, Shape: ShapeCircle, Radius: 2},
		{Kind: KindGeometry, Shape: ShapeSquare},
		{Kind: KindBarChart, Labels: []string{"Rice", "Wheat"}, Values: []float64{12, -3}},
	}
	for _, s := range specs {
		t.Run(string(s.Kind)+"/"+s.Shape, func(t *testing.T) {
			out, err := r.Render(s)
			require.NoError(t, err)

			img, err := png.Decode(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, 640, img.Bounds().Dx())
			assert.Equal(t, 480, img.Bounds().Dy())
		})
	}
}

func TestRenderRejectsInvalidSpecs(t *testing.T) {
	r, err := NewRenderer(320, 240)
	require.NoError(t, err)

	for _, s := range []Spec{
		{Kind: "pie"},
		{Kind: KindFunction, Expression: "x +"},
		{Kind: KindFunction, Expression: "x", XMin: 3, XMax: 1},
		{Kind: KindFunction, Expression: "sqrt(x)", XMin: -5, XMax: -1},
		{Kind: KindGeometry, Shape: "hexagon"},
		{Kind: KindBarChart, Labels: []string{"a"}, Values: []float64{1, 2}},
	} {
		_, err := r.Render(s)
		assert.ErrorIs(t, err, ErrInvalidSpec, "%+v", s)
	}
}

func TestWithDefaults(t *testing.T) {
	s := Spec{Kind: KindGeometry}.WithDefaults()
	assert.Equal(t, ShapeTriangle, s.Shape)
	assert.Equal(t, []Point{{0, 0}, {4, 0}, {2, 3}}, s.Points)

	f := Spec{Kind: KindFunction}.WithDefaults()
	assert.Equal(t, "x^2", f.Expression)
	assert.Equal(t, -10.0, f.XMin)
	assert.Equal(t, 10.0, f.XMax)
}

func TestNewRendererRejectsTinyCanvas(t *testing.T) {
	_, err := NewRenderer(50, 50)
	assert.Error(t, err)
}
