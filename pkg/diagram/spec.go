// Package diagram renders simple teaching diagrams (function graphs,
// geometric shapes and bar charts) to PNG.
package diagram

import (
	"errors"
	"fmt"
)

// Kind selects the renderer.
type Kind string

const (
	KindFunction Kind = "function_graph"
	KindGeometry Kind = "geometry"
	KindBarChart Kind = "bar_chart"
)

// Shapes supported by KindGeometry.
const (
	ShapeTriangle  = "triangle"
	ShapeCircle    = "circle"
	ShapeRectangle = "rectangle"
	ShapeSquare    = "square"
)

var ErrInvalidSpec = errors.New("invalid diagram spec")

// Point is a 2D coordinate in diagram units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Spec describes one diagram. Zero fields take the defaults of their kind.
type Spec struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title,omitempty"`

	// KindFunction
	Expression string  `json:"expression,omitempty"`
	XMin       float64 `json:"x_min,omitempty"`
	XMax       float64 `json:"x_max,omitempty"`

	// KindGeometry
	Shape  string  `json:"shape,omitempty"`
	Points []Point `json:"points,omitempty"`
	Radius float64 `json:"radius,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`

	// KindBarChart
	Labels []string  `json:"labels,omitempty"`
	Values []float64 `json:"values,omitempty"`
}

// WithDefaults fills unset fields.
func (s Spec) WithDefaults() Spec {
	switch s.Kind {
	case KindFunction:
		if s.Expression == "" {
			s.Expression = "x^2"
		}
		if s.XMin == 0 && s.XMax == 0 {
			s.XMin, s.XMax = -10, 10
		}
		if s.Title == "" {
			s.Title = "y = " + s.Expression
		}
	case KindGeometry:
		if s.Shape == "" {
			s.Shape = ShapeTriangle
		}
		switch s.Shape {
		case ShapeTriangle:
			if len(s.Points) == 0 {
				s.Points = []Point{{0, 0}, {4, 0}, {2, 3}}
			}
		case ShapeCircle:
			if s.Radius == 0 {
				s.Radius = 1
			}
		case ShapeRectangle:
			if s.Width == 0 {
				s.Width = 4
			}
			if s.Height == 0 {
				s.Height = 3
			}
		case ShapeSquare:
			if s.Width == 0 {
				s.Width = 3
			}
			s.Height = s.Width
		}
		if s.Title == "" {
			s.Title = "Geometric Shape"
		}
	case KindBarChart:
		if len(s.Labels) == 0 && len(s.Values) == 0 {
			s.Labels = []string{"A", "B", "C", "D"}
			s.Values = []float64{10, 20, 15, 25}
		}
		if s.Title == "" {
			s.Title = "Bar Chart"
		}
	}
	return s
}

// Validate checks a spec after defaults are applied.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindFunction:
		if s.XMin >= s.XMax {
			return fmt.Errorf("%w: x range [%g, %g]", ErrInvalidSpec, s.XMin, s.XMax)
		}
		if _, err := Compile(s.Expression); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSpec, err)
		}
	case KindGeometry:
		switch s.Shape {
		case ShapeTriangle:
			if len(s.Points) != 3 {
				return fmt.Errorf("%w: triangle needs 3 points", ErrInvalidSpec)
			}
		case ShapeCircle:
			if s.Radius <= 0 {
				return fmt.Errorf("%w: radius must be positive", ErrInvalidSpec)
			}
		case ShapeRectangle, ShapeSquare:
			if s.Width <= 0 || s.Height <= 0 {
				return fmt.Errorf("%w: sides must be positive", ErrInvalidSpec)
			}
		default:
			return fmt.Errorf("%w: unknown shape %q", ErrInvalidSpec, s.Shape)
		}
	case KindBarChart:
		if len(s.Labels) == 0 || len(s.Labels) != len(s.Values) {
			return fmt.Errorf("%w: %d labels for %d values", ErrInvalidSpec, len(s.Labels), len(s.Values))
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidSpec, s.Kind)
	}
	return nil
}
