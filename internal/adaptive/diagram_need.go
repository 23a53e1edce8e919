package adaptive

import (
	"regexp"
	"strings"

	"ncert-tutor-go/pkg/diagram"
)

var (
	geometryKeywords = []string{"triangle", "circle", "rectangle", "square", "angle", "shape", "polygon", "area", "perimeter"}
	graphKeywords    = []string{"graph", "plot", "function", "equation", "y = ", "f(x)"}
	dataKeywords     = []string{"chart", "data", "compare", "statistics"}

	equationPattern = regexp.MustCompile(`(?i)(?:y|f\(x\))\s*=\s*([0-9x+\-*/^(). ]+|[a-z]+\([^)]*\)[0-9x+\-*/^(). ]*)`)
)

// DetectDiagramNeed decides whether an answer would benefit from a picture
// and, if so, what to draw. Geometry and data cues come from the question
// only; graph cues may also come from the answer.
func DetectDiagramNeed(query, answer string) *diagram.Spec {
	q := strings.ToLower(query)
	a := strings.ToLower(answer)

	if containsAny(q, geometryKeywords) {
		shape := diagram.ShapeTriangle
		for _, s := range []string{diagram.ShapeCircle, diagram.ShapeRectangle, diagram.ShapeSquare} {
			if strings.Contains(q, s) {
				shape = s
				break
			}
		}
		return &diagram.Spec{Kind: diagram.KindGeometry, Shape: shape}
	}

	if containsAny(q, graphKeywords) || containsAny(a, graphKeywords) {
		spec := &diagram.Spec{Kind: diagram.KindFunction}
		if expr := extractEquation(q); expr != "" {
			spec.Expression = expr
		} else if expr := extractEquation(a); expr != "" {
			spec.Expression = expr
		}
		return spec
	}

	if containsAny(q, dataKeywords) {
		return &diagram.Spec{Kind: diagram.KindBarChart}
	}
	return nil
}

// extractEquation returns the first right-hand side of "y = ..." that
// compiles, or "".
func extractEquation(text string) string {
	for _, m := range equationPattern.FindAllStringSubmatch(text, -1) {
		expr := strings.TrimSpace(strings.TrimRight(m[1], ". "))
		if expr == "" {
			continue
		}
		if _, err := diagram.Compile(expr); err == nil {
			return expr
		}
	}
	return ""
}
