package adaptive

import "strings"

// Subject is the coarse school subject a question belongs to.
type Subject string

const (
	SubjectMathematics   Subject = "mathematics"
	SubjectScience       Subject = "science"
	SubjectSocialStudies Subject = "social_studies"
	SubjectGeneral       Subject = "general"
)

var subjectKeywords = []struct {
	subject  Subject
	keywords []string
}{
	{SubjectMathematics, []string{"add", "subtract", "multiply", "divide", "equation", "solve", "calculate",
		"fraction", "percentage", "geometry", "algebra", "triangle", "area", "volume"}},
	{SubjectScience, []string{"experiment", "reaction", "chemical", "physics", "force", "energy",
		"cell", "biology", "organism", "atom", "molecule", "photosynthesis"}},
	{SubjectSocialStudies, []string{"history", "geography", "government", "democracy", "map", "river",
		"mountain", "civilization", "independence", "constitution"}},
}

// DetectSubject classifies a question by keyword, first match wins in the
// order mathematics, science, social studies.
func DetectSubject(query string) Subject {
	q := strings.ToLower(query)
	for _, s := range subjectKeywords {
		if containsAny(q, s.keywords) {
			return s.subject
		}
	}
	return SubjectGeneral
}

// ParseSubject accepts the subject names used by textbooks and the API.
func ParseSubject(s string) Subject {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "math", "maths", "mathematics":
		return SubjectMathematics
	case "science", "physics", "chemistry", "biology":
		return SubjectScience
	case "social", "social_studies", "social studies", "history", "geography", "civics":
		return SubjectSocialStudies
	}
	return SubjectGeneral
}

var complexKeywords = []string{"prove", "derive", "explain in detail", "why", "how does"}

// ResourcePolicy decides when external material is worth recommending.
type ResourcePolicy struct {
	RelevanceFloor    float64
	StruggleThreshold int64
}

// DefaultResourcePolicy recommends below 0.3 relevance or from two struggles on.
func DefaultResourcePolicy() ResourcePolicy {
	return ResourcePolicy{RelevanceFloor: 0.3, StruggleThreshold: 2}
}

// ShouldRecommend reports whether resources should accompany an answer.
func (p ResourcePolicy) ShouldRecommend(query string, relevance float64, struggleCount int64) bool {
	if relevance < p.RelevanceFloor {
		return true
	}
	if struggleCount >= p.StruggleThreshold {
		return true
	}
	return containsAny(strings.ToLower(query), complexKeywords)
}

// SuggestNextSteps returns follow-up prompts for the student.
func SuggestNextSteps(subject Subject) []string {
	switch subject {
	case SubjectMathematics:
		return []string{
			"Would you like to see a similar problem to practice?",
			"Shall I explain any specific step in more detail?",
			"Want to try solving a practice question on this topic?",
		}
	case SubjectScience:
		return []string{
			"Would you like to see a diagram for this concept?",
			"Shall I explain the real-world applications?",
			"Want to know common exam questions on this topic?",
		}
	}
	return []string{
		"Do you have any follow-up questions?",
		"Would you like more examples?",
		"Shall I recommend some videos to watch?",
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
