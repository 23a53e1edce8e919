package adaptive

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectSubject(t *testing.T) {
	assert.Equal(t, SubjectMathematics, DetectSubject("How do I solve this equation?"))
	assert.Equal(t, SubjectScience, DetectSubject("What is photosynthesis?"))
	assert.Equal(t, SubjectSocialStudies, DetectSubject("Tell me about the Indian Constitution"))
	assert.Equal(t, SubjectGeneral, DetectSubject("Write a poem"))
	// mathematics wins over science when both match
	assert.Equal(t, SubjectMathematics, DetectSubject("calculate the energy"))
}

func TestShouldRecommend(t *testing.T) {
	p := DefaultResourcePolicy()
	assert.True(t, p.ShouldRecommend("what is a cell", 0.1, 0))
	assert.True(t, p.ShouldRecommend("what is a cell", 0.9, 2))
	assert.True(t, p.ShouldRecommend("Why is the sky blue", 0.9, 0))
	assert.True(t, p.ShouldRecommend("prove the theorem", 0.9, 0))
	assert.False(t, p.ShouldRecommend("what is a cell", 0.9, 1))
}

func TestSuggestNextSteps(t *testing.T) {
	assert.Len(t, SuggestNextSteps(SubjectMathematics), 3)
	assert.Contains(t, SuggestNextSteps(SubjectScience)[0], "diagram")
	assert.Equal(t, SuggestNextSteps(SubjectGeneral), SuggestNextSteps(SubjectSocialStudies))
}

func TestBuildSystemPrompt(t *testing.T) {
	young := BuildSystemPrompt(PromptInput{Grade: 5, Tier: TierFoundational, Subject: SubjectMathematics, LearningStyle: StyleVisual})
	assert.Contains(t, young, "Class 5")
	assert.Contains(t, young, "fun stories")
	assert.Contains(t, young, "struggling")
	assert.Contains(t, young, "show all steps")
	assert.Contains(t, young, "visually")

	senior := BuildSystemPrompt(PromptInput{Grade: 10, Tier: TierAdvanced, Subject: SubjectScience, LearningStyle: StyleMixed})
	assert.Contains(t, senior, "exam-oriented")
	assert.Contains(t, senior, "doing well")
	assert.NotContains(t, senior, "struggling")
}

func TestBuildUserPrompt(t *testing.T) {
	with := BuildUserPrompt("What is a cell?", "A cell is the basic unit of life.", 7)
	assert.Contains(t, with, "Context:\nA cell is the basic unit of life.")
	assert.Contains(t, with, "Class 7")

	without := BuildUserPrompt("What is a cell?", "  ", 7)
	assert.NotContains(t, without, "Context:")
	assert.Contains(t, without, "What is a cell?")
}

func TestFormatExamStyle(t *testing.T) {
	assert.Equal(t, "answer", FormatExamStyle("answer", 8, SubjectMathematics, ExamMarks))
	assert.Equal(t, "answer", FormatExamStyle("answer", 10, SubjectSocialStudies, ExamMarks))

	out := FormatExamStyle("answer", 9, SubjectScience, ExamMarks)
	assert.True(t, strings.HasPrefix(out, "**Answer:** (Suggested marks: 5)"))
	assert.Contains(t, out, "\n\nanswer\n\n")
}

func TestDetectDiagramNeed(t *testing.T) {
	s := DetectDiagramNeed("Find the area of a circle", "")
	if assert.NotNil(t, s) {
		assert.Equal(t, "geometry", string(s.Kind))
		assert.Equal(t, "circle", s.Shape)
	}

	s = DetectDiagramNeed("Plot y = 2x + 3 please", "")
	if assert.NotNil(t, s) {
		assert.Equal(t, "function_graph", string(s.Kind))
		assert.Equal(t, "2x + 3", s.Expression)
	}

	s = DetectDiagramNeed("How does it change?", "The graph of y = x^2 is a parabola.")
	if assert.NotNil(t, s) {
		assert.Equal(t, "x^2", s.Expression)
	}

	s = DetectDiagramNeed("compare rainfall data", "")
	if assert.NotNil(t, s) {
		assert.Equal(t, "bar_chart", string(s.Kind))
	}

	assert.Nil(t, DetectDiagramNeed("Who was Ashoka?", "An emperor."))
}
