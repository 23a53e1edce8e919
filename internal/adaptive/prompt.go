package adaptive

import (
	"fmt"
	"strings"
)

// LearningStyle mirrors the profile's preferred learning style.
type LearningStyle string

// ParseLearningStyle reports whether s is a known learning style.
func ParseLearningStyle(s string) (LearningStyle, bool) {
	switch l := LearningStyle(s); l {
	case StyleVisual, StyleAuditory, StyleText, StyleMixed:
		return l, true
	}
	return "", false
}

const (
	StyleVisual   LearningStyle = "visual"
	StyleAuditory LearningStyle = "auditory"
	StyleText     LearningStyle = "text"
	StyleMixed    LearningStyle = "mixed"
)

// PromptInput carries everything the system prompt depends on. The student's
// name is deliberately absent: answers are shared through the cache.
type PromptInput struct {
	Grade         int
	Tier          Tier
	Subject       Subject
	LearningStyle LearningStyle
}

// BuildSystemPrompt assembles the grade- and tier-aware teaching instructions.
func BuildSystemPrompt(in PromptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a friendly and expert NCERT tutor helping a Class %d student.\n\n", in.Grade)

	fmt.Fprintf(&b, "Your teaching style for Class %d:\n", in.Grade)
	switch {
	case in.Grade <= 6:
		b.WriteString(`- Use fun stories, games and simple analogies to explain concepts
- Make learning feel like an adventure or a puzzle
- Break concepts into tiny, digestible pieces
- Relate everything to things the student sees in daily life
- For math, use real objects such as toys or fruits
- Avoid technical jargon completely
`)
	case in.Grade <= 8:
		b.WriteString(`- Give step-by-step guided solutions with clear examples
- Use practical real-world scenarios
- Show the "why" behind each step
- Describe simple diagrams when they help
- For math, show each calculation clearly
- For science, explain cause and effect
- Encourage critical thinking
`)
	default:
		b.WriteString(`- Give exam-oriented, detailed explanations
- Structure solutions like an answer key
- Show formula usage and derivations
- Explain which steps earn marks
- Use standard NCERT terminology and notation
- Highlight concepts that frequently appear in exams
`)
	}

	switch in.Tier {
	case TierFoundational:
		b.WriteString("\nIMPORTANT: This student is struggling. Use the simplest possible explanation and break it into even smaller steps.\n")
	case TierAdvanced:
		b.WriteString("\nThis student is doing well. You may include additional insights and more advanced concepts.\n")
	}

	switch in.Subject {
	case SubjectMathematics:
		b.WriteString("\nFor math problems: show all steps, formulas and calculations clearly.\n")
	case SubjectScience:
		b.WriteString("\nFor science: include definitions, examples and real-world applications.\n")
	case SubjectSocialStudies:
		b.WriteString("\nFor social studies: anchor events in time and place, and connect them to the present.\n")
	}

	switch in.LearningStyle {
	case StyleVisual:
		b.WriteString("\nThe student learns best visually: describe pictures, tables and diagrams.\n")
	case StyleAuditory:
		b.WriteString("\nThe student learns best by listening: write in a conversational, read-aloud friendly way.\n")
	case StyleText:
		b.WriteString("\nThe student prefers reading: use clear headings, short paragraphs and bullet points.\n")
	}

	b.WriteString(`
If the concept is complex, suggest NCERT chapters, educational videos or practice problems.

Remember to:
1. Be encouraging and positive
2. Ask if the student understood at the end
3. Offer to explain differently if needed`)
	return b.String()
}

// BuildUserPrompt wraps the question with retrieved textbook context, if any.
func BuildUserPrompt(query, context string, grade int) string {
	if strings.TrimSpace(context) == "" {
		return fmt.Sprintf("Student's question: %s\n\nPlease answer in a way suitable for a Class %d student.", query, grade)
	}
	return fmt.Sprintf(`Use the following NCERT textbook content to answer the student's question.

Context:
%s

Student's question: %s

Answer using the context where it helps and keep it suitable for a Class %d student.`, context, query, grade)
}

// ExamMarks is the suggested marks shown on exam-style answers.
const ExamMarks = 5

// FormatExamStyle adds the exam scaffold for classes 9 and 10 in mathematics
// and science. Other answers are returned unchanged.
func FormatExamStyle(content string, grade int, subject Subject, marks int) string {
	if grade < 9 || (subject != SubjectMathematics && subject != SubjectScience) {
		return content
	}
	return fmt.Sprintf(`**Answer:** (Suggested marks: %d)

%s

---
**Note:** In your exam, remember to:
- Write clear headings and subheadings
- Show all steps and formulas
- Draw diagrams if asked
- Write definitions exactly as in NCERT
- Check your answer once completed`, marks, strings.TrimSpace(content))
}
