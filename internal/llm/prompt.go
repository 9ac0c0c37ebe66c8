package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

func clipText(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 || len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// Shape is the response layout requested from the model.
type Shape int

const (
	ShapeGeneric Shape = iota
	ShapeSummary
	ShapeConcept
	ShapeQuiz
)

func (s Shape) String() string {
	switch s {
	case ShapeSummary:
		return "summary"
	case ShapeConcept:
		return "concept"
	case ShapeQuiz:
		return "quiz"
	default:
		return "generic"
	}
}

// Keyword families in precedence order.
var shapeKeywords = []struct {
	shape    Shape
	keywords []string
}{
	{ShapeSummary, []string{"summar", "recap", "overview", "tl;dr", "tldr", "main points", "key points", "key takeaways"}},
	{ShapeConcept, []string{"explain", "what is", "what are", "what does", "how does", "how do", "concept", "define", "definition", "meaning of", "difference between", "why does", "why is"}},
	{ShapeQuiz, []string{"quiz", "test me", "practice", "exercise", "flashcard", "question me", "check my understanding", "mcq"}},
}

// Classify maps a user question to a response shape.
func Classify(text string) Shape {
	lower := strings.ToLower(whitespaceRe.ReplaceAllString(text, " "))
	for _, family := range shapeKeywords {
		for _, kw := range family.keywords {
			if strings.Contains(lower, kw) {
				return family.shape
			}
		}
	}
	return ShapeGeneric
}

// Template is the advisory layout the model is asked to follow.
type Template struct {
	Shape       Shape
	Instruction string
	Headings    []string
}

var templates = map[Shape]Template{
	ShapeSummary: {
		Shape:       ShapeSummary,
		Instruction: "Summarize the lecture for a student reviewing it.",
		Headings:    []string{"Overview", "Key Points", "Takeaways"},
	},
	ShapeConcept: {
		Shape:       ShapeConcept,
		Instruction: "Explain the concept clearly, starting from intuition before detail.",
		Headings:    []string{"Definition", "How It Works", "Example", "Common Pitfalls"},
	},
	ShapeQuiz: {
		Shape:       ShapeQuiz,
		Instruction: "Write 3 to 5 practice questions grounded in the lecture, then give the answers separately.",
		Headings:    []string{"Questions", "Answers", "Explanations"},
	},
	ShapeGeneric: {
		Shape:       ShapeGeneric,
		Instruction: "Answer the question directly and concisely.",
		Headings:    []string{"Answer", "Details"},
	},
}

// TemplateFor returns the template for shape; unknown shapes get the generic one.
func TemplateFor(shape Shape) Template {
	if tpl, ok := templates[shape]; ok {
		return tpl
	}
	return templates[ShapeGeneric]
}

// LectureContext is the lecture metadata a prompt is grounded on.
type LectureContext struct {
	Title       string
	Description string
	Summary     string
	Content     string
}

// BuildLectureContext renders the lecture metadata block. Long content is
// reduced to the sentences that mention the question's keywords, then clipped.
func BuildLectureContext(lc LectureContext, question string) string {
	var b strings.Builder
	title := strings.TrimSpace(lc.Title)
	if title == "" {
		title = "the current lecture"
	}
	b.WriteString("Lecture title: ")
	b.WriteString(title)
	b.WriteString("\n")
	if desc := clipText(lc.Description, maxDescriptionChars); desc != "" {
		b.WriteString("\nDescription:\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}
	if summary := clipText(lc.Summary, maxSummaryChars); summary != "" {
		b.WriteString("\nSummary:\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}
	if excerpt := extractQuestionContext(lc.Content, question, maxContentExcerptChars); excerpt != "" {
		b.WriteString("\nContent excerpt:\n")
		b.WriteString(excerpt)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

// BuildChatMessages assembles the system and user turns for one question.
func BuildChatMessages(lc LectureContext, question string) []Message {
	tpl := TemplateFor(Classify(question))
	var sys strings.Builder
	sys.WriteString("You are a patient teaching assistant embedded in a course player. ")
	sys.WriteString("Ground every answer in the lecture material below; say so when it does not cover the question.\n\n")
	sys.WriteString(BuildLectureContext(lc, question))
	sys.WriteString("\n\n")
	sys.WriteString(tpl.Instruction)
	sys.WriteString("\nUse these markdown section headings: ")
	for i, h := range tpl.Headings {
		if i > 0 {
			sys.WriteString(", ")
		}
		sys.WriteString("## ")
		sys.WriteString(h)
	}
	return []Message{
		{Role: RoleSystem, Content: sys.String()},
		{Role: RoleUser, Content: strings.TrimSpace(question)},
	}
}

// QuickQuestion is a preset question offered next to the player.
type QuickQuestion struct {
	Question string `json:"question"`
	Category string `json:"category"`
}

const maxQuickQuestions = 4

// DefaultQuickQuestions is the fallback set used when generation fails.
func DefaultQuickQuestions() []QuickQuestion {
	return []QuickQuestion{
		{Question: "Can you summarize the key points of this lecture?", Category: "summary"},
		{Question: "What are the main concepts I should understand?", Category: "concept"},
		{Question: "Can you give me a practical example?", Category: "application"},
		{Question: "Quiz me on this lecture.", Category: "quiz"},
	}
}

// BuildQuickQuestionsMessages asks for a small JSON array of questions.
func BuildQuickQuestionsMessages(title, summary string) []Message {
	if strings.TrimSpace(title) == "" {
		title = "the lecture"
	}
	prompt := fmt.Sprintf(
		"Suggest %d short questions a student might ask about %q based on this summary.\n"+
			"Categories: summary|concept|application|quiz.\n"+
			"Return ONLY JSON that matches: [{\"question\":\"\",\"category\":\"\"}]\n\nSummary:\n%s",
		maxQuickQuestions, title, clipText(summary, maxQuickSummaryChars),
	)
	return []Message{
		{Role: RoleSystem, Content: "You write concise study prompts and reply with JSON only."},
		{Role: RoleUser, Content: prompt},
	}
}

// ParseQuickQuestions tolerates prose around the JSON payload and a wrapper
// object. At most four questions are kept.
func ParseQuickQuestions(raw string) ([]QuickQuestion, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty quick question response")
	}

	candidates := []string{raw}
	if start := strings.Index(raw, "["); start >= 0 {
		if end := strings.LastIndex(raw, "]"); end > start {
			candidates = append(candidates, raw[start:end+1])
		}
	}
	for _, candidate := range candidates {
		var arr []QuickQuestion
		if err := json.Unmarshal([]byte(candidate), &arr); err == nil {
			if clean := sanitizeQuickQuestions(arr); len(clean) > 0 {
				return clean, nil
			}
		}
		var wrapper struct {
			Questions []QuickQuestion `json:"questions"`
		}
		if err := json.Unmarshal([]byte(candidate), &wrapper); err == nil {
			if clean := sanitizeQuickQuestions(wrapper.Questions); len(clean) > 0 {
				return clean, nil
			}
		}
	}
	return nil, fmt.Errorf("unable to parse quick question payload")
}

func sanitizeQuickQuestions(items []QuickQuestion) []QuickQuestion {
	result := make([]QuickQuestion, 0, len(items))
	for _, item := range items {
		q := QuickQuestion{
			Question: whitespaceRe.ReplaceAllString(strings.TrimSpace(item.Question), " "),
			Category: strings.ToLower(strings.TrimSpace(item.Category)),
		}
		if q.Question == "" {
			continue
		}
		if q.Category == "" {
			q.Category = "general"
		}
		result = append(result, q)
		if len(result) == maxQuickQuestions {
			break
		}
	}
	return result
}

func extractQuestionContext(content, question string, limit int) string {
	content = strings.TrimSpace(content)
	if content == "" {
		return ""
	}
	if len(content) <= limit {
		return content
	}
	keywords := questionKeywords(question)
	if len(keywords) == 0 {
		return clipText(content, limit)
	}

	var matches []string
	totalLen := 0
	for _, sentence := range roughSentenceSplit(content) {
		lower := strings.ToLower(sentence)
		for _, keyword := range keywords {
			if strings.Contains(lower, keyword) {
				matches = append(matches, sentence)
				totalLen += len(sentence)
				break
			}
		}
		if totalLen >= limit {
			break
		}
	}
	if len(matches) == 0 {
		return clipText(content, limit)
	}
	return clipText(strings.Join(matches, " "), limit)
}

var stopwords = map[string]struct{}{
	"what": {}, "why": {}, "how": {}, "is": {}, "the": {}, "a": {}, "an": {}, "of": {},
	"does": {}, "do": {}, "lecture": {}, "this": {}, "that": {}, "in": {}, "on": {},
	"for": {}, "are": {}, "be": {}, "can": {}, "you": {}, "me": {}, "and": {}, "explain": {},
}

func questionKeywords(question string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := map[string]struct{}{}
	var keywords []string
	for _, token := range tokens {
		if len(token) < 3 {
			continue
		}
		if _, skip := stopwords[token]; skip {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		keywords = append(keywords, token)
	}
	return keywords
}

func roughSentenceSplit(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			sentence := strings.TrimSpace(current.String())
			if sentence != "" {
				sentences = append(sentences, sentence)
			}
			current.Reset()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}
