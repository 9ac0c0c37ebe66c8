// Package summary turns free-form lecture summaries into a fixed structure.
package summary

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxItems         = 5
	minContentLen    = 3
	minMainTopicLen  = 10
	maxHeaderLen     = 40
	fallbackConcepts = 4
)

// Structured is the fixed-shape decomposition of a summary.
type Structured struct {
	MainTopic          string   `json:"mainTopic"`
	KeyConcepts        []string `json:"keyConcepts"`
	LearningObjectives []string `json:"learningObjectives"`
	ImportantDetails   []string `json:"importantDetails"`
	Conclusion         string   `json:"conclusion"`
}

// Empty reports whether nothing was extracted.
func (s Structured) Empty() bool {
	return s.MainTopic == "" && s.Conclusion == "" &&
		len(s.KeyConcepts) == 0 && len(s.LearningObjectives) == 0 && len(s.ImportantDetails) == 0
}

type section int

const (
	sectionNone section = iota
	sectionMainTopic
	sectionConcepts
	sectionObjectives
	sectionDetails
	sectionConclusion
)

// Header families in precedence order.
var headerFamilies = []struct {
	section  section
	keywords []string
}{
	{sectionMainTopic, []string{"main topic", "overview", "introduction"}},
	{sectionConcepts, []string{"key concept", "important concept"}},
	{sectionObjectives, []string{"learning objective", "what you will learn"}},
	{sectionDetails, []string{"important detail", "key point"}},
	{sectionConclusion, []string{"conclusion", "summary"}},
}

// Cleaning passes, applied in this order.
var cleaners = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`^#{1,6}\s*`), ""},
	{regexp.MustCompile(`^>\s*`), ""},
	{regexp.MustCompile(`^[-*+•]\s+`), ""},
	{regexp.MustCompile(`^\d+[.)]\s+`), ""},
	{regexp.MustCompile(`\*\*([^*]+)\*\*`), "$1"},
	{regexp.MustCompile(`__([^_]+)__`), "$1"},
	{regexp.MustCompile(`\*([^*]+)\*`), "$1"},
	{regexp.MustCompile(`(^|\s)_([^_]+)_($|\s|[.,;:!?])`), "$1$2$3"},
	{regexp.MustCompile("`+([^`]*)`+"), "$1"},
	{regexp.MustCompile(`\s+`), " "},
}

var (
	listItemRe = regexp.MustCompile(`^\s*([-*+•]|\d+[.)])\s+`)
	boldLeadRe = regexp.MustCompile(`^\s*([-*+•]\s+)?(\*\*|__)`)
)

// Format parses raw summary text. Output depends only on the input.
func Format(raw string) Structured {
	var (
		out         Structured
		cursor      = sectionNone
		mainSeen    bool
		firstLong   string
		allContent  []string
		conclusions []string
	)

	add := func(sec section, text string) {
		if utf8.RuneCountInString(text) < minContentLen {
			return
		}
		allContent = append(allContent, text)
		if firstLong == "" && utf8.RuneCountInString(text) >= minMainTopicLen {
			firstLong = text
		}
		switch sec {
		case sectionMainTopic:
			if !mainSeen {
				out.MainTopic = text
				mainSeen = true
			}
		case sectionConcepts:
			out.KeyConcepts = appendCapped(out.KeyConcepts, text)
		case sectionObjectives:
			out.LearningObjectives = appendCapped(out.LearningObjectives, text)
		case sectionDetails:
			out.ImportantDetails = appendCapped(out.ImportantDetails, text)
		case sectionConclusion:
			conclusions = append(conclusions, text)
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cleaned := Clean(line)
		if sec, rest, ok := matchHeader(line, cleaned); ok {
			cursor = sec
			if rest != "" {
				add(cursor, rest)
			}
			continue
		}
		add(cursor, cleaned)
	}

	if !mainSeen {
		out.MainTopic = firstLong
	}
	out.Conclusion = strings.Join(conclusions, " ")

	if len(out.KeyConcepts) == 0 && len(out.LearningObjectives) == 0 {
		sentences := splitSentences(strings.Join(allContent, " "))
		switch n := len(sentences); {
		case n == 1:
			out.KeyConcepts = sentences
		case n > 1:
			limit := n - 1
			if limit > fallbackConcepts {
				limit = fallbackConcepts
			}
			out.KeyConcepts = append([]string(nil), sentences[:limit]...)
			if out.Conclusion == "" {
				out.Conclusion = sentences[n-1]
			}
		}
	}
	return out
}

// matchHeader reports whether line is a section header. Header-like lines are
// markdown headings, bold leads, lines with a short "Label:" prefix, and short
// non-list lines that are not sentences. Text after the label is returned as
// rest.
func matchHeader(line, cleaned string) (section, string, bool) {
	label, rest := cleaned, ""
	hasLabel := false
	if idx := strings.Index(cleaned, ":"); idx >= 0 && idx <= maxHeaderLen {
		label, rest = cleaned[:idx], strings.TrimSpace(cleaned[idx+1:])
		hasLabel = true
	}
	headerLike := strings.HasPrefix(line, "#") ||
		boldLeadRe.MatchString(line) ||
		hasLabel ||
		(utf8.RuneCountInString(cleaned) <= maxHeaderLen && !listItemRe.MatchString(line) && !endsSentence(cleaned))
	if !headerLike || utf8.RuneCountInString(label) > maxHeaderLen {
		return sectionNone, "", false
	}
	lower := strings.ToLower(label)
	for _, family := range headerFamilies {
		for _, kw := range family.keywords {
			if strings.Contains(lower, kw) {
				return family.section, rest, true
			}
		}
	}
	return sectionNone, "", false
}

func endsSentence(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}

// Clean strips markdown syntax from one line.
func Clean(line string) string {
	out := strings.TrimSpace(line)
	for _, c := range cleaners {
		out = c.re.ReplaceAllString(out, c.repl)
	}
	return strings.TrimSpace(out)
}

func appendCapped(items []string, item string) []string {
	if len(items) >= maxItems {
		return items
	}
	return append(items, item)
}

func splitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var sentences []string
	var current strings.Builder
	flush := func() {
		s := strings.TrimSpace(current.String())
		current.Reset()
		if utf8.RuneCountInString(s) >= minContentLen {
			sentences = append(sentences, s)
		}
	}
	runes := []rune(text)
	for i, r := range runes {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || runes[i+1] == ' ') {
			flush()
		}
	}
	flush()
	return sentences
}
