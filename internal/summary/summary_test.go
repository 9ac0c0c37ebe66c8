package summary

import (
	"reflect"
	"strings"
	"testing"
)

const structuredInput = `## Overview
This lecture introduces Go concurrency primitives.

**Key Concepts:**
- **Goroutines** are lightweight threads
- Channels (` + "`chan`" + `) pass values
1. The ` + "`select`" + ` statement multiplexes

### What you will learn
* How to start a goroutine
* How to [close a channel](https://go.dev/ref/spec#Close)

Key Point: unbuffered sends block until received.

## Conclusion
Use channels to share memory by communicating.`

func TestFormatDetectsSections(t *testing.T) {
	t.Parallel()

	got := Format(structuredInput)
	want := Structured{
		MainTopic: "This lecture introduces Go concurrency primitives.",
		KeyConcepts: []string{
			"Goroutines are lightweight threads",
			"Channels (chan) pass values",
			"The select statement multiplexes",
		},
		LearningObjectives: []string{"How to start a goroutine", "How to close a channel"},
		ImportantDetails:   []string{"unbuffered sends block until received."},
		Conclusion:         "Use channels to share memory by communicating.",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Format() =\n%+v\nwant\n%+v", got, want)
	}
}

func TestKeyConceptsHeaderWithThreeBullets(t *testing.T) {
	t.Parallel()

	got := Format("Key Concepts:\n- *Interfaces* are implicit\n+ Embedding composes types\n2) Errors are values")
	if len(got.KeyConcepts) != 3 {
		t.Fatalf("expected 3 key concepts, got %d: %q", len(got.KeyConcepts), got.KeyConcepts)
	}
	for _, c := range got.KeyConcepts {
		if strings.ContainsAny(c, "*+-") || strings.HasPrefix(c, "2") {
			t.Fatalf("markdown bullet left in %q", c)
		}
	}
}

func TestFormatFallsBackToSentences(t *testing.T) {
	t.Parallel()

	raw := "Go makes concurrency simple. Goroutines are cheap. Channels connect them. Prefer communication over locks."
	got := Format(raw)
	if got.MainTopic != raw {
		t.Fatalf("main topic should fall back to the first long line, got %q", got.MainTopic)
	}
	wantConcepts := []string{"Go makes concurrency simple.", "Goroutines are cheap.", "Channels connect them."}
	if !reflect.DeepEqual(got.KeyConcepts, wantConcepts) {
		t.Fatalf("KeyConcepts = %q", got.KeyConcepts)
	}
	if got.Conclusion != "Prefer communication over locks." {
		t.Fatalf("Conclusion = %q", got.Conclusion)
	}
}

func TestFormatCapsLists(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	b.WriteString("Important Details:\n")
	for i := 0; i < 8; i++ {
		b.WriteString("- detail number ")
		b.WriteString(string(rune('a' + i)))
		b.WriteString("\n")
	}
	got := Format(b.String())
	if len(got.ImportantDetails) != 5 {
		t.Fatalf("expected cap of 5, got %d", len(got.ImportantDetails))
	}
}

func TestFormatDropsShortFragments(t *testing.T) {
	t.Parallel()

	got := Format("Key Concepts:\n- ok\n- a\n- real concept here")
	if len(got.KeyConcepts) != 1 || got.KeyConcepts[0] != "real concept here" {
		t.Fatalf("unexpected concepts %q", got.KeyConcepts)
	}
}

func TestFormatIsDeterministic(t *testing.T) {
	t.Parallel()

	first := Format(structuredInput)
	for i := 0; i < 20; i++ {
		if !reflect.DeepEqual(Format(structuredInput), first) {
			t.Fatal("Format() output changed between runs")
		}
	}
}

func TestFormatEmpty(t *testing.T) {
	t.Parallel()

	if got := Format("  \n\n "); !got.Empty() {
		t.Fatalf("expected empty summary, got %+v", got)
	}
}

func TestClean(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"### **Bold** heading", "Bold heading"},
		{"> quoted _emphasis_ here", "quoted emphasis here"},
		{"![diagram](x.png) and [link](http://x)", "diagram and link"},
		{"- `code`   spans", "code spans"},
		{"snake_case_name stays", "snake_case_name stays"},
	}
	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Fatalf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
