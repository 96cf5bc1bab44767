package chunk

import (
	"strings"
	"testing"
)

func TestSplit_EmptyInput(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\n"} {
		if got := Split(text, DefaultOptions()); got != nil {
			t.Errorf("Split(%q) = %d chunks, want nil", text, len(got))
		}
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	if got := (Options{}).withDefaults(); got != DefaultOptions() {
		t.Errorf("zero options = %+v, want %+v", got, DefaultOptions())
	}
	custom := Options{MaxTokens: 100, MinTokens: 10, OverlapTokens: 20}
	if got := custom.withDefaults(); got != custom {
		t.Errorf("explicit options changed: %+v", got)
	}
}

func TestSplit_ZeroMinTokensUsesDefault(t *testing.T) {
	// Leaving MinTokens unset means the 50-token default, so a 2-token
	// fragment is dropped, not kept.
	got := Split("Tiny.", Options{MaxTokens: 400})
	if got != nil {
		t.Errorf("Split kept %d chunk(s) under the default minimum: %+v", len(got), got)
	}
}

func TestSplit_ShortDocumentDropped(t *testing.T) {
	// Below MinTokens, the lone fragment is silently discarded.
	got := Split("Tiny.", Options{MaxTokens: 50, MinTokens: 5, OverlapTokens: 10})
	if got != nil {
		t.Errorf("expected no chunks for sub-minimum document, got %d", len(got))
	}
}

func TestSplit_SingleParagraphFits(t *testing.T) {
	text := strings.Repeat("All work and no play makes for dull writing. ", 8)
	chunks := Split(text, Options{MaxTokens: 400, MinTokens: 5, OverlapTokens: 10})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Text != strings.TrimSpace(text) {
		t.Errorf("chunk text does not match trimmed source")
	}
	if c.TokenCount != EstimateTokens(c.Text) {
		t.Errorf("TokenCount = %d, want %d", c.TokenCount, EstimateTokens(c.Text))
	}
	if got := text[c.StartOffset:c.EndOffset]; got != c.Text {
		t.Errorf("offsets do not address chunk content: %q", got)
	}
}

func TestSplit_ParagraphAccumulation(t *testing.T) {
	paras := []string{
		strings.Repeat("alpha beta gamma delta epsilon zeta. ", 4),
		strings.Repeat("one two three four five six seven. ", 4),
		strings.Repeat("red orange yellow green blue indigo. ", 4),
		strings.Repeat("north south east west up down near. ", 4),
	}
	for i := range paras {
		paras[i] = strings.TrimSpace(paras[i])
	}
	text := strings.Join(paras, "\n\n")

	opts := Options{MaxTokens: 80, MinTokens: 5, OverlapTokens: 12}
	chunks := Split(text, opts)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	// Offsets advance monotonically: paragraph order is preserved.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].StartOffset <= chunks[i-1].StartOffset {
			t.Errorf("chunk %d start %d not after chunk %d start %d",
				i, chunks[i].StartOffset, i-1, chunks[i-1].StartOffset)
		}
	}

	// Each chunk's offset range addresses its own content (the overlap
	// prefix is not part of the range).
	for i, c := range chunks {
		body := text[c.StartOffset:c.EndOffset]
		if !strings.HasSuffix(c.Text, body) {
			t.Errorf("chunk %d: source slice is not a suffix of chunk text", i)
		}
	}

	// Concatenating the offset ranges covers every paragraph in order.
	var rebuilt []string
	for _, c := range chunks {
		rebuilt = append(rebuilt, text[c.StartOffset:c.EndOffset])
	}
	joined := strings.Join(rebuilt, "\n\n")
	for _, p := range paras {
		if !strings.Contains(joined, p) {
			t.Errorf("paragraph missing from reconstruction: %q", p[:20])
		}
	}

	for i, c := range chunks {
		if c.TokenCount > opts.MaxTokens {
			t.Errorf("chunk %d estimate %d exceeds max %d", i, c.TokenCount, opts.MaxTokens)
		}
	}
}

func TestSplit_OversizedParagraphFallsBackToSentences(t *testing.T) {
	// ~900 chars, one paragraph, twenty sentences.
	text := strings.TrimSpace(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20))
	opts := Options{MaxTokens: 50, MinTokens: 5, OverlapTokens: 10}

	chunks := Split(text, opts)
	if len(chunks) < 2 {
		t.Fatalf("expected at least 2 chunks, got %d", len(chunks))
	}

	for i, c := range chunks {
		if c.TokenCount > opts.MaxTokens {
			t.Errorf("chunk %d estimate %d exceeds max %d", i, c.TokenCount, opts.MaxTokens)
		}
	}

	// Every chunk after the first starts with a non-empty word tail of its
	// predecessor.
	for i := 1; i < len(chunks); i++ {
		prefix, _, ok := strings.Cut(chunks[i].Text, "\n")
		if !ok || prefix == "" {
			t.Fatalf("chunk %d has no overlap prefix", i)
		}
		if !strings.HasSuffix(chunks[i-1].Text, prefix) {
			t.Errorf("chunk %d overlap %q is not a tail of chunk %d", i, prefix, i-1)
		}
	}
}

func TestSplit_SingleSentenceLongerThanMax(t *testing.T) {
	// One unbreakable sentence: the size bound cannot hold and the chunk is
	// emitted oversized rather than dropped.
	text := strings.Repeat("word ", 200) + "end."
	chunks := Split(text, Options{MaxTokens: 50, MinTokens: 5, OverlapTokens: 10})
	if len(chunks) == 0 {
		t.Fatal("expected the oversized sentence to be emitted")
	}
	if chunks[0].TokenCount <= 50 {
		t.Errorf("expected an oversized chunk, got %d tokens", chunks[0].TokenCount)
	}
}

func TestSplit_HeadingAndListBoundaries(t *testing.T) {
	text := "# Title\nIntro line under the title.\n- first item\n- second item\n1. numbered item"
	segs := splitParagraphs(text)
	want := 4
	if len(segs) != want {
		t.Fatalf("splitParagraphs returned %d segments, want %d", len(segs), want)
	}
	if segs[0].text != "# Title\nIntro line under the title." {
		// The heading opens a paragraph; the following plain line joins it.
		t.Errorf("unexpected first segment: %q", segs[0].text)
	}
	if segs[2].text != "- second item" {
		t.Errorf("unexpected list segment: %q", segs[2].text)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.in); got != tc.want {
			t.Errorf("EstimateTokens(%d bytes) = %d, want %d", len(tc.in), got, tc.want)
		}
	}
}

func TestOverlapTail(t *testing.T) {
	text := "one two three four five six seven eight nine ten"
	got := overlapTail(text, 8) // 0.75*8 = 6 words
	want := "five six seven eight nine ten"
	if got != want {
		t.Errorf("overlapTail = %q, want %q", got, want)
	}

	if got := overlapTail(text, 0); got != "" {
		t.Errorf("overlapTail with zero budget = %q, want empty", got)
	}
	if got := overlapTail("only two", 100); got != "only two" {
		t.Errorf("overlapTail beyond text = %q", got)
	}
}
