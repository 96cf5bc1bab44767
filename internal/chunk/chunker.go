// Package chunk splits raw document text into overlapping, token-bounded
// segments suitable for embedding.
//
// The splitter works at paragraph granularity (blank lines, headings, list
// items) and falls back to sentence granularity when a single paragraph
// exceeds the chunk budget. Consecutive chunks share an overlap tail so that
// retrieval never loses context at a chunk boundary.
//
// Chunking is pure CPU work with no I/O; a Chunker is safe for concurrent use.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// Default chunking parameters. Tuned for ~1536-dimension embedding models
// where chunks in the 200-400 token range retrieve well.
const (
	DefaultMaxTokens     = 400
	DefaultMinTokens     = 50
	DefaultOverlapTokens = 80
)

// overlapWordRatio converts the overlap token budget into a word count for
// the carried tail. Words average a bit over one token, so the tail is kept
// slightly under the nominal overlap budget.
const overlapWordRatio = 0.75

// Options controls chunk sizing. Zero values fall back to the defaults.
type Options struct {
	// MaxTokens is the upper bound on a chunk's estimated token count.
	MaxTokens int

	// MinTokens is the lower bound; trailing fragments below it are dropped.
	MinTokens int

	// OverlapTokens sizes the tail of a closed chunk that seeds the next one.
	OverlapTokens int
}

// DefaultOptions returns the standard chunking configuration.
func DefaultOptions() Options {
	return Options{
		MaxTokens:     DefaultMaxTokens,
		MinTokens:     DefaultMinTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.MinTokens <= 0 {
		o.MinTokens = DefaultMinTokens
	}
	if o.OverlapTokens <= 0 {
		o.OverlapTokens = DefaultOverlapTokens
	}
	return o
}

// Chunk is a contiguous slice of a document's text, immutable once created.
//
// StartOffset and EndOffset are byte offsets into the source text of the
// chunk's own content; the injected overlap prefix from the previous chunk is
// part of Text but not part of the offset range.
type Chunk struct {
	Text        string
	TokenCount  int
	StartOffset int
	EndOffset   int
}

// EstimateTokens estimates the language-model token count of s as
// ceil(len(s)/4). The 4-bytes-per-token heuristic avoids a tokenizer
// dependency and overestimates slightly for dense prose, which keeps budget
// checks conservative.
func EstimateTokens(s string) int {
	return (len(s) + 3) / 4
}

// segment is an intermediate unit (paragraph or sentence) with its source
// byte range.
type segment struct {
	text  string
	start int
	end   int
}

// Split divides text into token-bounded chunks per opts.
//
// Paragraphs are accumulated until adding the next one would exceed
// MaxTokens; the closed chunk then seeds its successor with an overlap tail.
// A paragraph that alone exceeds MaxTokens is split into sentences and
// accumulated with the same overlap logic. Chunks whose estimate falls below
// MinTokens are dropped, so a tiny trailing fragment is silently discarded
// rather than merged.
func Split(text string, opts Options) []Chunk {
	opts = opts.withDefaults()

	if strings.TrimSpace(text) == "" {
		return nil
	}

	var (
		chunks  []Chunk
		buf     []segment
		overlap string // tail carried from the previously closed chunk
	)

	flush := func() {
		if len(buf) == 0 {
			return
		}
		body := joinSegments(buf)
		full := body
		if overlap != "" {
			full = overlap + "\n" + body
		}
		chunks = append(chunks, Chunk{
			Text:        full,
			TokenCount:  EstimateTokens(full),
			StartOffset: buf[0].start,
			EndOffset:   buf[len(buf)-1].end,
		})
		overlap = overlapTail(body, opts.OverlapTokens)
		buf = buf[:0]
	}

	add := func(seg segment) {
		if len(buf) > 0 && chunkEstimate(overlap, buf, seg) > opts.MaxTokens {
			flush()
		}
		buf = append(buf, seg)
	}

	for _, para := range splitParagraphs(text) {
		if EstimateTokens(para.text) <= opts.MaxTokens {
			add(para)
			continue
		}
		// Oversized paragraph: close whatever is buffered and fall back to
		// sentence granularity inside the paragraph.
		flush()
		for _, sent := range splitSentences(para) {
			add(sent)
		}
	}
	flush()

	// Drop sub-minimum fragments. Callers must tolerate this data loss.
	kept := chunks[:0]
	for _, c := range chunks {
		if c.TokenCount >= opts.MinTokens {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

// chunkEstimate is the token estimate of the chunk that would result from
// appending next to the current buffer, overlap prefix included.
func chunkEstimate(overlap string, buf []segment, next segment) int {
	n := len(overlap)
	if n > 0 {
		n++ // separator
	}
	for _, s := range buf {
		n += len(s.text) + 2 // paragraph separator
	}
	n += len(next.text)
	return (n + 3) / 4
}

func joinSegments(segs []segment) string {
	parts := make([]string, len(segs))
	for i, s := range segs {
		parts[i] = s.text
	}
	return strings.Join(parts, "\n\n")
}

// overlapTail returns the last ~overlapWordRatio*overlapTokens words of text,
// used to seed the next chunk.
func overlapTail(text string, overlapTokens int) string {
	if overlapTokens <= 0 {
		return ""
	}
	words := strings.Fields(text)
	n := int(float64(overlapTokens) * overlapWordRatio)
	if n <= 0 {
		return ""
	}
	if n > len(words) {
		n = len(words)
	}
	return strings.Join(words[len(words)-n:], " ")
}

// splitParagraphs splits text on blank lines, headings, and list items,
// preserving source byte offsets. Whitespace-only regions are skipped.
func splitParagraphs(text string) []segment {
	var (
		segs      []segment
		start     = -1 // start of the paragraph in flight, -1 = none
		lineStart = 0
	)

	closePara := func(end int) {
		if start < 0 {
			return
		}
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			lead := strings.Index(raw, trimmed)
			segs = append(segs, segment{
				text:  trimmed,
				start: start + lead,
				end:   start + lead + len(trimmed),
			})
		}
		start = -1
	}

	for i := 0; i <= len(text); i++ {
		if i < len(text) && text[i] != '\n' {
			continue
		}
		line := text[lineStart:i]
		stripped := strings.TrimSpace(line)
		switch {
		case stripped == "":
			closePara(lineStart)
		case isBoundaryLine(stripped):
			// Headings and list items open their own paragraph.
			closePara(lineStart)
			start = lineStart
		default:
			if start < 0 {
				start = lineStart
			}
		}
		lineStart = i + 1
	}
	closePara(len(text))
	return segs
}

// isBoundaryLine reports whether a line starts a new structural unit:
// a markdown heading or a list item.
func isBoundaryLine(line string) bool {
	if strings.HasPrefix(line, "#") {
		return true
	}
	if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") || strings.HasPrefix(line, "+ ") {
		return true
	}
	// Ordered list: digits followed by ". " or ") ".
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i+1 < len(line) && (line[i] == '.' || line[i] == ')') && line[i+1] == ' ' {
		return true
	}
	return false
}

// splitSentences splits a paragraph on sentence boundaries (. ! ? followed by
// whitespace), preserving source offsets relative to the whole document.
func splitSentences(para segment) []segment {
	var (
		segs  []segment
		begin = 0
	)
	text := para.text

	emit := func(end int) {
		raw := text[begin:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			lead := strings.Index(raw, trimmed)
			segs = append(segs, segment{
				text:  trimmed,
				start: para.start + begin + lead,
				end:   para.start + begin + lead + len(trimmed),
			})
		}
		begin = end
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		// Consume a run of terminators ("?!", "...").
		j := i + 1
		for j < len(text) && (text[j] == '.' || text[j] == '!' || text[j] == '?') {
			j++
		}
		if j >= len(text) {
			emit(len(text))
			i = j
			continue
		}
		if r, _ := utf8.DecodeRuneInString(text[j:]); r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			emit(j)
		}
		i = j - 1
	}
	emit(len(text))
	return segs
}
