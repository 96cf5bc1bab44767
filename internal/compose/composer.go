// Package compose assembles retrieved chunks into a single bounded context
// block for injection into a language-model prompt, and guards prompt size.
//
// Composition never fails: insufficient input yields a smaller or empty
// result, not an error.
package compose

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/scribeworks/scribe/internal/chunk"
	"github.com/scribeworks/scribe/internal/retrieve"
)

// Composition parameters.
const (
	// DefaultMaxTokens is the context budget when unspecified.
	DefaultMaxTokens = 8000

	// formattingOverheadTokens is reserved off the budget for the grounding
	// instruction, separators and source tags.
	formattingOverheadTokens = 400

	// fingerprintWindow is the number of leading and trailing characters
	// hashed for near-duplicate detection. Chunks with identical boundary
	// text but different middles collapse to one; that false-positive rate
	// is a deliberate precision/recall tradeoff, tunable here.
	fingerprintWindow = 120
)

// Template names for Options.Template.
const (
	TemplateDefault  = "default"
	TemplateDetailed = "detailed"
	TemplateMinimal  = "minimal"
)

const groundingInstruction = "Use the following reference material to ground your response:"

// Options configures composition.
//
// The zero value disables source tags and deduplication. Callers wanting the
// standard behavior start from DefaultOptions and override fields.
type Options struct {
	// MaxTokens bounds the estimated token count of the emitted context.
	// <= 0 means DefaultMaxTokens.
	MaxTokens int

	// IncludeSource prefixes chunks with their source filename.
	IncludeSource bool

	// Deduplicate drops near-duplicate chunks before budget fitting.
	Deduplicate bool

	// Template selects the output format: default, detailed or minimal.
	// Unknown names render as default.
	Template string
}

// DefaultOptions returns the standard composition configuration.
func DefaultOptions() Options {
	return Options{
		MaxTokens:     DefaultMaxTokens,
		IncludeSource: true,
		Deduplicate:   true,
		Template:      TemplateDefault,
	}
}

// Composed is the assembled context block. Ephemeral; it describes exactly
// what was emitted so callers can log it.
type Composed struct {
	ContextText string
	ChunksUsed  int
	TotalTokens int
	Sources     []string
}

// Compose deduplicates, budget-fits and formats hits into one context block.
//
// Chunks are selected greedily in descending score order until the next one
// would exceed the budget (after the formatting reserve); the final block
// presents them in score order, not retrieval order.
func Compose(hits []retrieve.Hit, opts Options) Composed {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	if opts.Deduplicate {
		hits = dedupe(hits)
	}

	sorted := make([]retrieve.Hit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	budget := maxTokens - formattingOverheadTokens
	var (
		selected []retrieve.Hit
		used     int
	)
	for _, h := range sorted {
		cost := chunk.EstimateTokens(h.Text)
		if used+cost > budget {
			break
		}
		selected = append(selected, h)
		used += cost
	}

	if len(selected) == 0 {
		return Composed{}
	}

	text := render(selected, opts)
	return Composed{
		ContextText: text,
		ChunksUsed:  len(selected),
		TotalTokens: chunk.EstimateTokens(text),
		Sources:     sourceList(selected),
	}
}

// dedupe keeps the first-seen chunk per boundary fingerprint, preserving
// each survivor's original score and position.
func dedupe(hits []retrieve.Hit) []retrieve.Hit {
	seen := make(map[uint64]bool, len(hits))
	out := make([]retrieve.Hit, 0, len(hits))
	for _, h := range hits {
		fp := fingerprint(h.Text)
		if seen[fp] {
			continue
		}
		seen[fp] = true
		out = append(out, h)
	}
	return out
}

// fingerprint hashes the first and last fingerprintWindow characters of
// text. Cheap near-duplicate detection without hashing the full text.
func fingerprint(text string) uint64 {
	runes := []rune(text)
	n := len(runes)
	w := fingerprintWindow
	if w > n {
		w = n
	}
	h := fnv.New64a()
	h.Write([]byte(string(runes[:w])))
	h.Write([]byte{0})
	h.Write([]byte(string(runes[n-w:])))
	return h.Sum64()
}

// render formats the selected chunks per the requested template.
func render(selected []retrieve.Hit, opts Options) string {
	var b strings.Builder

	switch opts.Template {
	case TemplateMinimal:
		for i, h := range selected {
			if i > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(h.Text)
		}

	case TemplateDetailed:
		b.WriteString(groundingInstruction)
		b.WriteString("\n")
		for i, h := range selected {
			fmt.Fprintf(&b, "\n### Reference %d\n", i+1)
			if opts.IncludeSource && h.Filename != "" {
				fmt.Fprintf(&b, "Source: %s\n", h.Filename)
			}
			b.WriteString(h.Text)
			b.WriteString("\n")
		}

	default:
		b.WriteString(groundingInstruction)
		b.WriteString("\n\n")
		for i, h := range selected {
			if i > 0 {
				b.WriteString("\n\n---\n\n")
			}
			if opts.IncludeSource && h.Filename != "" {
				fmt.Fprintf(&b, "[Source: %s]\n", h.Filename)
			}
			b.WriteString(h.Text)
		}
	}

	return b.String()
}

// sourceList returns the distinct source filenames in emission order.
func sourceList(selected []retrieve.Hit) []string {
	seen := make(map[string]bool, len(selected))
	var sources []string
	for _, h := range selected {
		if h.Filename == "" || seen[h.Filename] {
			continue
		}
		seen[h.Filename] = true
		sources = append(sources, h.Filename)
	}
	return sources
}
