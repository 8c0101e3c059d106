package ingest

import (
	"strings"
)

// Keywords are the financial terms the relevance filter looks for.
//
// Matching is a case-insensitive substring test, not a word match: "tax"
// also hits "taxi" and "syntax". The filter favours recall; callers accept
// the occasional irrelevant window.
var Keywords = []string{
	"salary", "income", "epf", "nps", "gratuity", "deduction", "basic pay",
	"hra", "ctc", "contribution", "pension", "bonus", "allowance", "tax",
}

// ChunkSeparator joins windows in FilterRelevant output.
const ChunkSeparator = "\n---\n"

// Filter defaults.
const (
	DefaultRadius    = 1
	DefaultMaxChunks = 6
)

// FilterOptions tunes the relevance filter. MaxChunks <= 0 and a nil
// Keywords slice fall back to the defaults; a negative Radius is treated as 0.
type FilterOptions struct {
	Radius    int
	MaxChunks int
	Keywords  []string
}

// DefaultFilterOptions returns radius 1, six chunks, and the standard keywords.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{Radius: DefaultRadius, MaxChunks: DefaultMaxChunks, Keywords: Keywords}
}

func (o FilterOptions) normalized() FilterOptions {
	if o.Radius < 0 {
		o.Radius = 0
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = DefaultMaxChunks
	}
	if o.Keywords == nil {
		o.Keywords = Keywords
	}
	lowered := make([]string, 0, len(o.Keywords))
	for _, k := range o.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	o.Keywords = lowered
	return o
}

// RelevantChunks splits text into non-empty trimmed lines and returns, for
// every line containing a keyword, the window of lines within Radius of it,
// clipped to the document. Windows are deduplicated by exact text, kept in
// first-hit order, and capped at MaxChunks.
func RelevantChunks(text string, opts FilterOptions) []string {
	opts = opts.normalized()

	lines := splitLines(text)
	if len(lines) == 0 || len(opts.Keywords) == 0 {
		return nil
	}

	seen := make(map[string]struct{})
	var chunks []string
	for i, line := range lines {
		if !containsAny(strings.ToLower(line), opts.Keywords) {
			continue
		}
		lo := max(0, i-opts.Radius)
		hi := min(len(lines)-1, i+opts.Radius)
		window := strings.Join(lines[lo:hi+1], "\n")
		if _, dup := seen[window]; dup {
			continue
		}
		seen[window] = struct{}{}
		chunks = append(chunks, window)
		if len(chunks) >= opts.MaxChunks {
			break
		}
	}
	return chunks
}

// FilterRelevant returns RelevantChunks joined by ChunkSeparator, or "" when
// nothing matched.
func FilterRelevant(text string, opts FilterOptions) string {
	return strings.Join(RelevantChunks(text, opts), ChunkSeparator)
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
