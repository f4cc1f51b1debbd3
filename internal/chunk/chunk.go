// Package chunk defines the units of work the extraction pipeline passes
// around: page-range descriptors, extracted entries, per-chunk results and the
// capability that turns one into the other.
package chunk

import (
	"context"
	"time"
	"unicode/utf8"
)

// DedupPrefixLen is the number of leading text characters that take part in
// an entry's dedup key.
const DedupPrefixLen = 50

// Descriptor identifies one contiguous page range of a source document.
// IDs are 1-based and match the descriptor's position in the plan.
type Descriptor struct {
	ID        int    `json:"id" yaml:"id"`
	StartPage int    `json:"start_page" yaml:"start_page"`
	EndPage   int    `json:"end_page" yaml:"end_page"`
	SourceRef string `json:"source_ref" yaml:"source_ref"`
}

// Pages returns the number of pages covered by the descriptor.
func (d Descriptor) Pages() int {
	return d.EndPage - d.StartPage + 1
}

// Entry is one extracted submittal bullet. All fields used by the dedup key
// are plain strings; producers that omit a field leave it empty.
type Entry struct {
	ID             string `json:"id" yaml:"id"`
	Level          int    `json:"level" yaml:"level"`
	SpecSection    string `json:"spec_section" yaml:"spec_section"`
	SectionTitle   string `json:"section_title" yaml:"section_title"`
	ArticleNumber  string `json:"article_number" yaml:"article_number"`
	SubmittalTitle string `json:"submittal_title" yaml:"submittal_title"`
	SubmittalType  string `json:"submittal_type" yaml:"submittal_type"`
	Text           string `json:"text" yaml:"text"`
}

// DedupKey is the composite identity used to collapse duplicate entries.
type DedupKey struct {
	SpecSection    string
	ArticleNumber  string
	SubmittalTitle string
	TextPrefix     string
}

// Key returns the entry's dedup key.
func (e Entry) Key() DedupKey {
	return DedupKey{
		SpecSection:    e.SpecSection,
		ArticleNumber:  e.ArticleNumber,
		SubmittalTitle: e.SubmittalTitle,
		TextPrefix:     prefix(e.Text, DedupPrefixLen),
	}
}

// prefix returns the first n characters of s, counting runes.
func prefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// Usage is token and cost accounting for one or more LLM calls.
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens" yaml:"total_tokens"`
	CostUSD          float64 `json:"total_cost" yaml:"total_cost"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		CostUSD:          u.CostUSD + o.CostUSD,
	}
}

// Extraction is the success payload of a single extractor call.
type Extraction struct {
	Entries []Entry
	Usage   Usage
	Model   string
}

// Result is the outcome of one attempt at one chunk. A nil Err means the
// attempt succeeded and Entries/Usage are valid.
type Result struct {
	ChunkID        int
	Entries        []Entry
	Usage          Usage
	Model          string
	Err            error
	ProcessingTime time.Duration
	RetryRound     int
}

// Succeeded reports whether the attempt produced entries.
func (r Result) Succeeded() bool {
	return r.Err == nil
}

// Extractor performs the remote extraction for one chunk. Implementations
// must be safe for concurrent use with distinct descriptors.
type Extractor interface {
	Extract(ctx context.Context, d Descriptor) (*Extraction, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, d Descriptor) (*Extraction, error)

// Extract calls f(ctx, d).
func (f ExtractorFunc) Extract(ctx context.Context, d Descriptor) (*Extraction, error) {
	return f(ctx, d)
}
