package chunk

import "fmt"

// PlanConfig holds the sizing parameters for Plan.
type PlanConfig struct {
	TokensPerPage     int `json:"tokens_per_page" yaml:"tokens_per_page"`
	MaxTokensPerChunk int `json:"max_tokens_per_chunk" yaml:"max_tokens_per_chunk"`
	MinChunkPages     int `json:"min_chunk_pages" yaml:"min_chunk_pages"`
}

// EstimatedTokens returns the estimated token count of a document.
func (c PlanConfig) EstimatedTokens(totalPages int) int {
	return totalPages * c.TokensPerPage
}

// NeedsSplitting reports whether a document of totalPages exceeds one chunk.
func (c PlanConfig) NeedsSplitting(totalPages int) bool {
	return c.EstimatedTokens(totalPages) > c.MaxTokensPerChunk
}

// MaxPagesPerChunk returns the chunk length used for a document of
// totalPages, after the minimum-size floor is applied.
func (c PlanConfig) MaxPagesPerChunk(totalPages int) int {
	maxPages := c.MaxTokensPerChunk / c.TokensPerPage
	if totalPages > c.MinChunkPages && maxPages < c.MinChunkPages {
		maxPages = c.MinChunkPages
	}
	if maxPages < 1 {
		maxPages = 1
	}
	return maxPages
}

func (c PlanConfig) validate(totalPages int) error {
	switch {
	case totalPages <= 0:
		return fmt.Errorf("%w: total pages must be positive, got %d", ErrInvalidPlan, totalPages)
	case c.TokensPerPage <= 0:
		return fmt.Errorf("%w: tokens per page must be positive, got %d", ErrInvalidPlan, c.TokensPerPage)
	case c.MaxTokensPerChunk <= 0:
		return fmt.Errorf("%w: max tokens per chunk must be positive, got %d", ErrInvalidPlan, c.MaxTokensPerChunk)
	case c.MinChunkPages < 0:
		return fmt.Errorf("%w: min chunk pages must not be negative, got %d", ErrInvalidPlan, c.MinChunkPages)
	}
	return nil
}

// Plan partitions pages [1, totalPages] into contiguous descriptors. A
// document whose estimate fits in one request yields a single chunk.
func Plan(totalPages int, cfg PlanConfig, sourceRef string) ([]Descriptor, error) {
	if err := cfg.validate(totalPages); err != nil {
		return nil, err
	}

	if !cfg.NeedsSplitting(totalPages) {
		return []Descriptor{{ID: 1, StartPage: 1, EndPage: totalPages, SourceRef: sourceRef}}, nil
	}

	size := cfg.MaxPagesPerChunk(totalPages)
	plan := make([]Descriptor, 0, (totalPages+size-1)/size)
	for start := 1; start <= totalPages; start += size {
		end := start + size - 1
		if end > totalPages {
			end = totalPages
		}
		plan = append(plan, Descriptor{
			ID:        len(plan) + 1,
			StartPage: start,
			EndPage:   end,
			SourceRef: sourceRef,
		})
	}
	return plan, nil
}
