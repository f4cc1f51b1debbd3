package pipeline

import (
	"fmt"
	"io"

	"github.com/jackzampolin/speclog/internal/chunk"
)

// Output tokens assumed per chunk when estimating cost.
const estimatedOutputTokens = 25000

// Estimate is a dry-run cost projection for a document.
type Estimate struct {
	Source           string             `json:"source" yaml:"source"`
	TotalPages       int                `json:"total_pages" yaml:"total_pages"`
	EstimatedTokens  int                `json:"estimated_tokens" yaml:"estimated_tokens"`
	NeedsSplitting   bool               `json:"needs_splitting" yaml:"needs_splitting"`
	Chunks           []chunk.Descriptor `json:"chunks" yaml:"chunks"`
	Model            string             `json:"model" yaml:"model"`
	EstimatedCostUSD float64            `json:"estimated_cost_usd" yaml:"estimated_cost_usd"`
}

// Preview counts pages and plans chunks without calling the LLM. Each chunk
// is costed at 70% of the per-chunk token budget plus a fixed output allowance.
func (p *Pipeline) Preview(src string) (*Estimate, error) {
	total, err := p.pages(src)
	if err != nil {
		return nil, err
	}
	plan, err := chunk.Plan(total, p.settings.Plan, src)
	if err != nil {
		return nil, err
	}

	input := p.settings.Plan.MaxTokensPerChunk * 7 / 10
	perChunk := p.settings.Pricing.Cost(input, estimatedOutputTokens)

	return &Estimate{
		Source:           src,
		TotalPages:       total,
		EstimatedTokens:  p.settings.Plan.EstimatedTokens(total),
		NeedsSplitting:   p.settings.Plan.NeedsSplitting(total),
		Chunks:           plan,
		Model:            p.settings.Model,
		EstimatedCostUSD: perChunk * float64(len(plan)),
	}, nil
}

// WriteText implements output.Texter.
func (e *Estimate) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Source:            %s\n", e.Source)
	fmt.Fprintf(w, "Pages:             %d\n", e.TotalPages)
	fmt.Fprintf(w, "Estimated tokens:  %d\n", e.EstimatedTokens)
	fmt.Fprintf(w, "Needs splitting:   %t\n", e.NeedsSplitting)
	fmt.Fprintf(w, "Chunks:            %d\n", len(e.Chunks))
	for _, d := range e.Chunks {
		fmt.Fprintf(w, "  %2d: pages %d-%d (%d pages)\n", d.ID, d.StartPage, d.EndPage, d.Pages())
	}
	fmt.Fprintf(w, "Model:             %s\n", e.Model)
	_, err := fmt.Fprintf(w, "Estimated cost:    $%.2f\n", e.EstimatedCostUSD)
	return err
}
