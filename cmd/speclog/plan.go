package main

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan <pdf>",
	Short: "Show how a PDF would be chunked and what it would cost",
	Long: `Count pages, estimate tokens and plan chunks without calling the LLM.

The cost estimate assumes each chunk uses 70% of the per-chunk token
budget as input plus 25,000 output tokens, priced with the default
provider's per-million-token rates.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		h, mgr, err := loadEnv()
		if err != nil {
			return err
		}
		p, err := newPipeline(mgr.Get(), h, nil, logger)
		if err != nil {
			return err
		}
		est, err := p.Preview(args[0])
		if err != nil {
			return err
		}
		return printer.Print(est)
	},
}
