package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/speclog/internal/chunk"
	"github.com/jackzampolin/speclog/internal/providers"
)

var extractOutputDir string

var extractCmd = &cobra.Command{
	Use:   "extract <pdf>",
	Short: "Extract a submittal log from a specification PDF",
	Long: `Extract submittal requirements from a construction specification PDF.

The PDF is split into chunks, each chunk is sent to the configured LLM,
failed chunks are retried, and the merged bullets are written to an Excel
submittal log (and a JSON backup when enabled).

If some chunks still fail after all retries, the log is written from the
chunks that succeeded and the failed chunk ids are reported.

Examples:
  speclog extract project_specs.pdf
  speclog extract project_specs.pdf --output-dir ./logs
  speclog extract project_specs.pdf -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := args[0]
		if _, err := os.Stat(src); err != nil {
			return fmt.Errorf("input file: %w", err)
		}

		h, mgr, err := loadEnv()
		if err != nil {
			return err
		}
		cfg := mgr.Get()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		reg := providers.NewRegistryFromConfig(withLogger(cfg.ToProviderRegistryConfig()))
		p, err := newPipeline(cfg, h, reg, logger)
		if err != nil {
			return err
		}

		printer.Printf("Processing %s...\n", src)
		summary, err := process(cmd.Context(), p, src, outputDir(extractOutputDir, cfg, h), cfg)
		if err != nil {
			var tf *chunk.TotalFailureError
			if errors.As(err, &tf) {
				for id, cause := range tf.LastErrors {
					logger.Error("chunk failed", "chunk_id", id, "error", cause)
				}
			}
			return err
		}
		return printer.Print(summary)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractOutputDir, "output-dir", "", "directory for the submittal log (default: output.dir or ~/.speclog/output)")
}
