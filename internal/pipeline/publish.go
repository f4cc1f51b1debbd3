package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackzampolin/speclog/internal/report"
)

// PublishOptions controls where and how results are written.
type PublishOptions struct {
	Dir         string
	Timestamped bool
	JSONBackup  bool
	Now         time.Time
	Logger      *slog.Logger
}

// Summary is what a completed run reports to the user.
type Summary struct {
	Metadata Metadata     `json:"metadata" yaml:"metadata"`
	Outputs  report.Paths `json:"outputs" yaml:"outputs"`
	Rows     int          `json:"rows" yaml:"rows"`
}

// Publish writes the submittal log and, optionally, the JSON backup.
func Publish(r *Result, opts PublishOptions) (*Summary, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	paths := report.OutputPaths(opts.Dir, r.Metadata.Source, opts.Timestamped, now)

	rows := report.BuildRows(r.Bullets)
	if err := report.WriteSubmittalLog(paths.XLSX, rows, opts.Logger); err != nil {
		return nil, err
	}
	if opts.JSONBackup {
		if err := report.SaveJSON(paths.JSON, r); err != nil {
			return nil, err
		}
	} else {
		paths.JSON = ""
	}

	return &Summary{Metadata: r.Metadata, Outputs: paths, Rows: len(rows)}, nil
}

// WriteText implements output.Texter.
func (s *Summary) WriteText(w io.Writer) error {
	m := s.Metadata
	fmt.Fprintf(w, "Source:       %s (%d pages)\n", m.Source, m.TotalPages)
	fmt.Fprintf(w, "Model:        %s\n", m.Model)
	fmt.Fprintf(w, "Chunks:       %d/%d succeeded", m.SuccessfulChunks, m.NumChunks)
	if m.FailedChunks > 0 {
		fmt.Fprintf(w, " (failed: %v)", m.FailedChunkIDs)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Retries:      %d\n", m.TotalRetries)
	fmt.Fprintf(w, "Bullets:      %d (%d duplicates removed)\n", m.EntriesAfterDedup, m.DuplicatesRemoved)
	fmt.Fprintf(w, "Log rows:     %d\n", s.Rows)
	fmt.Fprintf(w, "Tokens:       %d\n", m.UsageStats.TotalTokens)
	fmt.Fprintf(w, "Cost:         $%.4f\n", m.UsageStats.CostUSD)
	fmt.Fprintf(w, "Wall time:    %.1fs\n", m.WallTimeSeconds)
	fmt.Fprintf(w, "Submittal log: %s\n", s.Outputs.XLSX)
	if s.Outputs.JSON != "" {
		fmt.Fprintf(w, "JSON backup:   %s\n", s.Outputs.JSON)
	}
	return nil
}
