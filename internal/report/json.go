package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackzampolin/speclog/internal/chunk"
	"github.com/jackzampolin/speclog/internal/extract"
)

// SaveJSON writes v as indented JSON to path.
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// LoadEntries reads the bullets from a results JSON file.
func LoadEntries(path string) ([]chunk.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	entries, err := extract.DecodeEntries(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return entries, nil
}

// Paths holds the output file locations for one source document.
type Paths struct {
	XLSX string `json:"xlsx"`
	JSON string `json:"json"`
}

// OutputPaths returns the xlsx and json paths for source inside dir. When
// timestamped is set the names carry now, e.g.
// "spec_submittal_log_20250101_120000.xlsx".
func OutputPaths(dir, source string, timestamped bool, now time.Time) Paths {
	stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	suffix := ""
	if timestamped {
		suffix = "_" + now.Format("20060102_150405")
	}
	return Paths{
		XLSX: filepath.Join(dir, stem+"_submittal_log"+suffix+".xlsx"),
		JSON: filepath.Join(dir, stem+"_results"+suffix+".json"),
	}
}
