// Package output renders command results for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Format selects how command results are rendered.
type Format string

const (
	FormatText Format = "text"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ParseFormat maps a --output flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, "":
		return FormatText, nil
	case FormatYAML:
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format: %s (want text, yaml or json)", s)
	}
}

// Texter is implemented by results with a human-readable rendering.
type Texter interface {
	WriteText(w io.Writer) error
}

// Printer writes results in a fixed format.
type Printer struct {
	w      io.Writer
	format Format
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

// Format returns the printer's format.
func (p *Printer) Format() Format {
	return p.format
}

// Structured reports whether output is machine-readable. Commands use it to
// suppress progress chatter.
func (p *Printer) Structured() bool {
	return p.format == FormatJSON || p.format == FormatYAML
}

// Print renders data. In text mode, values without a Texter rendering fall
// back to YAML.
func (p *Printer) Print(data any) error {
	return To(p.w, p.format, data)
}

// Printf writes a line in text mode and is a no-op otherwise.
func (p *Printer) Printf(format string, args ...any) {
	if p.Structured() {
		return
	}
	fmt.Fprintf(p.w, format, args...)
}

// To writes data to w in the given format.
func To(w io.Writer, format Format, data any) error {
	switch format {
	case FormatText:
		if t, ok := data.(Texter); ok {
			return t.WriteText(w)
		}
		return To(w, FormatYAML, data)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(data)
	default:
		return fmt.Errorf("unknown output format: %s", format)
	}
}
