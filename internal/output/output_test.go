package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"
)

type summary struct {
	Name   string `json:"name" yaml:"name"`
	Chunks int    `json:"chunks" yaml:"chunks"`
}

func (s summary) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "%s: %d chunks\n", s.Name, s.Chunks)
	return err
}

type plain struct {
	Count int `json:"count" yaml:"count"`
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"yaml", FormatYAML, false},
		{"json", FormatJSON, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTo(t *testing.T) {
	s := summary{Name: "spec.pdf", Chunks: 3}

	t.Run("text uses Texter", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatText, s); err != nil {
			t.Fatalf("To() error = %v", err)
		}
		if buf.String() != "spec.pdf: 3 chunks\n" {
			t.Errorf("unexpected text output: %q", buf.String())
		}
	})

	t.Run("text falls back to yaml", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatText, plain{Count: 2}); err != nil {
			t.Fatalf("To() error = %v", err)
		}
		if strings.TrimSpace(buf.String()) != "count: 2" {
			t.Errorf("unexpected yaml output: %q", buf.String())
		}
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := To(&buf, FormatJSON, s); err != nil {
			t.Fatalf("To() error = %v", err)
		}
		if !strings.Contains(buf.String(), `"chunks": 3`) {
			t.Errorf("unexpected json output: %q", buf.String())
		}
	})

	t.Run("unknown", func(t *testing.T) {
		if err := To(&bytes.Buffer{}, Format("xml"), s); err == nil {
			t.Error("expected error for unknown format")
		}
	})
}

func TestPrinter_Printf(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf, FormatJSON).Printf("progress %d\n", 1)
	if buf.Len() != 0 {
		t.Errorf("expected no chatter in json mode, got %q", buf.String())
	}

	NewPrinter(&buf, FormatText).Printf("progress %d\n", 1)
	if buf.String() != "progress 1\n" {
		t.Errorf("expected progress line, got %q", buf.String())
	}
}
