package extract

import "github.com/jackzampolin/speclog/internal/chunk"

// ValidationReport counts entries that will not produce a usable log row.
type ValidationReport struct {
	Checked        int `json:"checked"`
	TopLevel       int `json:"top_level"`
	MissingSection int `json:"missing_section"`
	MissingTitle   int `json:"missing_title"`
	MissingText    int `json:"missing_text"`
}

// Warnings returns the total number of problems found.
func (r ValidationReport) Warnings() int {
	return r.MissingSection + r.MissingTitle + r.MissingText
}

// Validate checks that top-level entries carry a section and title and that
// every entry has text.
func Validate(entries []chunk.Entry) ValidationReport {
	var r ValidationReport
	for _, e := range entries {
		r.Checked++
		if e.Text == "" {
			r.MissingText++
		}
		if e.Level != 1 {
			continue
		}
		r.TopLevel++
		if e.SpecSection == "" {
			r.MissingSection++
		}
		if e.SubmittalTitle == "" {
			r.MissingTitle++
		}
	}
	return r
}
