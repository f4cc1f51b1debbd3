// Package report writes extraction results as an Excel submittal log and a
// JSON backup.
package report

import (
	"strings"

	"github.com/jackzampolin/speclog/internal/chunk"
)

// Row is one line of the submittal log.
type Row struct {
	SpecSection   string  `json:"spec_section"`
	PackageNumber string  `json:"package_number"`
	Rev           float64 `json:"rev"`
	Title         string  `json:"title"`
	Type          string  `json:"type"`
}

// Columns is the header row of the submittal log.
var Columns = []string{"Spec Section", "Package #", "Rev.", "Title", "Type"}

var typeNames = map[string]string{
	"ACTION SUBMITTALS":        "Material Submittal",
	"INFORMATIONAL SUBMITTALS": "Information Submittal",
	"CLOSEOUT SUBMITTALS":      "Closeout Submittals",
	"QUALITY ASSURANCE":        "Quality Assurance",
}

const defaultTypeName = "Material Submittal"

// BuildRows converts entries to log rows. Only top-level entries with a spec
// section and a submittal title become rows.
func BuildRows(entries []chunk.Entry) []Row {
	rows := make([]Row, 0, len(entries))
	for _, e := range entries {
		if e.Level != 1 {
			continue
		}
		title := strings.TrimSpace(e.SubmittalTitle)
		if title == "" || e.SpecSection == "" {
			continue
		}

		section := e.SpecSection
		if e.SectionTitle != "" {
			section = e.SpecSection + " - " + e.SectionTitle
		}
		rows = append(rows, Row{
			SpecSection:   section,
			PackageNumber: PackageNumber(e.SpecSection, e.ArticleNumber, e.ID),
			Rev:           0.0,
			Title:         title,
			Type:          TypeName(e.SubmittalType),
		})
	}
	return rows
}

// PackageNumber formats a package number such as "12 24 13-1.2A".
func PackageNumber(specSection, articleNumber, id string) string {
	spec := strings.Join(strings.Fields(specSection), " ")
	switch {
	case articleNumber != "" && id != "":
		return spec + "-" + articleNumber + id
	case articleNumber != "":
		return spec + "-" + articleNumber
	default:
		return spec
	}
}

// TypeName maps an article heading to its log type.
func TypeName(submittalType string) string {
	if name, ok := typeNames[submittalType]; ok {
		return name
	}
	return defaultTypeName
}
