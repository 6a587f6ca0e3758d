// Package tabular encodes and decodes the line-oriented, tab-delimited text
// that the fast cache and the durable store hold for every dataset.
//
// # Format
//
// A blob consists of optional comment lines (starting with '#'), a header
// line naming the columns, and tab-separated data lines. One of the first
// ten lines may declare the header position:
//
//	# events: one row per study response
//	# RESULT is 0, 0.5 or 1 for reviews, DURATION is in seconds
//	# SDAY is the sprint day, A/P marks active or passive recall
//	# headerRow = 5
//	ID	ACTION	RESULT	DURATION	SDAY	A/P
//	12	review	1	8	3	A
//
// When no declaration is present the header is the first line that begins
// with the dataset's header token, and failing that the first non-empty
// line that is not a comment.
//
// Field values must not contain tabs or newlines. This is a format
// constraint and is not checked at runtime.
package tabular

import (
	"fmt"
	"strings"

	"github.com/freshstart/freshstart/internal/store"
)

// Schema declares the column layout of a dataset.
type Schema struct {
	Dataset store.Dataset

	// Columns are the header names, in order.
	Columns []string

	// DeclareHeader writes a "# headerRow = N" comment before the header
	// line when encoding.
	DeclareHeader bool

	// Preamble is written as documentation comments ahead of the
	// declaration. Each entry is written with a leading "# ".
	Preamble []string
}

// HeaderToken is the header line as written by Encode.
func (s *Schema) HeaderToken() string {
	return strings.Join(s.Columns, "\t")
}

// Declared per-dataset schemas.
var (
	ProgressSchema = &Schema{
		Dataset: store.UserData,
		Columns: []string{"ID", "NRD", "LEVEL"},
	}

	EventSchema = &Schema{
		Dataset:       store.Events,
		Columns:       []string{"ID", "ACTION", "RESULT", "DURATION", "SDAY", "A/P"},
		DeclareHeader: true,
		Preamble: []string{
			"events: one row per study response",
			"RESULT is 0, 0.5 or 1 for reviews, DURATION is in seconds",
			"SDAY is the sprint day, A/P marks active or passive recall",
		},
	}

	ImprovesSchema = &Schema{
		Dataset:       store.Improves,
		Columns:       []string{"ID"},
		DeclareHeader: true,
	}

	SettingsSchema = &Schema{
		Dataset: store.Settings,
		Columns: []string{"KEY", "VALUE"},
	}

	CurriculumSchema = &Schema{
		Dataset: store.Curriculum,
		Columns: []string{
			"ID", "QUESTION", "ANSWER", "AUDIO", "INFO", "CLUE", "THEME",
			"SUBTYPE", "LEVEL", "SEQ", "TYPE", "PERSON", "TENSE", "COMMENT",
		},
	}
)

// SchemaFor returns the declared schema of a dataset.
func SchemaFor(d store.Dataset) (*Schema, error) {
	switch d {
	case store.UserData:
		return ProgressSchema, nil
	case store.Events:
		return EventSchema, nil
	case store.Improves:
		return ImprovesSchema, nil
	case store.Settings:
		return SettingsSchema, nil
	case store.Curriculum:
		return CurriculumSchema, nil
	default:
		return nil, fmt.Errorf("%w: %q", store.ErrUnknownDataset, string(d))
	}
}
