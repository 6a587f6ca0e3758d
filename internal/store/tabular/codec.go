package tabular

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/freshstart/freshstart/internal/store"
)

// headerScanLimit is how many leading lines are searched for a header row
// declaration.
const headerScanLimit = 10

var (
	headerRowPattern = regexp.MustCompile(`^#\s*headerRow\s*=\s*(\d+)`)
	lineBreak        = regexp.MustCompile(`\r\n|\r|\n`)
)

// Record is one data line split into trimmed fields. Decode pads records
// to the schema's column count; fields beyond it are kept.
type Record []string

// Field returns the i-th field or "" when the record is shorter.
func (r Record) Field(i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

// splitLines splits on any of \r\n, \r or \n.
func splitLines(text string) []string {
	return lineBreak.Split(text, -1)
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// holdsRecord reports whether a line after the header is a data line. A
// line with a tab is a record even when every field is empty.
func holdsRecord(line string) bool {
	if isComment(line) {
		return false
	}
	return strings.ContainsRune(line, '\t') || !isBlank(line)
}

// isEmpty reports whether text holds nothing but whitespace.
func isEmpty(text string) bool {
	return strings.TrimSpace(text) == ""
}

// findHeader locates the header line of a blob.
func findHeader(lines []string, s *Schema) (int, error) {
	limit := headerScanLimit
	if len(lines) < limit {
		limit = len(lines)
	}

	// 1. Declared position
	for i := 0; i < limit; i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "#") {
			continue
		}
		m := headerRowPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(lines) {
			return 0, &store.FormatError{
				Dataset: s.Dataset,
				Line:    i + 1,
				Reason:  fmt.Sprintf("declared header row %s is out of range", m[1]),
			}
		}
		idx := n - 1
		if isBlank(lines[idx]) || isComment(lines[idx]) {
			return 0, &store.FormatError{
				Dataset: s.Dataset,
				Line:    n,
				Reason:  "declared header row is blank or a comment",
			}
		}
		return idx, nil
	}

	// 2. Header token
	token := s.HeaderToken()
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), token) {
			return i, nil
		}
	}

	// 3. First non-empty, non-comment line
	for i, line := range lines {
		if !isBlank(line) && !isComment(line) {
			return i, nil
		}
	}

	return 0, &store.FormatError{Dataset: s.Dataset, Reason: "no header line"}
}

// checkHeader verifies the header line names the schema's key column.
func checkHeader(line string, idx int, s *Schema) error {
	first := strings.TrimSpace(strings.Split(line, "\t")[0])
	if !strings.EqualFold(first, s.Columns[0]) {
		return &store.FormatError{
			Dataset: s.Dataset,
			Line:    idx + 1,
			Reason:  fmt.Sprintf("header starts with %q, want %q", first, s.Columns[0]),
		}
	}
	return nil
}

// splitFields splits a data line on tabs, trims each field and pads the
// result to the schema width.
func splitFields(line string, width int) Record {
	parts := strings.Split(line, "\t")
	n := len(parts)
	if n < width {
		n = width
	}
	rec := make(Record, n)
	for i, p := range parts {
		rec[i] = strings.TrimSpace(p)
	}
	return rec
}

// dataLines returns the indexes of data lines after the header.
func dataLines(lines []string, header int) []int {
	var idx []int
	for i := header + 1; i < len(lines); i++ {
		if holdsRecord(lines[i]) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Decode parses a blob into records. Text holding only whitespace decodes
// to no records. A blob without a usable header is a *store.FormatError.
func Decode(text string, s *Schema) ([]Record, error) {
	doc, err := Parse(text, s)
	if err != nil {
		return nil, err
	}
	return doc.Records(), nil
}

// Encode serializes records with the schema's preamble, optional header
// declaration and header line. The result ends with a newline.
//
// Field values must not contain tabs or newlines, and a one-column record
// must not be empty: such a line decodes as blank.
func Encode(records []Record, s *Schema) string {
	var b strings.Builder
	writeHead(&b, s)
	for _, rec := range records {
		b.WriteString(strings.Join(rec, "\t"))
		b.WriteByte('\n')
	}
	return b.String()
}

func writeHead(b *strings.Builder, s *Schema) {
	for _, c := range s.Preamble {
		b.WriteString("# ")
		b.WriteString(c)
		b.WriteByte('\n')
	}
	if s.DeclareHeader {
		// The declaration sits right above the header line.
		fmt.Fprintf(b, "# headerRow = %d\n", len(s.Preamble)+2)
	}
	b.WriteString(s.HeaderToken())
	b.WriteByte('\n')
}

// atoiOr parses an integer, returning def for empty or non-numeric input.
func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
