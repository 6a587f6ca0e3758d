package tabular

import (
	"strings"
)

// Document is a parsed blob that can be edited in place. Comments, blank
// lines and unrelated rows are preserved on rewrite; line endings are
// normalized to \n.
type Document struct {
	schema *Schema
	lines  []string
	header int
}

// NewDocument returns an empty document holding only the schema's head.
func NewDocument(s *Schema) *Document {
	doc, err := Parse(Encode(nil, s), s)
	if err != nil {
		// Encode always writes a valid head.
		panic(err)
	}
	return doc
}

// Parse reads a blob into a document. Text holding only whitespace yields
// an empty document.
func Parse(text string, s *Schema) (*Document, error) {
	if isEmpty(text) {
		return NewDocument(s), nil
	}

	lines := splitLines(text)
	header, err := findHeader(lines, s)
	if err != nil {
		return nil, err
	}
	if err := checkHeader(lines[header], header, s); err != nil {
		return nil, err
	}

	return &Document{
		schema: s,
		lines:  lines,
		header: header,
	}, nil
}

// Schema returns the document's schema.
func (d *Document) Schema() *Schema {
	return d.schema
}

// HeaderLine returns the 1-based line number of the header.
func (d *Document) HeaderLine() int {
	return d.header + 1
}

// Records returns every data record in file order.
func (d *Document) Records() []Record {
	idx := dataLines(d.lines, d.header)
	recs := make([]Record, 0, len(idx))
	for _, i := range idx {
		recs = append(recs, splitFields(d.lines[i], len(d.schema.Columns)))
	}
	return recs
}

// Lines returns the 1-based line number of every data record, parallel to
// Records.
func (d *Document) Lines() []int {
	idx := dataLines(d.lines, d.header)
	for i := range idx {
		idx[i]++
	}
	return idx
}

// Len returns the number of data records.
func (d *Document) Len() int {
	return len(dataLines(d.lines, d.header))
}

// Find returns the first record whose key (first field) equals key.
func (d *Document) Find(key string) (Record, bool) {
	if i, ok := d.lineOf(key); ok {
		return splitFields(d.lines[i], len(d.schema.Columns)), true
	}
	return nil, false
}

// Update rewrites the first record whose key equals key. It reports false
// when no record matched.
func (d *Document) Update(key string, rec Record) bool {
	i, ok := d.lineOf(key)
	if !ok {
		return false
	}
	d.lines[i] = strings.Join(rec, "\t")
	return true
}

// UpdateLine rewrites the record on 1-based line n, as reported by Lines.
// It reports false when line n is not a data record.
func (d *Document) UpdateLine(n int, rec Record) bool {
	i := n - 1
	if i <= d.header || i >= len(d.lines) || !holdsRecord(d.lines[i]) {
		return false
	}
	d.lines[i] = strings.Join(rec, "\t")
	return true
}

// Upsert updates the record with the same key or appends it.
func (d *Document) Upsert(rec Record) {
	if !d.Update(rec.Field(0), rec) {
		d.Append(rec)
	}
}

// Append adds a record after the last line, keeping a trailing newline.
func (d *Document) Append(rec Record) {
	line := strings.Join(rec, "\t")
	n := len(d.lines)
	if n > 0 && d.lines[n-1] == "" {
		d.lines = append(d.lines[:n-1], line, "")
		return
	}
	d.lines = append(d.lines, line)
}

// Delete removes every record whose key equals key and returns how many
// were removed.
func (d *Document) Delete(key string) int {
	removed := 0
	kept := d.lines[:0:0]
	for i, line := range d.lines {
		if i > d.header && holdsRecord(line) && recordKey(line) == key {
			removed++
			continue
		}
		kept = append(kept, line)
	}
	d.lines = kept
	return removed
}

// String serializes the document.
func (d *Document) String() string {
	return strings.Join(d.lines, "\n")
}

func (d *Document) lineOf(key string) (int, bool) {
	for _, i := range dataLines(d.lines, d.header) {
		if recordKey(d.lines[i]) == key {
			return i, true
		}
	}
	return 0, false
}

func recordKey(line string) string {
	k, _, _ := strings.Cut(line, "\t")
	return strings.TrimSpace(k)
}
