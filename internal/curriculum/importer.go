// Package curriculum imports study content into the Curriculum dataset.
//
// Sources are tab-separated files in the dataset's own format, CSV files
// and Excel workbooks. Columns are matched by header name, so a source
// may order or omit columns freely; only ID is required.
package curriculum

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/freshstart/freshstart/internal/store"
	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/tabular"
)

// ImportConfig defines where items are read from.
type ImportConfig struct {
	FilePath  string // .tsv, .txt, .csv or .xlsx
	SheetName string // workbook sheet; the first sheet when empty
}

// ImportResult holds the outcome of an import.
type ImportResult struct {
	Items   []tabular.Item
	Skipped int      // rows without a usable id
	Errors  []string // one entry per skipped row
}

// Import reads curriculum items from a file. Duplicate ids keep the last
// row.
func Import(config ImportConfig) (*ImportResult, error) {
	ext := strings.ToLower(filepath.Ext(config.FilePath))
	switch ext {
	case ".tsv", ".txt":
		return importTabular(config.FilePath)
	case ".csv":
		return importCSV(config.FilePath)
	case ".xlsx", ".xlsm":
		return importExcel(config)
	default:
		return nil, fmt.Errorf("unsupported curriculum file type %q", ext)
	}
}

func importTabular(path string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curriculum file: %w", err)
	}
	items, err := tabular.DecodeCurriculum(string(data))
	if err != nil {
		return nil, err
	}
	return &ImportResult{Items: dedupe(items)}, nil
}

func importCSV(path string) (*ImportResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return fromRows(rows)
}

func importExcel(config ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := config.SheetName
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return fromRows(rows)
}

// fromRows maps header-named columns onto items. The header is the first
// row whose first cell is ID.
func fromRows(rows [][]string) (*ImportResult, error) {
	header := -1
	for i, row := range rows {
		if len(row) > 0 && strings.EqualFold(strings.TrimSpace(row[0]), "ID") {
			header = i
			break
		}
	}
	if header < 0 {
		return nil, &store.FormatError{Dataset: store.Curriculum, Reason: "no ID header row"}
	}

	columns := tabular.CurriculumSchema.Columns
	index := make([]int, len(columns))
	for i := range index {
		index[i] = -1
	}
	for j, name := range rows[header] {
		for i, col := range columns {
			if strings.EqualFold(strings.TrimSpace(name), col) {
				index[i] = j
			}
		}
	}

	result := &ImportResult{}
	var items []tabular.Item
	for n, row := range rows[header+1:] {
		line := header + n + 2
		if blank(row) {
			continue
		}
		rec := make(tabular.Record, len(columns))
		for i, j := range index {
			if j >= 0 && j < len(row) {
				rec[i] = strings.TrimSpace(row[j])
			}
		}
		if _, err := strconv.Atoi(rec[0]); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: invalid id %q", line, rec[0]))
			continue
		}
		// Tabs and newlines inside cells would break the dataset's rows.
		for i := range rec {
			rec[i] = strings.Join(strings.Fields(rec[i]), " ")
		}
		it, err := tabular.ParseItem(rec, line)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	result.Items = dedupe(items)
	return result, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func dedupe(items []tabular.Item) []tabular.Item {
	pos := make(map[int]int, len(items))
	out := items[:0:0]
	for _, it := range items {
		if i, ok := pos[it.ID]; ok {
			out[i] = it
			continue
		}
		pos[it.ID] = len(out)
		out = append(out, it)
	}
	return out
}

// Install replaces the Curriculum dataset in the cache with items.
func Install(c cache.Cache, items []tabular.Item) error {
	if err := c.Set(store.Curriculum.String(), tabular.EncodeCurriculum(items)); err != nil {
		return fmt.Errorf("failed to install curriculum: %w", err)
	}
	return nil
}

// Load returns the curriculum held in the cache. An absent dataset is
// empty.
func Load(c cache.Cache) ([]tabular.Item, error) {
	text, err := cache.Dataset(c, store.Curriculum)
	if errors.Is(err, store.ErrAbsent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tabular.DecodeCurriculum(text)
}

// Lookup indexes items by id.
func Lookup(items []tabular.Item) map[int]tabular.Item {
	m := make(map[int]tabular.Item, len(items))
	for _, it := range items {
		m[it.ID] = it
	}
	return m
}
