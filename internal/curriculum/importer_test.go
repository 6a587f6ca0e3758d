package curriculum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/freshstart/freshstart/internal/store/cache"
	"github.com/freshstart/freshstart/internal/store/tabular"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestImport_TSV(t *testing.T) {
	text := tabular.EncodeCurriculum([]tabular.Item{
		{ID: 1, Question: "hello", Answer: "hola", Seq: 2},
		{ID: 2, Question: "bye", Answer: "adiós"},
	})
	res, err := Import(ImportConfig{FilePath: writeFile(t, "c.tsv", text)})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(res.Items) != 2 || res.Items[0].Seq != 2 || res.Items[1].Answer != "adiós" {
		t.Errorf("Import() items = %+v", res.Items)
	}
}

func TestImport_CSV(t *testing.T) {
	csv := "title row\n" +
		"id,answer,question,tense\n" +
		"1,hola,hello,\n" +
		"x,bad,row,\n" +
		",,,\n" +
		"2,\"voy, vas\",I go,present\n" +
		"1,buenas,hi,\n"
	res, err := Import(ImportConfig{FilePath: writeFile(t, "c.csv", csv)})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(res.Items), res.Items)
	}
	if res.Items[0].ID != 1 || res.Items[0].Answer != "buenas" {
		t.Errorf("duplicate id did not keep last row: %+v", res.Items[0])
	}
	if res.Items[1].Answer != "voy, vas" || res.Items[1].Tense != "present" {
		t.Errorf("item 2 = %+v", res.Items[1])
	}
	if res.Skipped != 1 || len(res.Errors) != 1 {
		t.Errorf("Skipped = %d, Errors = %v", res.Skipped, res.Errors)
	}
}

func TestImport_Excel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.xlsx")
	f := excelize.NewFile()
	rows := [][]interface{}{
		{"ID", "QUESTION", "ANSWER", "THEME"},
		{1, "cat", "gato", "animals"},
		{2, "dog", "perro\tsalchicha", "animals"},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
	f.Close()

	res, err := Import(ImportConfig{FilePath: path})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("got %d items, want 2", len(res.Items))
	}
	if res.Items[1].Answer != "perro salchicha" || res.Items[0].Theme != "animals" {
		t.Errorf("items = %+v", res.Items)
	}
}

func TestImport_Errors(t *testing.T) {
	if _, err := Import(ImportConfig{FilePath: "x.pdf"}); err == nil {
		t.Error("Import(.pdf) error = nil")
	}
	if _, err := Import(ImportConfig{FilePath: writeFile(t, "c.csv", "a,b\n1,2\n")}); err == nil {
		t.Error("Import() without ID header error = nil")
	}
}

func TestInstallAndLoad(t *testing.T) {
	c := cache.NewMemory(0)
	if items, err := Load(c); err != nil || items != nil {
		t.Fatalf("Load() on empty cache = %v, %v", items, err)
	}

	items := []tabular.Item{{ID: 3, Question: "uno"}, {ID: 4, Question: "dos"}}
	if err := Install(c, items); err != nil {
		t.Fatalf("Install() error = %v", err)
	}
	got, err := Load(c)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if Lookup(got)[4].Question != "dos" {
		t.Errorf("Load() = %+v", got)
	}
}
