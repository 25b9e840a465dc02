package dataset

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadCSV_BOMAndTrimming(t *testing.T) {
	in := "\uFEFFdate, value\n2024-01-01, 3\n2024-01-02, 4\n"
	ds, err := ReadCSV(strings.NewReader(in), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := ds.Names()
	if names[0] != "date" || names[1] != "value" {
		t.Fatalf("names = %v", names)
	}
	v, _ := ds.Column("value")
	if v.Storage != StorageNumeric {
		t.Fatalf("value should be numeric")
	}
}

func TestReadCSV_EmptyInput(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(""), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Columns) != 0 || ds.Rows() != 0 {
		t.Fatalf("want empty dataset, got %d cols", len(ds.Columns))
	}
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("a,b\n"), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.Columns) != 2 || ds.Rows() != 0 {
		t.Fatalf("want 2 cols 0 rows, got %d cols %d rows", len(ds.Columns), ds.Rows())
	}
}

func TestReadCSV_MaxRows(t *testing.T) {
	in := "n\n1\n2\n3\n4\n"
	ds, err := ReadCSV(strings.NewReader(in), Options{MaxRows: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows() != 2 {
		t.Fatalf("rows = %d, want 2", ds.Rows())
	}
	if !ds.Truncated() || ds.SourceRows != 4 {
		t.Fatalf("truncated=%v source rows=%d, want 4", ds.Truncated(), ds.SourceRows)
	}
}

func TestReadCSV_DefaultReadsEveryRow(t *testing.T) {
	var b strings.Builder
	b.WriteString("n\n")
	const total = 100005
	for i := 0; i < total; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	ds, err := ReadCSV(strings.NewReader(b.String()), DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Rows() != total || ds.Truncated() {
		t.Fatalf("rows=%d truncated=%v, want %d rows", ds.Rows(), ds.Truncated(), total)
	}
	c, _ := ds.Column("n")
	if c.Distinct() != total {
		t.Fatalf("distinct = %d", c.Distinct())
	}
}

func TestReadCSV_SyntaxError(t *testing.T) {
	in := "a,b\n\"unterminated,1\n"
	if _, err := ReadCSV(strings.NewReader(in), DefaultOptions()); err == nil {
		t.Fatalf("expected parse error for unterminated quote")
	}
}

func TestLoadCSV_TSV(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "data.tsv")
	if err := os.WriteFile(p, []byte("a\tb\nx\t1\ny\t2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	ds, err := Load(p, DefaultOptions())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ds.Columns) != 2 || ds.Rows() != 2 {
		t.Fatalf("want 2x2, got %d cols %d rows", len(ds.Columns), ds.Rows())
	}
}

func TestLoadCSV_Missing(t *testing.T) {
	if _, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"), DefaultOptions()); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func writeTestXLSX(t *testing.T, p string) {
	t.Helper()
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	files := map[string]string{
		"xl/workbook.xml": `<?xml version="1.0"?><workbook><sheets>` +
			`<sheet name="Summary" sheetId="1" r:id="rId1"/>` +
			`<sheet name="Data" sheetId="2" r:id="rId2"/></sheets></workbook>`,
		"xl/_rels/workbook.xml.rels": `<?xml version="1.0"?><Relationships>` +
			`<Relationship Id="rId1" Target="worksheets/sheet1.xml"/>` +
			`<Relationship Id="rId2" Target="/xl/worksheets/sheet2.xml"/></Relationships>`,
		"xl/sharedStrings.xml": `<?xml version="1.0"?><sst>` +
			`<si><t>month</t></si><si><t>revenue</t></si><si><t>2024-01</t></si><si><t>2024-02</t></si></sst>`,
		"xl/worksheets/sheet1.xml": `<?xml version="1.0"?><worksheet><sheetData>` +
			`<row r="1"><c r="A1" t="inlineStr"><is><t>only</t></is></c></row></sheetData></worksheet>`,
		"xl/worksheets/sheet2.xml": `<?xml version="1.0"?><worksheet><sheetData>` +
			`<row r="1"><c r="A1" t="s"><v>0</v></c><c r="B1" t="s"><v>1</v></c></row>` +
			`<row r="2"><c r="A2" t="s"><v>2</v></c><c r="B2"><v>100.5</v></c></row>` +
			`<row r="3"><c r="A3" t="s"><v>3</v></c></row>` +
			`</sheetData></worksheet>`,
	}
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestLoadXLSX_SelectSheet(t *testing.T) {
	p := filepath.Join(t.TempDir(), "book.xlsx")
	writeTestXLSX(t, p)

	ds, err := Load(p, Options{Sheet: "data"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := ds.Names(); len(got) != 2 || got[0] != "month" || got[1] != "revenue" {
		t.Fatalf("names = %v", got)
	}
	if ds.Rows() != 2 {
		t.Fatalf("rows = %d, want 2", ds.Rows())
	}
	rev, _ := ds.Column("revenue")
	if rev.Storage != StorageNumeric || !rev.IsNull(1) {
		t.Fatalf("revenue storage=%s null(1)=%v", rev.Storage, rev.IsNull(1))
	}

	first, err := LoadXLSX(p, Options{})
	if err != nil {
		t.Fatalf("load first: %v", err)
	}
	if got := first.Names(); len(got) != 1 || got[0] != "only" {
		t.Fatalf("first sheet names = %v", got)
	}
}

func TestLoadXLSX_MaxRowsCountsSource(t *testing.T) {
	p := filepath.Join(t.TempDir(), "book.xlsx")
	writeTestXLSX(t, p)

	ds, err := Load(p, Options{Sheet: "data", MaxRows: 1})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.Rows() != 1 || ds.SourceRows != 2 {
		t.Fatalf("rows=%d source rows=%d", ds.Rows(), ds.SourceRows)
	}
}

func TestLoadXLSX_UnknownSheet(t *testing.T) {
	p := filepath.Join(t.TempDir(), "book.xlsx")
	writeTestXLSX(t, p)
	_, err := LoadXLSX(p, Options{Sheet: "Nope"})
	if err == nil || !strings.Contains(err.Error(), "Available sheets: Summary, Data") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestColIndexFromRef(t *testing.T) {
	cases := map[string]int{"A1": 0, "B7": 1, "Z3": 25, "AA10": 26, "": -1}
	for ref, want := range cases {
		if got := colIndexFromRef(ref); got != want {
			t.Fatalf("colIndexFromRef(%q) = %d, want %d", ref, got, want)
		}
	}
}
