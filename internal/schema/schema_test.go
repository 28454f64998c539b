package schema

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDefaultSurvey(t *testing.T) {
	s := DefaultSurvey()
	if s.Version != "v1_MVP" {
		t.Fatalf("expected version v1_MVP, got %q", s.Version)
	}
	if len(s.Sections) != 6 {
		t.Fatalf("expected 6 sections, got %d", len(s.Sections))
	}

	q, ok := s.Question("tecnologias_ia")
	if !ok {
		t.Fatalf("tecnologias_ia not indexed")
	}
	if q.Type != TypeMultiselect {
		t.Fatalf("expected multiselect, got %s", q.Type)
	}
	if got := q.OptionLabel("no_uso"); got != "No utilizo IA" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := q.OptionLabel("unknown"); got != "unknown" {
		t.Fatalf("expected label fallback to value, got %q", got)
	}

	edad, _ := s.Question("edad_rango")
	if edad.Options[1].Value != "35_54" {
		t.Fatalf("option value must stay a string, got %q", edad.Options[1].Value)
	}

	ia, _ := s.Question("ia_mejora_prod")
	if ia.Options[1].Value != "no" {
		t.Fatalf("expected literal no option, got %q", ia.Options[1].Value)
	}

	required := s.Required()
	if len(required) == 0 || required[0] != "edad_rango" {
		t.Fatalf("unexpected required ids: %v", required)
	}
	for _, id := range required {
		if id == "necesidades_ideas" || id == "tecnologias_ia" {
			t.Fatalf("%s must be optional", id)
		}
	}
}

func TestLoadSurveyRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "no sections", yaml: "version: v1\nsections: []\n"},
		{name: "unknown type", yaml: "version: v1\nsections:\n  - id: a\n    questions:\n      - {id: q1, type: slider, label: Q}\n"},
		{name: "select without options", yaml: "version: v1\nsections:\n  - id: a\n    questions:\n      - {id: q1, type: select, label: Q}\n"},
		{name: "duplicate question", yaml: "version: v1\nsections:\n  - id: a\n    questions:\n      - {id: q1, type: text, label: Q}\n  - id: b\n    questions:\n      - {id: q1, type: text, label: Q}\n"},
		{name: "duplicate option", yaml: "version: v1\nsections:\n  - id: a\n    questions:\n      - {id: q1, type: radio, label: Q, options: [{value: x, label: X}, {value: x, label: Y}]}\n"},
		{name: "unknown field", yaml: "version: v1\ncolor: red\nsections:\n  - id: a\n    questions:\n      - {id: q1, type: text, label: Q}\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadSurvey(strings.NewReader(tc.yaml)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestNewSurveyWrapsInvalidSchema(t *testing.T) {
	_, err := NewSurvey("v1", []Section{{ID: "a", Questions: []Question{{ID: "", Type: TypeText}}}})
	if !errors.Is(err, ErrInvalidSchema) {
		t.Fatalf("expected ErrInvalidSchema, got %v", err)
	}
}

func TestTaxonomyLookups(t *testing.T) {
	tax := DefaultTaxonomy()

	if got := tax.FindComarca("tietar"); got != "Valle del Tiétar" {
		t.Fatalf("unexpected comarca name %q", got)
	}
	if got := tax.FindComarca("nowhere"); got != "nowhere" {
		t.Fatalf("expected id echo, got %q", got)
	}
	if got := tax.FindMunicipio("tietar", "candeleda"); got != "Candeleda" {
		t.Fatalf("unexpected municipio name %q", got)
	}
	if got := tax.FindMunicipio("morana", "candeleda"); got != "candeleda" {
		t.Fatalf("municipio of another comarca must echo id, got %q", got)
	}
	if got := tax.FindMunicipio("nowhere", "x"); got != "x" {
		t.Fatalf("expected id echo, got %q", got)
	}
	if n := len(tax.Municipios("gredos")); n != 3 {
		t.Fatalf("expected 3 municipios in gredos, got %d", n)
	}
	if ms := tax.Municipios("nowhere"); ms == nil || len(ms) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", ms)
	}
}

func TestTaxonomyContains(t *testing.T) {
	tax := DefaultTaxonomy()
	tests := []struct {
		name     string
		loc      Location
		contains bool
		valid    bool
	}{
		{name: "both empty", loc: Location{}, contains: true, valid: false},
		{name: "comarca only", loc: Location{Comarca: "avila"}, contains: true, valid: false},
		{name: "matching pair", loc: Location{Comarca: "avila", Municipio: "mingorria"}, contains: true, valid: true},
		{name: "municipio of other comarca", loc: Location{Comarca: "avila", Municipio: "arevalo"}, contains: false, valid: false},
		{name: "unknown comarca", loc: Location{Comarca: "madrid", Municipio: "arevalo"}, contains: false, valid: false},
		{name: "municipio without comarca", loc: Location{Municipio: "arevalo"}, contains: false, valid: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tax.Contains(tc.loc); got != tc.contains {
				t.Fatalf("Contains=%v, want %v", got, tc.contains)
			}
			if got := tax.ValidLocation(tc.loc); got != tc.valid {
				t.Fatalf("ValidLocation=%v, want %v", got, tc.valid)
			}
		})
	}
}

func TestTaxonomyExcelRoundTrip(t *testing.T) {
	want := DefaultTaxonomy()
	raw, err := ExportTaxonomyExcel(want)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	got, report, err := ImportTaxonomyExcel(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.FailedRows != 0 || report.Comarcas != len(want.Comarcas) {
		t.Fatalf("unexpected report: %+v", report)
	}
	if got.FindMunicipio("morana", "adraneros") != "Adanero" {
		t.Fatalf("municipio lost in round trip")
	}
}

func TestImportTaxonomyExcelReportsBadRows(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{
		{"comarca_id", "comarca_name", "municipio_id", "municipio_name"},
		{"norte", "Norte", "uno", "Uno"},
		{"norte", "Norte", "", "Sin id"},
		{"norte", "Norte", "uno", "Uno otra vez"},
		{"sur", "", "dos", ""},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	tax, report, err := ImportTaxonomyExcel(&buf)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if report.TotalRows != 4 || report.SuccessRows != 2 || report.FailedRows != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if tax.FindComarca("sur") != "sur" || tax.FindMunicipio("sur", "dos") != "dos" {
		t.Fatalf("missing names must fall back to ids")
	}
}

func TestImportTaxonomyExcelMissingColumn(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellValue(sheet, "A1", "comarca_id")
	_ = f.SetCellValue(sheet, "A2", "norte")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := ImportTaxonomyExcel(&buf); err == nil {
		t.Fatalf("expected missing column error")
	}
}
