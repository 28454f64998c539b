package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

type TaxonomyImportRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

type TaxonomyImportReport struct {
	TotalRows   int                      `json:"total_rows"`
	SuccessRows int                      `json:"success_rows"`
	FailedRows  int                      `json:"failed_rows"`
	Comarcas    int                      `json:"comarcas"`
	Errors      []TaxonomyImportRowError `json:"errors"`
}

var taxonomyColumns = []string{"comarca_id", "comarca_name", "municipio_id", "municipio_name"}

// ExportTaxonomyExcel writes one row per municipio, in the column layout
// ImportTaxonomyExcel reads back.
func ExportTaxonomyExcel(t *Taxonomy) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i, h := range taxonomyColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	row := 2
	for _, c := range t.Comarcas {
		for _, m := range c.Municipios {
			values := []any{c.ID, c.Name, m.ID, m.Name}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				_ = f.SetCellValue(sheet, cell, v)
			}
			row++
		}
	}
	_ = f.SetColWidth(sheet, "A", "D", 28)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportTaxonomyExcel builds a taxonomy from the first sheet of a workbook.
// Bad rows are skipped and reported; the import fails only when no usable
// taxonomy remains.
func ImportTaxonomyExcel(r io.Reader) (*Taxonomy, *TaxonomyImportReport, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, nil, fmt.Errorf("open excel: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("excel sheet is empty")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil, errors.New("no data rows found")
	}

	header := map[string]int{}
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range []string{"comarca_id", "municipio_id"} {
		if _, ok := header[col]; !ok {
			return nil, nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	t := &Taxonomy{}
	pos := map[string]int{}
	seen := map[string]struct{}{}
	report := &TaxonomyImportReport{Errors: make([]TaxonomyImportRowError, 0)}
	for i := 1; i < len(rows); i++ {
		rowNo := i + 1
		row := rows[i]

		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}

		comarcaID := strings.ToLower(get("comarca_id"))
		municipioID := strings.ToLower(get("municipio_id"))
		if comarcaID == "" && municipioID == "" {
			continue
		}
		report.TotalRows++

		if comarcaID == "" || municipioID == "" {
			report.FailedRows++
			report.Errors = append(report.Errors, TaxonomyImportRowError{Row: rowNo, Error: "comarca_id and municipio_id are required"})
			continue
		}
		key := comarcaID + "/" + municipioID
		if _, dup := seen[key]; dup {
			report.FailedRows++
			report.Errors = append(report.Errors, TaxonomyImportRowError{Row: rowNo, Error: "duplicate municipio " + key})
			continue
		}
		seen[key] = struct{}{}

		idx, ok := pos[comarcaID]
		if !ok {
			name := get("comarca_name")
			if name == "" {
				name = comarcaID
			}
			t.Comarcas = append(t.Comarcas, Comarca{ID: comarcaID, Name: name})
			idx = len(t.Comarcas) - 1
			pos[comarcaID] = idx
		}
		name := get("municipio_name")
		if name == "" {
			name = municipioID
		}
		t.Comarcas[idx].Municipios = append(t.Comarcas[idx].Municipios, Municipio{ID: municipioID, Name: name})
		report.SuccessRows++
	}
	report.Comarcas = len(t.Comarcas)

	if err := t.validate(); err != nil {
		return nil, report, err
	}
	return t, report, nil
}

// LoadTaxonomyExcelFile is ImportTaxonomyExcel over a file on disk.
func LoadTaxonomyExcelFile(path string) (*Taxonomy, *TaxonomyImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open taxonomy file: %w", err)
	}
	defer f.Close()
	return ImportTaxonomyExcel(f)
}
