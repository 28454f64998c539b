package auth

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

type AdminImportRowError struct {
	Row   int    `json:"row"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

type AdminImportReport struct {
	TotalRows   int                   `json:"total_rows"`
	SuccessRows int                   `json:"success_rows"`
	FailedRows  int                   `json:"failed_rows"`
	Errors      []AdminImportRowError `json:"errors"`
}

type adminRow struct {
	Row      int
	Email    string
	FullName string
	Password string
	Active   bool
}

var adminSheetHeaders = []string{"email", "full_name", "is_active", "created_at"}

func (s *Service) ListAdmins(ctx context.Context) ([]Admin, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email, full_name, is_active, created_at
		FROM admin_users
		ORDER BY email
	`)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var out []Admin
	for rows.Next() {
		var a Admin
		if err := rows.Scan(&a.ID, &a.Email, &a.FullName, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Service) ExportAdminsExcel(ctx context.Context) ([]byte, error) {
	items, err := s.ListAdmins(ctx)
	if err != nil {
		return nil, err
	}
	return writeAdminsExcel(items)
}

func writeAdminsExcel(items []Admin) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	for i, h := range adminSheetHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, it := range items {
		values := []any{it.Email, it.FullName, it.IsActive, it.CreatedAt.Format("2006-01-02 15:04:05")}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, i+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	_ = f.SetColWidth(sheet, "A", "D", 28)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}

// ImportAdminsExcel creates the accounts listed in the first sheet. Existing
// emails are reported as failed rows; rows with is_active false are created
// and then deactivated.
func (s *Service) ImportAdminsExcel(ctx context.Context, r io.Reader) (*AdminImportReport, error) {
	rows, report, err := readAdminRows(r)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if _, err := s.CreateAdmin(ctx, CreateAdminInput{
			Email:    row.Email,
			FullName: row.FullName,
			Password: row.Password,
		}); err != nil {
			report.fail(row.Row, row.Email, err.Error())
			continue
		}
		if !row.Active {
			if err := s.DeactivateAdmin(ctx, row.Email); err != nil {
				report.fail(row.Row, row.Email, err.Error())
				continue
			}
		}
		report.SuccessRows++
	}
	return report, nil
}

// readAdminRows parses and validates the sheet without touching the
// database. Invalid rows are recorded in the report and left out.
func readAdminRows(r io.Reader) ([]adminRow, *AdminImportReport, error) {
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
	for _, col := range []string{"email", "password"} {
		if _, ok := header[col]; !ok {
			return nil, nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	report := &AdminImportReport{Errors: make([]AdminImportRowError, 0)}
	var out []adminRow
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		get := func(key string) string {
			idx, ok := header[key]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		report.TotalRows++

		in := CreateAdminInput{Email: get("email"), FullName: get("full_name"), Password: get("password")}
		email, fullName, err := validateAdminInput(in)
		if err != nil {
			report.fail(i+1, normalizeEmail(in.Email), err.Error())
			continue
		}
		out = append(out, adminRow{
			Row:      i + 1,
			Email:    email,
			FullName: fullName,
			Password: in.Password,
			Active:   parseBoolLoose(get("is_active")),
		})
	}
	return out, report, nil
}

func (r *AdminImportReport) fail(row int, email, msg string) {
	r.FailedRows++
	r.Errors = append(r.Errors, AdminImportRowError{Row: row, Email: email, Error: msg})
}

func parseBoolLoose(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return true
	}
	switch v {
	case "1", "true", "si", "sí", "yes", "activo":
		return true
	case "0", "false", "no", "inactivo":
		return false
	default:
		if n, err := strconv.Atoi(v); err == nil {
			return n != 0
		}
		return true
	}
}
