package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// QualifiedRow 通过尽调的申请(导出读模型)
type QualifiedRow struct {
	ApplicationID uint       `json:"application_id"`
	BusinessName  string     `json:"business_name"`
	ApplicantName string     `json:"applicant_name"`
	County        string     `json:"county"`
	Sector        string     `json:"sector"`
	Track         string     `json:"track"`
	DDScore       *float64   `json:"dd_score,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ReviewerNames []string   `json:"reviewer_names"`
}

// QualifiedHeader 导出表头
var QualifiedHeader = []string{
	"Application ID",
	"Business Name",
	"Applicant Name",
	"County",
	"Sector",
	"Track",
	"DD Score",
	"Completion Date",
	"Reviewers",
}

const sheetName = "Qualified"

// record 将一行转换为字符串列
func (r *QualifiedRow) record() []string {
	score := ""
	if r.DDScore != nil {
		score = strconv.FormatFloat(*r.DDScore, 'f', 2, 64)
	}
	completed := ""
	if r.CompletedAt != nil {
		completed = r.CompletedAt.UTC().Format("2006-01-02")
	}
	return []string{
		strconv.FormatUint(uint64(r.ApplicationID), 10),
		r.BusinessName,
		r.ApplicantName,
		r.County,
		r.Sector,
		r.Track,
		score,
		completed,
		strings.Join(r.ReviewerNames, "; "),
	}
}

// WriteQualifiedCSV 以 CSV 格式写出
func WriteQualifiedCSV(w io.Writer, rows []*QualifiedRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(QualifiedHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row.record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteQualifiedXLSX 以 Excel 格式写出
func WriteQualifiedXLSX(w io.Writer, rows []*QualifiedRow) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range QualifiedHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(QualifiedHeader), 1)
	if err := f.SetCellStyle(sheetName, "A1", lastHeader, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, row := range rows {
		values := []interface{}{
			row.ApplicationID,
			row.BusinessName,
			row.ApplicantName,
			row.County,
			row.Sector,
			row.Track,
			nil,
			nil,
			strings.Join(row.ReviewerNames, "; "),
		}
		if row.DDScore != nil {
			values[6] = *row.DDScore
		}
		if row.CompletedAt != nil {
			values[7] = row.CompletedAt.UTC().Format("2006-01-02")
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	widths := []float64{15, 30, 25, 15, 20, 15, 10, 16, 40}
	for col, width := range widths {
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheetName, name, name, width); err != nil {
			return err
		}
	}

	_, err = f.WriteTo(w)
	return err
}
