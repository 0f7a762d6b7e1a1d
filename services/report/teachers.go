package reportsvc

import (
	"io"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/greesoft/canteen/core"
	"github.com/greesoft/canteen/core/record"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	teachersSheet   = "Teachers"
)

var teacherHeadings = []string{"Teacher", "Email", "Records", "Total Collected"}

// TeacherSummariesFilename names the export after its date range.
func TeacherSummariesFilename(dr core.DateRange) string {
	name := "teacher-summaries"
	if !dr.From.IsZero() {
		name += "_" + dr.From.Format(core.DayLayout)
	}
	if !dr.To.IsZero() {
		name += "_" + dr.To.Format(core.DayLayout)
	}
	return name + ".xlsx"
}

// WriteTeacherSummaries writes the totals as an xlsx workbook with a trailing grand total row.
func WriteTeacherSummaries(w io.Writer, totals []record.TeacherTotal) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", teachersSheet); err != nil {
		return errors.Wrap(err, "naming sheet")
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return errors.Wrap(err, "creating header style")
	}

	for i, h := range teacherHeadings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(teachersSheet, cell, h); err != nil {
			return errors.Wrap(err, "writing headings")
		}
	}
	if err := f.SetCellStyle(teachersSheet, "A1", "D1", bold); err != nil {
		return errors.Wrap(err, "styling headings")
	}

	var grandCount int
	for i, tt := range totals {
		row := i + 2
		values := []interface{}{tt.Name, tt.Email, tt.RecordsCount, tt.TotalAmount.InexactFloat64()}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(teachersSheet, cell, v); err != nil {
				return errors.Wrapf(err, "writing row %d", row)
			}
		}
		grandCount += tt.RecordsCount
	}

	last := len(totals) + 2
	totalRow := []interface{}{"Total", "", grandCount}
	for col, v := range totalRow {
		cell, _ := excelize.CoordinatesToCellName(col+1, last)
		if err := f.SetCellValue(teachersSheet, cell, v); err != nil {
			return errors.Wrap(err, "writing total row")
		}
	}
	sumCell, _ := excelize.CoordinatesToCellName(4, last)
	if len(totals) > 0 {
		endCell, _ := excelize.CoordinatesToCellName(4, last-1)
		if err := f.SetCellFormula(teachersSheet, sumCell, "SUM(D2:"+endCell+")"); err != nil {
			return errors.Wrap(err, "writing total formula")
		}
	} else if err := f.SetCellValue(teachersSheet, sumCell, 0); err != nil {
		return errors.Wrap(err, "writing total")
	}
	rowStart, _ := excelize.CoordinatesToCellName(1, last)
	if err := f.SetCellStyle(teachersSheet, rowStart, sumCell, bold); err != nil {
		return errors.Wrap(err, "styling total row")
	}
	if err := f.SetColWidth(teachersSheet, "A", "B", 28); err != nil {
		return errors.Wrap(err, "sizing columns")
	}

	return errors.Wrap(f.Write(w), "writing workbook")
}
