package pipeline

import (
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"mailtriage/internal"
)

func ExportResultsToXLSX(rows []internal.ResultExportRow, outputPath string) error {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	headers := []string{
		"email_id", "subject",
		"request_type", "sub_request_type", "duplicate_flag", "confidence_score",
		"assigned_to", "role", "context", "extracted_data", "processed_at",
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, row := range rows {
		r := i + 2
		set := func(col int, value any) {
			cell, _ := excelize.CoordinatesToCellName(col, r)
			_ = f.SetCellValue(sheet, cell, value)
		}

		set(1, row.EmailID)
		set(2, row.Subject)
		set(3, row.RequestType)
		set(4, row.SubRequestType)
		set(5, row.Duplicate)
		set(6, row.ConfidenceScore)
		set(7, row.AssignedTo)
		set(8, row.Role)
		set(9, row.Context)
		set(10, row.ExtractedJSON)
		set(11, row.ProcessedAt)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}
