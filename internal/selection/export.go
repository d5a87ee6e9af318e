package selection

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Ashfaaq98/imaging-case-console/internal/cases"
)

// Exporter writes records to a file.
type Exporter interface {
	Export(path string, recs []cases.Record) error
}

// ExportSheet is the worksheet name used for case exports.
const ExportSheet = "Cases"

// ExportHeader is the header row of a case export.
var ExportHeader = []string{
	"Case ID", "Patient", "Patient ID", "Image Type", "Body Part", "Status",
	"Priority", "Severity", "AI Confidence", "Display Confidence", "Source",
	"Assigned To", "Findings", "Created", "Updated",
}

// XLSXExporter writes an Excel workbook with one row per case.
type XLSXExporter struct{}

// Export writes recs to path, creating parent directories.
func (XLSXExporter) Export(path string, recs []cases.Record) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory %s: %w", dir, err)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ExportSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to drop default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(ExportHeader))
	for i, h := range ExportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(ExportHeader), 1)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetCellStyle(ExportSheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}

	for i, r := range recs {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		d := r.Display()
		row := []interface{}{
			r.ID, r.PatientName, r.PatientID, r.ImageType, r.BodyPart, string(r.Status),
			string(r.Priority), r.SeverityRating, r.AIConfidence, d.Confidence, string(r.Source),
			r.AssignedTo, r.Findings, formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// Freeze header
	if err := f.SetPanes(ExportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save export %s: %w", path, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
