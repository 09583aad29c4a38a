// Package report renders disclosure reports as spreadsheets.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"healthcommons/internal/authorization/models"
	id "healthcommons/pkg/domain"
)

const (
	SummarySheet = "Disclosures"
	LogSheet     = "Access Log"
)

var (
	summaryHeaders = []string{"Accessor", "Granted", "Denied", "Emergency", "Categories", "Last Access"}
	logHeaders     = []string{"Time", "Accessor", "Category", "Permission", "Outcome", "Reason", "Emergency", "Justification", "Client"}
)

// WriteXLSX writes the report as a workbook with a per-accessor summary
// sheet and the underlying access log.
func WriteXLSX(w io.Writer, r *models.DisclosureReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if _, err := f.NewSheet(LogSheet); err != nil {
		return fmt.Errorf("create log sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	summary := make([][]any, 0, len(r.Accessors))
	for _, a := range r.Accessors {
		summary = append(summary, []any{
			a.Accessor.String(), a.Granted, a.Denied, a.Emergency,
			joinCategories(a.Categories), a.LastAccess.UTC().Format(time.RFC3339),
		})
	}
	if err := writeTable(f, SummarySheet, summaryHeaders, summary, headerStyle); err != nil {
		return err
	}

	rows := make([][]any, 0, len(r.Logs))
	for _, l := range r.Logs {
		rows = append(rows, []any{
			l.AccessedAt.UTC().Format(time.RFC3339), l.Requester.String(), string(l.Category),
			string(l.Permission), string(l.Outcome), l.Reason, l.EmergencyOverride,
			l.Justification, l.ClientSummary,
		})
	}
	if err := writeTable(f, LogSheet, logHeaders, rows, headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, headers []string, rows [][]any, headerStyle int) error {
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return fmt.Errorf("set header %s: %w", header, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header %s: %w", header, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, name, name, 20); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func joinCategories(cs []id.DataCategory) string {
	return strings.Join(id.CategoriesToStrings(cs), ", ")
}
