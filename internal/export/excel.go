package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"booksync/internal/config"
	"booksync/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

// Source provides the booking snapshot to export.
type Source interface {
	All() []models.BookingRecord
}

// Exporter writes the current booking view into an Excel report.
type Exporter struct {
	cfg    config.ExportConfig
	source Source
	logger zerolog.Logger
}

func NewExporter(cfg config.ExportConfig, source Source, logger *zerolog.Logger) *Exporter {
	return &Exporter{
		cfg:    cfg,
		source: source,
		logger: logger.With().Str("component", "export").Logger(),
	}
}

const sheetName = "Bookings"

// ExportBookings snapshots the cached bookings into an .xlsx file and
// returns its path.
func (e *Exporter) ExportBookings() (string, error) {
	if err := os.MkdirAll(e.cfg.Path, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	bookings := e.source.All()

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Status", "Service", "Scheduled", "Customer",
		"Sync state", "Updated", "Notes",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, rec := range bookings {
		row := i + 2
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), rec.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), rec.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), rec.ServiceName)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), rec.ScheduledAt.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), rec.CustomerName)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), rec.SyncState)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), rec.UpdatedAt.Format("02.01.2006 15:04"))
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), notes(rec))

		if styleID, err := e.rowStyle(f, rec.SyncState); err == nil && styleID != 0 {
			_ = f.SetCellStyle(sheetName, fmt.Sprintf("A%d", row), fmt.Sprintf("H%d", row), styleID)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 28)
	_ = f.SetColWidth(sheetName, "B", "B", 14)
	_ = f.SetColWidth(sheetName, "C", "C", 24)
	_ = f.SetColWidth(sheetName, "D", "D", 18)
	_ = f.SetColWidth(sheetName, "E", "E", 22)
	_ = f.SetColWidth(sheetName, "F", "F", 14)
	_ = f.SetColWidth(sheetName, "G", "G", 18)
	_ = f.SetColWidth(sheetName, "H", "H", 32)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("bookings_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.cfg.Path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(bookings)).Msg("Excel file created")
	return filePath, nil
}

// rowStyle highlights rows that still need attention: yellow for
// unconfirmed local changes, red for conflicts.
func (e *Exporter) rowStyle(f *excelize.File, syncState string) (int, error) {
	switch syncState {
	case models.SyncStatePendingSync:
		return f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFEB9C"}, Pattern: 1},
		})
	case models.SyncStateConflict:
		return f.NewStyle(&excelize.Style{
			Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
		})
	}
	return 0, nil
}

func notes(rec models.BookingRecord) string {
	if rec.RejectionReason != "" {
		return rec.RejectionReason
	}
	return rec.CompletionNotes
}
