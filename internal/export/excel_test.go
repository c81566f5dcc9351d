package export

import (
	"os"
	"testing"
	"time"

	"booksync/internal/config"
	"booksync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type staticSource []models.BookingRecord

func (s staticSource) All() []models.BookingRecord { return s }

func TestExportBookings(t *testing.T) {
	dir := t.TempDir()
	logger := zerolog.Nop()

	source := staticSource{
		{
			ID:          "b1",
			Status:      models.StatusAccepted,
			ServiceName: "Haircut",
			ScheduledAt: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
			SyncState:   models.SyncStateClean,
			UpdatedAt:   time.Now(),
		},
		{
			ID:              "b2",
			Status:          models.StatusRejected,
			ServiceName:     "Massage",
			RejectionReason: "fully booked",
			SyncState:       models.SyncStatePendingSync,
			UpdatedAt:       time.Now(),
		},
	}

	exporter := NewExporter(config.ExportConfig{Path: dir}, source, &logger)
	path, err := exporter.ExportBookings()
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	id, err := f.GetCellValue("Bookings", "A2")
	require.NoError(t, err)
	assert.Equal(t, "b1", id)

	reason, err := f.GetCellValue("Bookings", "H3")
	require.NoError(t, err)
	assert.Equal(t, "fully booked", reason)
}

func TestExportEmptySnapshot(t *testing.T) {
	dir := t.TempDir()
	logger := zerolog.Nop()

	exporter := NewExporter(config.ExportConfig{Path: dir}, staticSource{}, &logger)
	path, err := exporter.ExportBookings()
	require.NoError(t, err)
	assert.FileExists(t, path)
}
