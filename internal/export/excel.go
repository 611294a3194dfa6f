package export

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"venuebook/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	listSheet     = "Bookings"
	scheduleSheet = "Schedule"
)

var listHeaders = []string{
	"ID", "Space", "Event", "Type", "Organizer", "Email", "Attendance", "Start", "End", "Status", "User",
}

// Exporter renders bookings as an xlsx workbook: a flat list and a
// space-by-date schedule grid.
type Exporter struct {
	loc *time.Location
}

func NewExporter(loc *time.Location) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{loc: loc}
}

// FileName is the suggested download name for a period.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
}

// Write builds the workbook for bookings touching [from, to] (calendar dates) and writes it to w.
func (e *Exporter) Write(w io.Writer, spaces []*models.Space, bookings []*models.Booking, from, to time.Time) error {
	from, to = models.Date(from), models.Date(to)
	if to.Before(from) {
		return fmt.Errorf("invalid date range: %s..%s", from.Format(models.DateLayout), to.Format(models.DateLayout))
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(listSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := e.writeList(f, bookings); err != nil {
		return err
	}

	if _, err := f.NewSheet(scheduleSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	e.writeSchedule(f, spaces, bookings, from, to)

	_ = f.DeleteSheet("Sheet1")

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

func (e *Exporter) writeList(f *excelize.File, bookings []*models.Booking) error {
	header := make([]interface{}, len(listHeaders))
	for i, h := range listHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(listSheet, "A1", &header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}

	style, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	lastCol, _ := excelize.ColumnNumberToName(len(listHeaders))
	_ = f.SetCellStyle(listSheet, "A1", lastCol+"1", style)

	for i, b := range bookings {
		start, end := e.windowCells(b.Window)
		var attendance interface{}
		if b.Attendance != nil {
			attendance = *b.Attendance
		}
		row := []interface{}{
			b.ID, b.SpaceName, b.EventName, string(b.EventType), b.OrganizerName, b.OrganizerEmail,
			attendance, start, end, string(b.Status), b.UserID,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(listSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing booking %d: %w", b.ID, err)
		}
	}

	_ = f.SetColWidth(listSheet, "B", "F", 22)
	_ = f.SetColWidth(listSheet, "H", "I", 18)
	return nil
}

func (e *Exporter) windowCells(w models.Window) (string, string) {
	if w.IsFullDay() {
		return w.StartDate.Format(models.DateLayout), w.EndDate.Format(models.DateLayout)
	}
	return w.Start.In(e.loc).Format("2006-01-02 15:04"), w.End.In(e.loc).Format("2006-01-02 15:04")
}

// writeSchedule lays spaces out as rows and dates as columns. A booking is
// listed under every date its window covers.
func (e *Exporter) writeSchedule(f *excelize.File, spaces []*models.Space, bookings []*models.Booking, from, to time.Time) {
	_ = f.SetCellValue(scheduleSheet, "A1", fmt.Sprintf("Period: %s - %s", from.Format("02.01.2006"), to.Format("02.01.2006")))

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	spaceStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	busyStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1},
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})

	dateCols := make(map[time.Time]int)
	col := 2
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(scheduleSheet, cell, d.Format("02.01"))
		_ = f.SetCellStyle(scheduleSheet, cell, cell, headerStyle)
		dateCols[d] = col
		col++
	}

	rows := make(map[int64]int, len(spaces))
	for i, s := range spaces {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		_ = f.SetCellValue(scheduleSheet, cell, fmt.Sprintf("%s (%d)", s.Name, s.Capacity))
		_ = f.SetCellStyle(scheduleSheet, cell, cell, spaceStyle)
		rows[s.ID] = i + 3
	}

	cells := make(map[string][]string)
	for _, b := range bookings {
		row, ok := rows[b.SpaceID]
		if !ok {
			continue
		}
		spanFrom, spanTo := b.Window.DateSpan(e.loc)
		for d := spanFrom; d.Before(spanTo); d = d.AddDate(0, 0, 1) {
			col, ok := dateCols[d]
			if !ok {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col, row)
			cells[cell] = append(cells[cell], e.scheduleLine(b))
		}
	}

	keys := make([]string, 0, len(cells))
	for k := range cells {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, cell := range keys {
		_ = f.SetCellValue(scheduleSheet, cell, strings.Join(cells[cell], "\n"))
		_ = f.SetCellStyle(scheduleSheet, cell, cell, busyStyle)
	}

	lastCol, _ := excelize.ColumnNumberToName(col - 1)
	if col > 2 {
		_ = f.MergeCell(scheduleSheet, "A1", lastCol+"1")
	}
	_ = f.SetColWidth(scheduleSheet, "A", "A", 25)
	if col > 2 {
		_ = f.SetColWidth(scheduleSheet, "B", lastCol, 20)
	}
}

func (e *Exporter) scheduleLine(b *models.Booking) string {
	when := "full day"
	if !b.Window.IsFullDay() {
		when = b.Window.Start.In(e.loc).Format("15:04") + "-" + b.Window.End.In(e.loc).Format("15:04")
	}
	return fmt.Sprintf("%s %s (%s)", statusIcon(b.Status), b.EventName, when)
}

func statusIcon(status models.BookingStatus) string {
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		return "✅"
	case models.StatusPending:
		return "⏳"
	case models.StatusRejected, models.StatusCancelled:
		return "❌"
	default:
		return "❓"
	}
}
