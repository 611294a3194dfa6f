package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"sync"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// lastColumn is the column of the last field written by bookingRowValues.
const lastColumn = "O"

var ErrRowNotFound = errors.New("booking row not found")

var bookingHeaders = []interface{}{
	"ID", "Space ID", "Space", "Event", "Type", "Organizer", "Email", "Attendance",
	"Start", "End", "Full day", "Status", "User", "Created At", "Updated At",
}

// SheetsService mirrors bookings into one sheet, one row per booking.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	rowCache      map[int64]int
	cacheMu       sync.RWMutex
}

var (
	_ domain.SheetsWriter = (*SheetsService)(nil)
	_ domain.Notifier     = (*SheetsService)(nil)
)

func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, loc *time.Location) (*SheetsService, error) {
	// Читаем файл учетных данных сервисного аккаунта
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsService(srv, spreadsheetID, sheetName, loc), nil
}

func newSheetsService(srv *sheets.Service, spreadsheetID, sheetName string, loc *time.Location) *SheetsService {
	if sheetName == "" {
		sheetName = "Bookings"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		loc:           loc,
		rowCache:      make(map[int64]int),
	}
}

// ServiceAccountEmail returns the address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}
	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

func (s *SheetsService) rng(r string) string {
	return s.sheetName + "!" + r
}

// TestConnection проверяет доступ к листу
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A1")).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// StartCacheRefresh rebuilds the row cache now and then every ttl until ctx is done.
func (s *SheetsService) StartCacheRefresh(ctx context.Context, ttl time.Duration, onError func(error)) {
	if ttl <= 0 {
		ttl = models.SheetsCacheTTL * time.Second
	}
	refresh := func() {
		c, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.WarmUpCache(c); err != nil && onError != nil {
			onError(err)
		}
	}

	refresh()
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

// WarmUpCache populates the row index cache by reading the entire ID column.
func (s *SheetsService) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return err
	}

	cache := make(map[int64]int, len(resp.Values))
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok {
			cache[id] = i + 1
		}
	}

	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func cellID(row []interface{}) (int64, bool) {
	if len(row) == 0 {
		return 0, false
	}
	var id int64
	switch v := row[0].(type) {
	case float64:
		id = int64(v)
	case string:
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, false
		}
		id = parsed
	}
	return id, id > 0
}

var rowInRange = regexp.MustCompile(`![A-Z]+(\d+)`)

// AppendBooking adds a row and caches its position from the API response.
func (s *SheetsService) AppendBooking(ctx context.Context, booking *models.Booking) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.rng("A:A"), &sheets.ValueRange{
		Values: [][]interface{}{s.bookingRowValues(booking)},
	}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}

	if resp != nil && resp.Updates != nil {
		if m := rowInRange.FindStringSubmatch(resp.Updates.UpdatedRange); m != nil {
			if row, err := strconv.Atoi(m[1]); err == nil {
				s.setCachedRow(booking.ID, row)
			}
		}
	}
	return nil
}

// UpsertBooking updates an existing booking row or appends a new one if not found.
func (s *SheetsService) UpsertBooking(ctx context.Context, booking *models.Booking) error {
	if booking == nil {
		return errors.New("booking is nil")
	}

	rowIdx, err := s.FindBookingRow(ctx, booking.ID)
	if err != nil {
		if errors.Is(err, ErrRowNotFound) {
			return s.AppendBooking(ctx, booking)
		}
		return err
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rowRange(rowIdx), &sheets.ValueRange{
		Values: [][]interface{}{s.bookingRowValues(booking)},
	}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

func (s *SheetsService) rowRange(row int) string {
	return s.rng(fmt.Sprintf("A%d:%s%d", row, lastColumn, row))
}

// FindBookingRow locates row index (1-based) for booking_id in column A with cache.
func (s *SheetsService) FindBookingRow(ctx context.Context, bookingID int64) (int, error) {
	if bookingID == 0 {
		return 0, errors.New("booking id is required")
	}
	if row, ok := s.getCachedRow(bookingID); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.rng("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if id, ok := cellID(row); ok && id == bookingID {
			s.setCachedRow(bookingID, i+1)
			return i + 1, nil
		}
	}
	return 0, ErrRowNotFound
}

// ReplaceBookings rewrites the whole sheet with a header row and bookings.
func (s *SheetsService) ReplaceBookings(ctx context.Context, bookings []*models.Booking) error {
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, s.rng("A:Z"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear bookings sheet: %w", err)
	}

	values := make([][]interface{}, 0, len(bookings)+1)
	values = append(values, bookingHeaders)
	for _, b := range bookings {
		values = append(values, s.bookingRowValues(b))
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, s.rng("A1"), &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update bookings sheet: %w", err)
	}

	cache := make(map[int64]int, len(bookings))
	for i, b := range bookings {
		cache[b.ID] = i + 2
	}
	s.cacheMu.Lock()
	s.rowCache = cache
	s.cacheMu.Unlock()
	return nil
}

func (s *SheetsService) Name() string { return "sheets" }

// Notify upserts the booking row carried by the event.
func (s *SheetsService) Notify(ctx context.Context, event *models.BookingEvent) error {
	if event.Booking == nil {
		return fmt.Errorf("event %s for booking %d has no booking snapshot", event.Type, event.BookingID)
	}
	b := *event.Booking
	b.Status = event.Status
	return s.UpsertBooking(ctx, &b)
}

func (s *SheetsService) getCachedRow(id int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsService) setCachedRow(id int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

// ClearCache clears the row index cache.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}

func (s *SheetsService) bookingRowValues(b *models.Booking) []interface{} {
	var start, end string
	if b.Window.IsFullDay() {
		start = b.Window.StartDate.Format(models.DateLayout)
		end = b.Window.EndDate.Format(models.DateLayout)
	} else {
		start = b.Window.Start.In(s.loc).Format("2006-01-02 15:04")
		end = b.Window.End.In(s.loc).Format("2006-01-02 15:04")
	}
	attendance := ""
	if b.Attendance != nil {
		attendance = strconv.Itoa(*b.Attendance)
	}
	return []interface{}{
		b.ID,
		b.SpaceID,
		b.SpaceName,
		b.EventName,
		string(b.EventType),
		b.OrganizerName,
		b.OrganizerEmail,
		attendance,
		start,
		end,
		b.Window.IsFullDay(),
		string(b.Status),
		b.UserID,
		b.CreatedAt.In(s.loc).Format("2006-01-02 15:04:05"),
		b.UpdatedAt.In(s.loc).Format("2006-01-02 15:04:05"),
	}
}
