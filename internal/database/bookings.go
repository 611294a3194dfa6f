package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/models"
)

// timeLayout is fixed width so that stored instants compare correctly as text.
const timeLayout = "2006-01-02 15:04:05.000000000"

const bookingColumns = `b.id, b.space_id, s.name, b.user_id, b.event_name, b.organizer_name, b.organizer_email,
        b.event_type, b.attendance, b.is_full_day, b.start_at, b.end_at, b.start_date, b.end_date,
        b.status, b.version, b.created_at, b.updated_at`

const bookingFrom = ` FROM bookings b JOIN spaces s ON s.id = b.space_id`

func formatInstant(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseInstant(s string) (time.Time, error) {
	return time.ParseInLocation(timeLayout, s, time.UTC)
}

// windowColumns flattens the window union into its four nullable columns.
func windowColumns(w models.Window) (startAt, endAt, startDate, endDate sql.NullString) {
	if w.IsFullDay() {
		startDate = sql.NullString{String: w.StartDate.Format(models.DateLayout), Valid: true}
		endDate = sql.NullString{String: w.EndDate.Format(models.DateLayout), Valid: true}
		return
	}
	startAt = sql.NullString{String: formatInstant(w.Start), Valid: true}
	endAt = sql.NullString{String: formatInstant(w.End), Valid: true}
	return
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                                  models.Booking
		eventType, status                  string
		attendance                         sql.NullInt64
		fullDay                            bool
		startAt, endAt, startDate, endDate sql.NullString
	)
	err := row.Scan(&b.ID, &b.SpaceID, &b.SpaceName, &b.UserID, &b.EventName, &b.OrganizerName, &b.OrganizerEmail,
		&eventType, &attendance, &fullDay, &startAt, &endAt, &startDate, &endDate,
		&status, &b.Version, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}

	b.EventType = models.EventType(eventType)
	b.Status = models.BookingStatus(status)
	if attendance.Valid {
		n := int(attendance.Int64)
		b.Attendance = &n
	}

	if fullDay {
		from, err := models.ParseDate(startDate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse start_date %q of booking %d: %w", startDate.String, b.ID, err)
		}
		to, err := models.ParseDate(endDate.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end_date %q of booking %d: %w", endDate.String, b.ID, err)
		}
		b.Window = models.NewFullDayWindow(from, to)
		return &b, nil
	}

	from, err := parseInstant(startAt.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse start of booking %d: %w", b.ID, err)
	}
	to, err := parseInstant(endAt.String)
	if err != nil {
		return nil, fmt.Errorf("failed to parse end of booking %d: %w", b.ID, err)
	}
	b.Window = models.NewTimedWindow(from, to)
	return &b, nil
}

func (s *store) scanBookings(rows *sql.Rows) ([]*models.Booking, error) {
	defer rows.Close()
	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (s *store) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+bookingColumns+bookingFrom+` WHERE b.id = ?`, id)
	b, err := scanBooking(row)
	if err != nil {
		return nil, notFound(err, "booking", id)
	}
	return b, nil
}

func (s *store) InsertBooking(ctx context.Context, booking *models.Booking) error {
	startAt, endAt, startDate, endDate := windowColumns(booking.Window)
	var attendance sql.NullInt64
	if booking.Attendance != nil {
		attendance = sql.NullInt64{Int64: int64(*booking.Attendance), Valid: true}
	}

	now := time.Now()
	res, err := s.q.ExecContext(ctx, `INSERT INTO bookings (
                space_id, user_id, event_name, organizer_name, organizer_email, event_type, attendance,
                is_full_day, start_at, end_at, start_date, end_date, status, version, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		booking.SpaceID, booking.UserID, booking.EventName, booking.OrganizerName, booking.OrganizerEmail,
		string(booking.EventType), attendance, booking.Window.IsFullDay(), startAt, endAt, startDate, endDate,
		string(booking.Status), 1, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func statusArgs(statuses []models.BookingStatus) (string, []interface{}) {
	marks := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, st := range statuses {
		marks[i] = "?"
		args[i] = string(st)
	}
	return strings.Join(marks, ", "), args
}

// FindBookingsForSpace returns the space's bookings in any of the given statuses, oldest first.
func (s *store) FindBookingsForSpace(ctx context.Context, spaceID int64, statuses []models.BookingStatus) ([]*models.Booking, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	marks, args := statusArgs(statuses)
	query := `SELECT ` + bookingColumns + bookingFrom + ` WHERE b.space_id = ? AND b.status IN (` + marks + `) ORDER BY b.id`
	rows, err := s.q.QueryContext(ctx, query, append([]interface{}{spaceID}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings for space: %w", err)
	}
	return s.scanBookings(rows)
}

func (s *store) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.UserID != "" {
		where = append(where, "b.user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.SpaceID != 0 {
		where = append(where, "b.space_id = ?")
		args = append(args, filter.SpaceID)
	}
	if len(filter.Statuses) > 0 {
		marks, sargs := statusArgs(filter.Statuses)
		where = append(where, "b.status IN ("+marks+")")
		args = append(args, sargs...)
	}
	if filter.EventType != "" {
		where = append(where, "b.event_type = ?")
		args = append(args, string(filter.EventType))
	}
	if !filter.StartsFrom.IsZero() {
		where = append(where, "((b.is_full_day = 0 AND b.start_at >= ?) OR (b.is_full_day = 1 AND b.start_date >= ?))")
		args = append(args, formatInstant(filter.StartsFrom), models.DateOf(filter.StartsFrom, s.loc).Format(models.DateLayout))
	}
	if !filter.StartsTo.IsZero() {
		where = append(where, "((b.is_full_day = 0 AND b.start_at < ?) OR (b.is_full_day = 1 AND b.start_date <= ?))")
		args = append(args, formatInstant(filter.StartsTo), models.DateOf(filter.StartsTo, s.loc).Format(models.DateLayout))
	}

	query := `SELECT ` + bookingColumns + bookingFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY COALESCE(b.start_at, b.start_date), b.id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return s.scanBookings(rows)
}

func (s *store) CountActiveBookings(ctx context.Context, spaceID int64) (int, error) {
	marks, args := statusArgs(models.ActiveStatuses)
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE space_id = ? AND status IN (`+marks+`)`,
		append([]interface{}{spaceID}, args...)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count active bookings: %w", err)
	}
	return n, nil
}

// TransitionBookingStatus is a compare-and-set on status. When the booking is
// no longer in from, the error reports the status it is actually in.
func (s *store) TransitionBookingStatus(ctx context.Context, id int64, from, to models.BookingStatus) (*models.Booking, error) {
	if !from.CanTransitionTo(to) {
		return nil, &domain.InvalidTransitionError{BookingID: id, From: from, To: to}
	}

	res, err := s.q.ExecContext(ctx, `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now(), id, string(from))
	if err != nil {
		return nil, fmt.Errorf("failed to update booking status: %w", err)
	}

	if affected(res) == 0 {
		current, err := s.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &domain.InvalidTransitionError{BookingID: id, From: current.Status, To: to}
	}
	return s.GetBooking(ctx, id)
}

// FindEndedConfirmedBookings returns confirmed bookings whose window closed before now.
func (s *store) FindEndedConfirmedBookings(ctx context.Context, now time.Time) ([]*models.Booking, error) {
	today := models.DateOf(now, s.loc).Format(models.DateLayout)
	query := `SELECT ` + bookingColumns + bookingFrom + ` WHERE b.status = ?
        AND ((b.is_full_day = 0 AND b.end_at < ?) OR (b.is_full_day = 1 AND b.end_date < ?))
        ORDER BY b.space_id, b.id`
	rows, err := s.q.QueryContext(ctx, query, string(models.StatusConfirmed), formatInstant(now), today)
	if err != nil {
		return nil, fmt.Errorf("failed to find ended bookings: %w", err)
	}
	return s.scanBookings(rows)
}
