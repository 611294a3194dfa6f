package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/export"
	"venuebook/internal/models"

	"github.com/go-chi/chi/v5"
)

type createBookingRequest struct {
	SpaceID        int64            `json:"space_id"`
	EventName      string           `json:"event_name"`
	OrganizerName  string           `json:"organizer_name"`
	OrganizerEmail string           `json:"organizer_email"`
	EventType      models.EventType `json:"event_type"`
	Attendance     *int             `json:"attendance"`
	Window         models.Window    `json:"window"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type spaceRequest struct {
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Capacity    int      `json:"capacity"`
	PricePerDay *float64 `json:"price_per_day"`
}

func (req spaceRequest) toSpace(id int64) *models.Space {
	return &models.Space{
		ID:          id,
		Name:        req.Name,
		Location:    req.Location,
		Description: req.Description,
		Capacity:    req.Capacity,
		PricePerDay: req.PricePerDay,
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func caller(r *http.Request) models.Identity {
	who, _ := IdentityFrom(r.Context())
	return who
}

func (s *HTTPServer) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := s.svc.Spaces.ListSpaces(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"spaces": spaces})
}

func (s *HTTPServer) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	space, err := s.svc.Spaces.GetSpace(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, space)
}

func (s *HTTPServer) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	var req spaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	space := req.toSpace(0)
	if err := s.svc.Spaces.CreateSpace(r.Context(), caller(r), space); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, space)
}

func (s *HTTPServer) handleUpdateSpace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req spaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	space := req.toSpace(id)
	if err := s.svc.Spaces.UpdateSpace(r.Context(), caller(r), space); err != nil {
		writeDomainError(w, err)
		return
	}
	updated, err := s.svc.Spaces.GetSpace(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *HTTPServer) handleDeleteSpace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.svc.Spaces.DeleteSpace(r.Context(), caller(r), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleReconcileSpace(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := s.svc.Reconciler.Reconcile(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"space_id": id, "status": st})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), caller(r), &models.Booking{
		SpaceID:        req.SpaceID,
		EventName:      req.EventName,
		OrganizerName:  req.OrganizerName,
		OrganizerEmail: req.OrganizerEmail,
		EventType:      req.EventType,
		Attendance:     req.Attendance,
		Window:         req.Window,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": booking.ID, "status": booking.Status})
}

// parseFilter reads user_id, space_id, status (comma separated) and event_type.
func parseFilter(r *http.Request) (models.BookingFilter, error) {
	q := r.URL.Query()
	filter := models.BookingFilter{UserID: strings.TrimSpace(q.Get("user_id"))}

	if raw := strings.TrimSpace(q.Get("space_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, domain.NewValidationError("space_id", "invalid space id %q", raw)
		}
		filter.SpaceID = id
	}
	for _, raw := range strings.Split(q.Get("status"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		st, err := models.ParseBookingStatus(raw)
		if err != nil {
			return filter, domain.NewValidationError("status", "%s", err.Error())
		}
		filter.Statuses = append(filter.Statuses, st)
	}
	if raw := strings.TrimSpace(q.Get("event_type")); raw != "" {
		et := models.EventType(raw)
		if !et.IsValid() {
			return filter, domain.NewValidationError("event_type", "unknown event type %q", raw)
		}
		filter.EventType = et
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, domain.NewValidationError("limit", "invalid limit %q", raw)
		}
		filter.Limit = n
	}
	return filter, nil
}

func (s *HTTPServer) listWith(w http.ResponseWriter, r *http.Request, list func(models.BookingFilter) ([]*models.Booking, error)) {
	filter, err := parseFilter(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	bookings, err := list(filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	s.listWith(w, r, func(f models.BookingFilter) ([]*models.Booking, error) {
		return s.svc.Bookings.ListBookings(r.Context(), caller(r), f)
	})
}

func (s *HTTPServer) handleMyBookings(w http.ResponseWriter, r *http.Request) {
	s.listWith(w, r, func(f models.BookingFilter) ([]*models.Booking, error) {
		f.UserID = caller(r).UserID
		return s.svc.Bookings.ListBookings(r.Context(), caller(r), f)
	})
}

func (s *HTTPServer) handleUpcomingBookings(w http.ResponseWriter, r *http.Request) {
	s.listWith(w, r, func(f models.BookingFilter) ([]*models.Booking, error) {
		if who := caller(r); !who.IsAdmin() {
			f.UserID = who.UserID
		}
		return s.svc.Bookings.UpcomingBookings(r.Context(), f)
	})
}

func (s *HTTPServer) handleAttention(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.svc.Bookings.PendingNeedingAttention(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": bookings})
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Bookings.GetBooking(r.Context(), caller(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Bookings.ApproveBooking(r.Context(), caller(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	booking, err := s.svc.Bookings.RejectBooking(r.Context(), caller(r), id, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	booking, err := s.svc.Bookings.CancelBooking(r.Context(), caller(r), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Reconciler.SweepAll(r.Context(), s.svc.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleExport streams an xlsx workbook of bookings starting in [from, to].
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	today := models.DateOf(s.svc.Now(), s.svc.Location)
	from, to := today, today.AddDate(0, 0, 30)
	var err error
	if raw := q.Get("from"); raw != "" {
		if from, err = models.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
			return
		}
	}
	if raw := q.Get("to"); raw != "" {
		if to, err = models.ParseDate(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
			return
		}
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not be before from")
		return
	}

	bookings, err := s.svc.Bookings.ListBookings(r.Context(), caller(r), models.BookingFilter{
		StartsFrom: models.InLocation(from, s.svc.Location),
		StartsTo:   models.InLocation(to.AddDate(0, 0, 1), s.svc.Location).Add(-time.Nanosecond),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	spaces, err := s.svc.Spaces.ListSpaces(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := s.svc.Exporter.Write(&buf, spaces, bookings, from, to); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
