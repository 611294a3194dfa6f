package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"venuebook/internal/database"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	admin = models.Identity{UserID: "admin-1", Role: models.RoleAdmin}
	alice = models.Identity{UserID: "alice", Role: models.RoleStaff}
	bob   = models.Identity{UserID: "bob", Role: models.RoleExternal}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

type fixture struct {
	db         *database.DB
	clock      *fakeClock
	bookings   *BookingService
	spaces     *SpaceService
	reconciler *Reconciler
	space      *models.Space
}

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func day(s string) time.Time {
	t, err := models.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func newFixture(t *testing.T, publisher *mockPublisher) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: ts("2025-01-01 08:00")}
	opts := Options{Location: time.UTC, MaxAdvanceDays: 365, Now: clock.Now}

	var bookings *BookingService
	if publisher != nil {
		bookings = NewBookingService(db, nil, publisher, opts, &logger)
	} else {
		bookings = NewBookingService(db, nil, nil, opts, &logger)
	}

	f := &fixture{
		db:         db,
		clock:      clock,
		bookings:   bookings,
		spaces:     NewSpaceService(db, nil, &logger),
		reconciler: NewReconciler(bookings, time.Minute, &logger),
	}
	f.space = &models.Space{Name: "Hall S", Capacity: 50}
	require.NoError(t, f.spaces.CreateSpace(context.Background(), admin, f.space))
	return f
}

func intPtr(v int) *int { return &v }

func request(spaceID int64, w models.Window, attendance int) *models.Booking {
	b := &models.Booking{
		SpaceID:        spaceID,
		EventName:      "Quarterly review",
		OrganizerName:  "Alice",
		OrganizerEmail: "alice@example.com",
		EventType:      models.EventMeeting,
		Window:         w,
	}
	if attendance > 0 {
		b.Attendance = intPtr(attendance)
	}
	return b
}

func (f *fixture) spaceStatus(t *testing.T) models.SpaceStatus {
	t.Helper()
	s, err := f.db.GetSpace(context.Background(), f.space.ID)
	require.NoError(t, err)
	return s.Status
}
