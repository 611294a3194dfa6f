package bot

import (
	"context"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"venuebook/internal/database"
	"venuebook/internal/models"
	"venuebook/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const adminID = 1001

type fakeTelegram struct {
	mu       sync.Mutex
	updates  chan tgbotapi.Update
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	stopped  bool
}

func (f *fakeTelegram) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, nil
}

func (f *fakeTelegram) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeTelegram) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeTelegram) GetSelf() tgbotapi.User { return tgbotapi.User{UserName: "venuebook_bot"} }

func (f *fakeTelegram) StopReceivingUpdates() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}

// last returns the text of the most recent outgoing message.
func (f *fakeTelegram) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	switch m := f.sent[len(f.sent)-1].(type) {
	case tgbotapi.MessageConfig:
		return m.Text
	case tgbotapi.EditMessageTextConfig:
		return m.Text
	}
	return ""
}

type harness struct {
	tg       *fakeTelegram
	bot      *Bot
	db       *database.DB
	bookings *service.BookingService
	booking  *models.Booking
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	now := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	bookings := service.NewBookingService(db, nil, nil, service.Options{Now: func() time.Time { return now }}, &logger)
	spaces := service.NewSpaceService(db, nil, &logger)
	reconciler := service.NewReconciler(bookings, time.Minute, &logger)

	ctx := context.Background()
	space := &models.Space{Name: "Hall <S>", Capacity: 30}
	if err := spaces.CreateSpace(ctx, models.SystemIdentity, space); err != nil {
		t.Fatalf("create space: %v", err)
	}
	start := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	attendance := 12
	booking, err := bookings.CreateBooking(ctx, models.Identity{UserID: "alice", Role: models.RoleStaff}, &models.Booking{
		SpaceID:        space.ID,
		EventName:      "Quarterly review",
		OrganizerName:  "Alice",
		OrganizerEmail: "alice@example.com",
		EventType:      models.EventMeeting,
		Attendance:     &attendance,
		Window:         models.NewTimedWindow(start, start.Add(2*time.Hour)),
	})
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}

	tg := &fakeTelegram{updates: make(chan tgbotapi.Update, 4)}
	b := NewBot(tg, bookings, spaces, reconciler, []int64{adminID}, time.UTC, &logger)
	b.now = func() time.Time { return now }
	return &harness{tg: tg, bot: b, db: db, bookings: bookings, booking: booking}
}

func command(userID int64, text string) tgbotapi.Update {
	cmd := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID, UserName: "user"},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func (h *harness) status(t *testing.T) models.BookingStatus {
	t.Helper()
	b, err := h.db.GetBooking(context.Background(), h.booking.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	return b.Status
}

func TestNonAdminIsRefused(t *testing.T) {
	h := newHarness(t)
	h.bot.processUpdate(context.Background(), command(42, "/approve "+strconv.FormatInt(h.booking.ID, 10)))

	if got := h.tg.last(); !strings.Contains(got, "administrators only") {
		t.Fatalf("expected refusal, got %q", got)
	}
	if st := h.status(t); st != models.StatusPending {
		t.Fatalf("booking must stay pending, got %s", st)
	}
}

func TestPendingListHasReviewButtons(t *testing.T) {
	h := newHarness(t)
	h.bot.processUpdate(context.Background(), command(adminID, "/pending"))

	h.tg.mu.Lock()
	defer h.tg.mu.Unlock()
	if len(h.tg.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(h.tg.sent))
	}
	msg, ok := h.tg.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("unexpected message type %T", h.tg.sent[0])
	}
	if !strings.Contains(msg.Text, "Quarterly review") || !strings.Contains(msg.Text, "Hall &lt;S&gt;") {
		t.Fatalf("booking missing or not escaped: %q", msg.Text)
	}
	kb, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 1 {
		t.Fatalf("expected one row of review buttons, got %#v", msg.ReplyMarkup)
	}
	want := "approve:" + strconv.FormatInt(h.booking.ID, 10)
	if got := *kb.InlineKeyboard[0][0].CallbackData; got != want {
		t.Fatalf("callback data = %q, want %q", got, want)
	}
}

func TestApproveViaCallback(t *testing.T) {
	h := newHarness(t)
	id := strconv.FormatInt(h.booking.ID, 10)

	h.bot.processUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: adminID},
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: adminID}},
		Data:    "approve:" + id,
	}})

	if st := h.status(t); st != models.StatusConfirmed {
		t.Fatalf("expected confirmed, got %s", st)
	}
	if got := h.tg.last(); !strings.Contains(got, "approved") {
		t.Fatalf("expected approval reply, got %q", got)
	}
	h.tg.mu.Lock()
	requests := len(h.tg.requests)
	h.tg.mu.Unlock()
	if requests != 2 {
		t.Fatalf("expected callback answer and markup edit, got %d requests", requests)
	}

	// a second press reports the illegal transition instead of failing silently
	h.bot.processUpdate(context.Background(), command(adminID, "/approve "+id))
	if got := h.tg.last(); !strings.HasPrefix(got, "⛔") {
		t.Fatalf("expected transition error, got %q", got)
	}
}

func TestRejectWithReason(t *testing.T) {
	h := newHarness(t)
	h.bot.processUpdate(context.Background(), command(adminID, "/reject "+strconv.FormatInt(h.booking.ID, 10)+" double booked upstairs"))

	if st := h.status(t); st != models.StatusRejected {
		t.Fatalf("expected rejected, got %s", st)
	}
	if got := h.tg.last(); !strings.Contains(got, "rejected") {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestBookingCommandErrors(t *testing.T) {
	h := newHarness(t)

	h.bot.processUpdate(context.Background(), command(adminID, "/booking"))
	if got := h.tg.last(); !strings.Contains(got, "id is required") {
		t.Fatalf("unexpected reply %q", got)
	}

	h.bot.processUpdate(context.Background(), command(adminID, "/booking abc"))
	if got := h.tg.last(); !strings.Contains(got, "not a booking id") {
		t.Fatalf("unexpected reply %q", got)
	}

	h.bot.processUpdate(context.Background(), command(adminID, "/booking 9999"))
	if got := h.tg.last(); !strings.HasPrefix(got, "🔍") {
		t.Fatalf("expected not found, got %q", got)
	}
}

func TestSweepAndSpaces(t *testing.T) {
	h := newHarness(t)

	h.bot.processUpdate(context.Background(), command(adminID, "/sweep"))
	if got := h.tg.last(); got != "🧹 Completed: 0, freed: 0, failed: 0" {
		t.Fatalf("unexpected sweep reply %q", got)
	}

	h.bot.processUpdate(context.Background(), command(adminID, "/spaces"))
	if got := h.tg.last(); !strings.Contains(got, "🟢 Hall &lt;S&gt;") {
		t.Fatalf("unexpected spaces reply %q", got)
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.bot.Start(ctx)
		close(done)
	}()

	h.tg.updates <- command(adminID, "/help")
	deadline := time.Now().Add(2 * time.Second)
	for h.tg.last() == "" {
		if time.Now().After(deadline) {
			t.Fatalf("update was not processed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(h.tg.last(), "/pending") {
		t.Fatalf("expected help text, got %q", h.tg.last())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("bot did not stop")
	}
	h.tg.mu.Lock()
	defer h.tg.mu.Unlock()
	if !h.tg.stopped {
		t.Fatalf("expected StopReceivingUpdates")
	}
}

func TestRenderPage(t *testing.T) {
	rows := func(start, end int) (string, [][]tgbotapi.InlineKeyboardButton) {
		return strconv.Itoa(start) + "-" + strconv.Itoa(end), nil
	}

	text, kb := renderPage("T", 1, 12, 5, "p:", rows)
	if text != "T (page 2 of 3)\n\n5-10" {
		t.Fatalf("unexpected text %q", text)
	}
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("expected back and next buttons, got %#v", kb.InlineKeyboard)
	}

	text, kb = renderPage("T", 9, 3, 5, "p:", rows)
	if text != "T\n\n0-3" || len(kb.InlineKeyboard) != 0 {
		t.Fatalf("single page clamps: %q %#v", text, kb.InlineKeyboard)
	}
}
