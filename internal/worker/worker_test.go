package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"venuebook/internal/database"
	"venuebook/internal/domain"
	"venuebook/internal/events"
	"venuebook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type fakeSink struct {
	name string
	err  error

	mu    sync.Mutex
	calls []*models.BookingEvent
}

func (s *fakeSink) Name() string { return s.name }

func (s *fakeSink) Notify(_ context.Context, event *models.BookingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, event)
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(":memory:", &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newWorker(t *testing.T, db *database.DB, rdb *redis.Client, retry RetryPolicy, sinks ...*fakeSink) *NotificationWorker {
	t.Helper()
	logger := zerolog.New(io.Discard)
	ns := make([]domain.Notifier, 0, len(sinks))
	for _, s := range sinks {
		ns = append(ns, s)
	}
	return NewNotificationWorker(db, ns, rdb, retry, &logger)
}

func sampleEvent(id int64) *models.BookingEvent {
	return &models.BookingEvent{
		Type:      events.EventBookingCreated,
		BookingID: id,
		SpaceID:   1,
		SpaceName: "Hall",
		Status:    models.StatusPending,
	}
}

func TestEnqueue_OneTaskPerSink(t *testing.T) {
	db := newTestDB(t)
	tg, sheets := &fakeSink{name: "telegram"}, &fakeSink{name: "sheets"}
	w := newWorker(t, db, nil, RetryPolicy{}, tg, sheets, &fakeSink{name: "telegram"})

	ctx := context.Background()
	if err := w.Enqueue(ctx, sampleEvent(7)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if len(w.queue) != 2 {
		t.Fatalf("expected 2 queued tasks, got %d", len(w.queue))
	}

	for i := 0; i < 2; i++ {
		task, ok := w.tryLocalQueue()
		if !ok {
			t.Fatalf("expected task in local queue")
		}
		w.processTask(ctx, &task)

		stored, err := db.GetNotificationTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("get task: %v", err)
		}
		if stored.Status != models.TaskCompleted {
			t.Fatalf("expected completed, got %s", stored.Status)
		}
		if stored.ProcessedAt == nil {
			t.Fatalf("expected processed_at to be set")
		}
	}

	if tg.count() != 1 || sheets.count() != 1 {
		t.Fatalf("expected one delivery per sink, got telegram=%d sheets=%d", tg.count(), sheets.count())
	}
}

func TestEnqueue_RequiresBookingID(t *testing.T) {
	w := newWorker(t, newTestDB(t), nil, RetryPolicy{}, &fakeSink{name: "log"})
	if err := w.Enqueue(context.Background(), &models.BookingEvent{}); err == nil {
		t.Fatalf("expected error for missing booking id")
	}
}

func TestProcessTask_Retry(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{name: "telegram", err: errors.New("boom")}
	w := newWorker(t, db, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, sink)
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	ctx := context.Background()
	if err := w.Enqueue(ctx, sampleEvent(1)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := w.tryLocalQueue()
	w.processTask(ctx, &task)

	stored, err := db.GetNotificationTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Status != models.TaskRetry {
		t.Fatalf("expected retry, got %s", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", stored.RetryCount)
	}
	if stored.NextRetryAt == nil || !stored.NextRetryAt.Equal(fixed.Add(time.Second)) {
		t.Fatalf("unexpected next_retry_at %v", stored.NextRetryAt)
	}
	if stored.LastError == nil || *stored.LastError != "notification via telegram failed: boom" {
		t.Fatalf("unexpected last_error %v", stored.LastError)
	}
}

func TestProcessTask_DeadLetterAfterMaxRetries(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	db := newTestDB(t)
	w := newWorker(t, db, rdb, RetryPolicy{MaxRetries: 2}, &fakeSink{name: "sheets", err: errors.New("quota")})

	ctx := context.Background()
	if err := w.Enqueue(ctx, sampleEvent(3)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if n, _ := rdb.LLen(ctx, queueKey).Result(); n != 1 {
		t.Fatalf("expected task on redis queue, got %d", n)
	}
	if len(w.queue) != 0 {
		t.Fatalf("memory queue must stay empty when redis works")
	}

	task, ok := w.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task from redis")
	}
	task.RetryCount = 1
	w.processTask(ctx, &task)

	stored, err := db.GetNotificationTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if stored.Status != models.TaskFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}

	raw, err := rdb.LPop(ctx, deadLetterKey).Result()
	if err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	var dead models.NotificationTask
	if err := json.Unmarshal([]byte(raw), &dead); err != nil {
		t.Fatalf("decode dead letter: %v", err)
	}
	if dead.ID != task.ID {
		t.Fatalf("expected task %d in dead letter list, got %d", task.ID, dead.ID)
	}
}

func TestProcessTask_UnknownSinkFails(t *testing.T) {
	db := newTestDB(t)
	w := newWorker(t, db, nil, RetryPolicy{}, &fakeSink{name: "log"})

	ctx := context.Background()
	raw, _ := json.Marshal(taskPayload{Sink: "fax", Event: sampleEvent(5)})
	task := models.NotificationTask{EventType: events.EventBookingCreated, BookingID: 5, Payload: string(raw)}
	if err := db.CreateNotificationTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}

	w.processTask(ctx, &task)
	stored, _ := db.GetNotificationTask(ctx, task.ID)
	if stored.Status != models.TaskFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
}

func TestHandleEvent_FromBus(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{name: "log"}
	w := newWorker(t, db, nil, RetryPolicy{}, sink)

	bus := events.NewEventBus()
	w.Subscribe(bus)
	if err := bus.PublishJSON(events.EventBookingApproved, sampleEvent(9)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	task, ok := w.tryLocalQueue()
	if !ok {
		t.Fatalf("expected queued task")
	}
	if task.BookingID != 9 {
		t.Fatalf("expected booking 9, got %d", task.BookingID)
	}

	if err := bus.Publish(&events.Event{Type: events.EventBookingApproved, Payload: []byte("{")}); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestStart_ReloadsPendingAndDelivers(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{name: "log"}
	w := newWorker(t, db, nil, RetryPolicy{}, sink)
	w.pollInterval = 10 * time.Millisecond

	ctx := context.Background()
	// left behind by a previous process
	raw, _ := json.Marshal(taskPayload{Sink: "log", Event: sampleEvent(11)})
	leftover := models.NotificationTask{EventType: events.EventBookingCreated, BookingID: 11, Payload: string(raw)}
	if err := db.CreateNotificationTask(ctx, &leftover); err != nil {
		t.Fatalf("create: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		w.Start(runCtx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for sink.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := w.Enqueue(ctx, sampleEvent(12)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for sink.count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if sink.count() != 2 {
		t.Fatalf("expected 2 deliveries, got %d", sink.count())
	}
	stored, _ := db.GetNotificationTask(ctx, leftover.ID)
	if stored.Status != models.TaskCompleted {
		t.Fatalf("expected leftover completed, got %s", stored.Status)
	}
}

func TestRetryPolicy(t *testing.T) {
	p := RetryPolicy{MaxRetries: 4, InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, d := range want {
		if got := p.NextDelay(i + 1); got != d {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, d, got)
		}
	}
	if p.NextDelay(0) != time.Second {
		t.Fatalf("attempt 0 should be clamped to the first delay")
	}
	if p.Exhausted(3) || !p.Exhausted(4) {
		t.Fatalf("unexpected Exhausted result")
	}
	if (RetryPolicy{}).NextDelay(1) != time.Second {
		t.Fatalf("zero policy should default to one second")
	}
}

func TestNotificationEnqueuer_HandsTasksToDeliveringWorker(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.New(io.Discard)
	enq := NewNotificationEnqueuer(db, []string{"log", "sheets", "log", ""}, nil, &logger)

	bus := events.NewEventBus()
	enq.Subscribe(bus)
	if err := bus.PublishJSON(events.EventBookingCompleted, sampleEvent(11)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(enq.queue) != 0 {
		t.Fatalf("enqueuer must not buffer tasks in memory, got %d", len(enq.queue))
	}

	logSink, sheets := &fakeSink{name: "log"}, &fakeSink{name: "sheets"}
	w := newWorker(t, db, nil, RetryPolicy{}, logSink, sheets)
	if n := w.poll(context.Background(), 0); n != 2 {
		t.Fatalf("expected 2 tasks delivered, got %d", n)
	}
	if logSink.count() != 1 || sheets.count() != 1 {
		t.Fatalf("expected one delivery per sink, got log=%d sheets=%d", logSink.count(), sheets.count())
	}
}

func TestNotificationEnqueuer_PushesToRedis(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	db := newTestDB(t)
	logger := zerolog.New(io.Discard)
	enq := NewNotificationEnqueuer(db, []string{"telegram"}, rdb, &logger)
	if err := enq.Enqueue(context.Background(), sampleEvent(12)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	tg := &fakeSink{name: "telegram"}
	w := newWorker(t, db, rdb, RetryPolicy{}, tg)
	task, ok := w.tryRedis(context.Background())
	if !ok {
		t.Fatalf("expected task on redis")
	}
	w.processTask(context.Background(), &task)
	if tg.count() != 1 {
		t.Fatalf("expected telegram delivery, got %d", tg.count())
	}
}
