package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/domain"
	"venuebook/internal/events"
	"venuebook/internal/metrics"
	"venuebook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	queueKey      = "venuebook:notifications:queue"
	deadLetterKey = "venuebook:notifications:deadletter"
)

// taskPayload is stored in NotificationTask.Payload. Each task targets one sink
// so a retry never repeats a delivery that already succeeded elsewhere.
type taskPayload struct {
	Sink  string               `json:"sink"`
	Event *models.BookingEvent `json:"event"`
}

// NotificationWorker fans booking events out to the configured sinks with
// retries. Delivery runs on one goroutine, outside every booking transaction.
type NotificationWorker struct {
	store       domain.NotificationQueue
	sinks       map[string]domain.Notifier
	order       []string
	redis       *redis.Client
	retryPolicy RetryPolicy
	queue       chan models.NotificationTask
	// set by NewNotificationEnqueuer; tasks are delivered by another process
	enqueueOnly bool

	pollInterval time.Duration
	// pending tasks younger than this are assumed to be queued already
	staleAfter time.Duration
	batchSize  int
	now        func() time.Time
	logger     *zerolog.Logger
}

func NewNotificationWorker(store domain.NotificationQueue, sinks []domain.Notifier, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger) *NotificationWorker {
	if retry.MaxRetries == 0 {
		retry.MaxRetries = 5
	}
	if retry.InitialDelay == 0 {
		retry.InitialDelay = 2 * time.Second
	}
	if retry.MaxDelay == 0 {
		retry.MaxDelay = time.Minute
	}
	if retry.BackoffFactor == 0 {
		retry.BackoffFactor = 2
	}

	w := &NotificationWorker{
		store:        store,
		sinks:        make(map[string]domain.Notifier, len(sinks)),
		redis:        redisClient,
		retryPolicy:  retry,
		queue:        make(chan models.NotificationTask, models.WorkerQueueSize),
		pollInterval: 2 * time.Second,
		staleAfter:   30 * time.Second,
		batchSize:    20,
		now:          time.Now,
		logger:       logger,
	}
	for _, s := range sinks {
		if _, dup := w.sinks[s.Name()]; dup {
			continue
		}
		w.sinks[s.Name()] = s
		w.order = append(w.order, s.Name())
	}
	return w
}

// NewNotificationEnqueuer returns a worker that records one task per named
// sink and never delivers. Start must not be called on it; the process that
// owns the sinks picks the tasks up from redis or by polling the store.
func NewNotificationEnqueuer(store domain.NotificationQueue, sinkNames []string, redisClient *redis.Client, logger *zerolog.Logger) *NotificationWorker {
	w := NewNotificationWorker(store, nil, redisClient, RetryPolicy{}, logger)
	w.enqueueOnly = true
	seen := make(map[string]bool, len(sinkNames))
	for _, name := range sinkNames {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		w.order = append(w.order, name)
	}
	return w
}

// Subscribe attaches the worker to every booking event on bus.
func (w *NotificationWorker) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(events.BookingEventTypes, w.HandleEvent)
}

// HandleEvent is the event bus handler. It only enqueues; delivery happens in Start.
func (w *NotificationWorker) HandleEvent(event *events.Event) error {
	var be models.BookingEvent
	if err := json.Unmarshal(event.Payload, &be); err != nil {
		return fmt.Errorf("decode %s event: %w", event.Type, err)
	}
	if be.Type == "" {
		be.Type = event.Type
	}
	return w.Enqueue(context.Background(), &be)
}

// Enqueue persists one task per sink and schedules it on redis, or on the
// in-memory queue when redis is absent or failing.
func (w *NotificationWorker) Enqueue(ctx context.Context, event *models.BookingEvent) error {
	if event.BookingID == 0 {
		return errors.New("booking id is required")
	}

	var errs []error
	for _, name := range w.order {
		raw, err := json.Marshal(taskPayload{Sink: name, Event: event})
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		task := models.NotificationTask{
			EventType: event.Type,
			BookingID: event.BookingID,
			Payload:   string(raw),
			Status:    models.TaskPending,
		}
		if err := w.store.CreateNotificationTask(ctx, &task); err != nil {
			errs = append(errs, fmt.Errorf("persist %s task: %w", name, err))
			continue
		}
		w.schedule(ctx, task)
	}
	return errors.Join(errs...)
}

func (w *NotificationWorker) schedule(ctx context.Context, task models.NotificationTask) {
	if w.redis != nil {
		if err := w.pushRedis(ctx, queueKey, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, using memory queue")
		} else {
			return
		}
	}
	if w.enqueueOnly {
		w.logger.Debug().Int64("task_id", task.ID).Msg("task left for polling")
		return
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left for polling")
	}
}

// Start delivers queued tasks until ctx is done. Tasks left pending by a
// previous run are delivered first.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Strs("sinks", w.order).Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	w.reload(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if n := w.poll(ctx, w.staleAfter); n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case t := <-w.queue:
			w.processTask(ctx, &t)
		case <-time.After(w.pollInterval):
		}
	}
}

func (w *NotificationWorker) reload(ctx context.Context) {
	if n := w.poll(ctx, 0); n > 0 {
		w.logger.Info().Int("tasks", n).Msg("Reloaded pending notification tasks")
	}
}

// poll delivers due tasks from the store. Pending tasks created less than
// minAge ago are skipped; they are still travelling through a queue.
func (w *NotificationWorker) poll(ctx context.Context, minAge time.Duration) int {
	tasks, err := w.store.GetPendingNotificationTasks(ctx, w.batchSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("fetch pending notification tasks")
		}
		return 0
	}

	processed := 0
	cutoff := w.now().Add(-minAge)
	for i := range tasks {
		t := &tasks[i]
		if minAge > 0 && t.Status == models.TaskPending && t.CreatedAt.After(cutoff) {
			continue
		}
		w.processTask(ctx, t)
		processed++
	}
	return processed
}

func (w *NotificationWorker) tryLocalQueue() (models.NotificationTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.NotificationTask{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.NotificationTask, bool) {
	if w.redis == nil {
		return models.NotificationTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, queueKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			w.logger.Error().Err(err).Msg("redis BRPOP")
		}
		return models.NotificationTask{}, false
	}
	if len(res) != 2 {
		return models.NotificationTask{}, false
	}
	var task models.NotificationTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Error().Err(err).Msg("decode redis task")
		return models.NotificationTask{}, false
	}
	return task, true
}

func (w *NotificationWorker) processTask(ctx context.Context, task *models.NotificationTask) {
	var payload taskPayload
	if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil || payload.Event == nil {
		if err == nil {
			err = errors.New("event missing")
		}
		w.failTask(ctx, task, fmt.Errorf("decode payload: %w", err))
		return
	}

	sink, ok := w.sinks[payload.Sink]
	if !ok {
		w.failTask(ctx, task, fmt.Errorf("unknown sink %q", payload.Sink))
		return
	}

	if err := sink.Notify(ctx, payload.Event); err != nil {
		metrics.IncNotification(sink.Name(), false)
		w.retryOrFail(ctx, task, &domain.NotificationError{Sink: sink.Name(), Err: err})
		return
	}

	metrics.IncNotification(sink.Name(), true)
	if err := w.store.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark notification completed")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, task *models.NotificationTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	next := w.now().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).Int64("task_id", task.ID).Int("attempt", attempt).Time("next_retry_at", next).Msg("notification delivery failed, will retry")
	if err := w.store.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark notification retry")
	}
}

func (w *NotificationWorker) failTask(ctx context.Context, task *models.NotificationTask, cause error) {
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Int64("booking_id", task.BookingID).Msg("notification delivery gave up")
	if err := w.store.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("mark notification failed")
	}
	if w.redis != nil {
		if err := w.pushRedis(ctx, deadLetterKey, *task); err != nil {
			w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("dead letter push")
		}
	}
}

func (w *NotificationWorker) pushRedis(ctx context.Context, key string, task models.NotificationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
