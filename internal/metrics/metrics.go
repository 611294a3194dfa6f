package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "venuebook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bookings_created_total",
		Help:      "Bookings accepted as pending.",
	})

	bookingConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "booking_conflicts_total",
		Help:      "Booking requests rejected because of an overlapping active booking.",
	})

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Lifecycle transitions by target status.",
		},
		[]string{"to"},
	)

	sweepItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_items_total",
			Help:      "Reconciler results: completed bookings, freed spaces, failed items.",
		},
		[]string{"result"},
	)

	sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a reconciler sweep.",
		Buckets:   prometheus.DefBuckets,
	})

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and result.",
		},
		[]string{"sink", "result"},
	)

	botUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bot_updates_total",
			Help:      "Admin bot updates by command.",
		},
		[]string{"command"},
	)

	botUpdateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "bot_update_processing_seconds",
		Help:      "Time spent processing one bot update.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			bookingsCreated,
			bookingConflicts,
			bookingTransitions,
			sweepItems,
			sweepDuration,
			notifications,
			botUpdates,
			botUpdateDuration,
		)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingCreated() { bookingsCreated.Inc() }

func IncConflict() { bookingConflicts.Inc() }

func IncTransition(to string) {
	bookingTransitions.WithLabelValues(to).Inc()
}

// ObserveSweep records one reconciler pass.
func ObserveSweep(completed, freed, failed int, seconds float64) {
	sweepItems.WithLabelValues("completed").Add(float64(completed))
	sweepItems.WithLabelValues("freed").Add(float64(freed))
	sweepItems.WithLabelValues("failed").Add(float64(failed))
	sweepDuration.Observe(seconds)
}

func IncNotification(sink string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	notifications.WithLabelValues(sink, result).Inc()
}

// ObserveBotUpdate records one handled bot update.
func ObserveBotUpdate(command string, seconds float64) {
	botUpdates.WithLabelValues(command).Inc()
	botUpdateDuration.Observe(seconds)
}
