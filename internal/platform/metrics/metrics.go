package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	ExitTransitions        *prometheus.CounterVec
	HookFailures           *prometheus.CounterVec
	InconsistenciesFixed   prometheus.Counter
	NotificationsCreated   *prometheus.CounterVec
	NotificationDeliveries *prometheus.CounterVec
	TasksProcessed         *prometheus.CounterVec
	TasksDropped           *prometheus.CounterVec
	TaskQueueDepth         prometheus.Gauge
	RealtimeConnections    prometheus.Gauge
	RealtimeFramesDropped  prometheus.Counter
}

// New creates and registers all Prometheus metrics
func New() *Metrics {
	return &Metrics{
		ExitTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_exit_transitions_total",
			Help: "Exit lifecycle operations by operation and result",
		}, []string{"operation", "result"}),
		HookFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_exit_hook_failures_total",
			Help: "Best-effort dependent-domain hook failures by hook and phase",
		}, []string{"hook", "phase"}),
		InconsistenciesFixed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flock_exit_inconsistencies_fixed_total",
			Help: "Exit records repaired by the consistency pass",
		}),
		NotificationsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_notifications_created_total",
			Help: "Persisted notifications by channel",
		}, []string{"channel"}),
		NotificationDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_notification_deliveries_total",
			Help: "Best-effort notification deliveries by sink and result",
		}, []string{"sink", "result"}),
		TasksProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_tasks_processed_total",
			Help: "Post-commit tasks executed by name and result",
		}, []string{"task", "result"}),
		TasksDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_tasks_dropped_total",
			Help: "Post-commit tasks dropped because the queue was full or closed",
		}, []string{"task"}),
		TaskQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flock_task_queue_depth",
			Help: "Tasks waiting in the post-commit queue",
		}),
		RealtimeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "flock_realtime_connections",
			Help: "Open real-time WebSocket connections",
		}),
		RealtimeFramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "flock_realtime_frames_dropped_total",
			Help: "Real-time frames dropped because a client send buffer was full",
		}),
	}
}

func (m *Metrics) IncrementExitTransition(operation, result string) {
	m.ExitTransitions.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncrementHookFailure(hook, phase string) {
	m.HookFailures.WithLabelValues(hook, phase).Inc()
}

func (m *Metrics) AddInconsistenciesFixed(n int) {
	m.InconsistenciesFixed.Add(float64(n))
}

func (m *Metrics) IncrementNotificationsCreated(channel string) {
	m.NotificationsCreated.WithLabelValues(channel).Inc()
}

func (m *Metrics) IncrementNotificationDelivery(sink, result string) {
	m.NotificationDeliveries.WithLabelValues(sink, result).Inc()
}

func (m *Metrics) IncrementTasksProcessed(task, result string) {
	m.TasksProcessed.WithLabelValues(task, result).Inc()
}

func (m *Metrics) IncrementTasksDropped(task string) {
	m.TasksDropped.WithLabelValues(task).Inc()
}

func (m *Metrics) SetTaskQueueDepth(depth int) {
	m.TaskQueueDepth.Set(float64(depth))
}

func (m *Metrics) IncrementRealtimeConnections() {
	m.RealtimeConnections.Inc()
}

func (m *Metrics) DecrementRealtimeConnections() {
	m.RealtimeConnections.Dec()
}

func (m *Metrics) IncrementRealtimeFramesDropped() {
	m.RealtimeFramesDropped.Inc()
}
