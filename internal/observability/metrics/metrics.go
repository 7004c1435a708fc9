package metrics

import "github.com/prometheus/client_golang/prometheus"

// ReminderMetrics exposes counters/histograms for reminder and reply flows.
type ReminderMetrics struct {
	remindersTotal   *prometheus.CounterVec
	runDuration      prometheus.Histogram
	webhookMessages  *prometheus.CounterVec
	storeLookups     *prometheus.CounterVec
	breakerStates    *prometheus.CounterVec
	staffAlertsTotal *prometheus.CounterVec
}

func NewReminderMetrics(reg prometheus.Registerer) *ReminderMetrics {
	m := &ReminderMetrics{
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calreminder",
			Subsystem: "scheduler",
			Name:      "reminders_total",
			Help:      "Reminders processed per run item",
		}, []string{"channel", "status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "calreminder",
			Subsystem: "scheduler",
			Name:      "run_duration_seconds",
			Help:      "Duration of a single reminder run",
			Buckets:   prometheus.DefBuckets,
		}),
		webhookMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calreminder",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Inbound webhook entries by type and outcome",
		}, []string{"type", "outcome"}),
		storeLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calreminder",
			Subsystem: "conversation",
			Name:      "lookups_total",
			Help:      "Conversation store lookups by result",
		}, []string{"result"}),
		breakerStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calreminder",
			Subsystem: "notify",
			Name:      "breaker_transitions_total",
			Help:      "Circuit breaker state changes",
		}, []string{"name", "from", "to"}),
		staffAlertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "calreminder",
			Subsystem: "notify",
			Name:      "staff_alerts_total",
			Help:      "Staff reschedule alerts by channel and status",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.remindersTotal, m.runDuration, m.webhookMessages, m.storeLookups, m.breakerStates, m.staffAlertsTotal)
	return m
}

// ObserveReminder counts one run item; status is sent, failed or skipped.
func (m *ReminderMetrics) ObserveReminder(channel, status string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(channel, status).Inc()
}

func (m *ReminderMetrics) ObserveRunDuration(seconds float64) {
	if m == nil {
		return
	}
	m.runDuration.Observe(seconds)
}

func (m *ReminderMetrics) ObserveWebhook(kind, outcome string) {
	if m == nil {
		return
	}
	m.webhookMessages.WithLabelValues(kind, outcome).Inc()
}

func (m *ReminderMetrics) ObserveStoreLookup(hit bool) {
	if m == nil {
		return
	}
	label := "miss"
	if hit {
		label = "hit"
	}
	m.storeLookups.WithLabelValues(label).Inc()
}

func (m *ReminderMetrics) ObserveBreakerState(name, from, to string) {
	if m == nil {
		return
	}
	m.breakerStates.WithLabelValues(name, from, to).Inc()
}

func (m *ReminderMetrics) ObserveStaffAlert(channel string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.staffAlertsTotal.WithLabelValues(channel, status).Inc()
}
