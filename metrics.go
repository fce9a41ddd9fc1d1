package walletauth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. Optional: a nil *Metrics
// disables instrumentation, every recording method is nil-safe.
type Metrics struct {
	loginsStarted   prometheus.Counter
	loginsCompleted prometheus.Counter
	changesStarted  prometheus.Counter
	changesDone     prometheus.Counter
	otpFailures     *prometheus.CounterVec
	rateLimited     prometheus.Counter
	sessionsKilled  prometheus.Counter
	sessionsSwept   prometheus.Counter
}

// NewMetrics registers the engine collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		loginsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "walletauth", Name: "logins_started_total",
			Help: "Login sessions created.",
		}),
		loginsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "walletauth", Name: "logins_completed_total",
			Help: "Login flows that reached terminal completion.",
		}),
		changesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "walletauth", Name: "phone_changes_started_total",
			Help: "Phone-change sessions created.",
		}),
		changesDone: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "walletauth", Name: "phone_changes_completed_total",
			Help: "Phone changes applied to the durable identity.",
		}),
		otpFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletauth", Name: "otp_failures_total",
			Help: "Attempt-consuming OTP verification failures.",
		}, []string{"leg"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "walletauth", Name: "rate_limited_total",
			Help: "Challenge issuances rejected by the fixed-window limiter.",
		}),
		sessionsKilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "walletauth", Name: "sessions_destroyed_total",
			Help: "Sessions destroyed at the attempt ceiling.",
		}),
		sessionsSwept: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "walletauth", Name: "sessions_swept_total",
			Help: "Expired sessions evicted by the background sweep.",
		}),
	}
}

func (m *Metrics) incLoginStarted() {
	if m != nil {
		m.loginsStarted.Inc()
	}
}

func (m *Metrics) incLoginCompleted() {
	if m != nil {
		m.loginsCompleted.Inc()
	}
}

func (m *Metrics) incChangeStarted() {
	if m != nil {
		m.changesStarted.Inc()
	}
}

func (m *Metrics) incChangeDone() {
	if m != nil {
		m.changesDone.Inc()
	}
}

func (m *Metrics) incOTPFailure(leg string) {
	if m != nil {
		m.otpFailures.WithLabelValues(leg).Inc()
	}
}

func (m *Metrics) incRateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}

func (m *Metrics) incSessionKilled() {
	if m != nil {
		m.sessionsKilled.Inc()
	}
}

func (m *Metrics) addSessionsSwept(n int) {
	if m != nil && n > 0 {
		m.sessionsSwept.Add(float64(n))
	}
}
