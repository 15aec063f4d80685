package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives pipeline outcomes. The prometheus implementation
// is the production one; Nop keeps tests and minimal embedders free
// of a registry.
type Recorder interface {
	ObserveCheck(action string, allowed bool, duration time.Duration)
	IncStageDenial(stage string)
	IncCaptchaRequired()
}

type prometheusRecorder struct {
	checksTotal     *prometheus.CounterVec
	stageDenials    *prometheus.CounterVec
	captchaRequired prometheus.Counter
	checkDuration   prometheus.Histogram
}

// NewPrometheusRecorder registers the pipeline metrics on the given
// registerer and returns a recorder bound to them.
func NewPrometheusRecorder(reg prometheus.Registerer) Recorder {
	factory := promauto.With(reg)
	return &prometheusRecorder{
		checksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authguard_checks_total",
				Help: "Total number of security checks performed",
			},
			[]string{"action", "outcome"},
		),
		stageDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "authguard_stage_denials_total",
				Help: "Hard denials by pipeline stage",
			},
			[]string{"stage"},
		),
		captchaRequired: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "authguard_captcha_required_total",
				Help: "Checks that came back requiring a captcha",
			},
		),
		checkDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "authguard_check_duration_seconds",
				Help:    "End-to-end security check duration",
				Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
			},
		),
	}
}

func (r *prometheusRecorder) ObserveCheck(action string, allowed bool, duration time.Duration) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	r.checksTotal.WithLabelValues(action, outcome).Inc()
	r.checkDuration.Observe(duration.Seconds())
}

func (r *prometheusRecorder) IncStageDenial(stage string) {
	r.stageDenials.WithLabelValues(stage).Inc()
}

func (r *prometheusRecorder) IncCaptchaRequired() {
	r.captchaRequired.Inc()
}

type nopRecorder struct{}

// NewNopRecorder returns a recorder that discards everything.
func NewNopRecorder() Recorder {
	return nopRecorder{}
}

func (nopRecorder) ObserveCheck(string, bool, time.Duration) {}
func (nopRecorder) IncStageDenial(string)                    {}
func (nopRecorder) IncCaptchaRequired()                      {}
