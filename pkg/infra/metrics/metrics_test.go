package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/pathlearn/authguard/pkg/infra/metrics"
)

func TestPrometheusRecorder(t *testing.T) {
	registry := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(registry)

	recorder.ObserveCheck("login", true, 2*time.Millisecond)
	recorder.ObserveCheck("login", true, time.Millisecond)
	recorder.ObserveCheck("signup", false, 3*time.Millisecond)
	recorder.IncStageDenial("honeypot")
	recorder.IncCaptchaRequired()

	families, err := registry.Gather()
	assert.NoError(t, err)
	names := make(map[string]struct{}, len(families))
	for _, f := range families {
		names[f.GetName()] = struct{}{}
	}
	assert.Contains(t, names, "authguard_checks_total")
	assert.Contains(t, names, "authguard_stage_denials_total")
	assert.Contains(t, names, "authguard_captcha_required_total")
	assert.Contains(t, names, "authguard_check_duration_seconds")

	expected := `
		# HELP authguard_checks_total Total number of security checks performed
		# TYPE authguard_checks_total counter
		authguard_checks_total{action="login",outcome="allowed"} 2
		authguard_checks_total{action="signup",outcome="denied"} 1
	`
	assert.NoError(t, testutil.GatherAndCompare(registry,
		strings.NewReader(expected), "authguard_checks_total"))
}

func TestNopRecorderIsSafe(t *testing.T) {
	recorder := metrics.NewNopRecorder()

	// Must be callable without any registry behind it.
	recorder.ObserveCheck("login", true, time.Millisecond)
	recorder.IncStageDenial("email")
	recorder.IncCaptchaRequired()
}
