package threatanalyzer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlearn/authguard/pkg/checks/threatanalyzer"
	"github.com/pathlearn/authguard/pkg/config"
	"github.com/pathlearn/authguard/pkg/types"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newAnalyzer(clock *fakeClock, sink threatanalyzer.EventSink) *threatanalyzer.Analyzer {
	return threatanalyzer.New(config.Default().Threat, logrus.New(), sink,
		&threatanalyzer.Opts{TimeProvider: clock.Now})
}

func loginEvent(id int, email, ip string, severity types.Severity, at time.Time) types.ThreatEvent {
	return types.ThreatEvent{
		ID:        fmt.Sprintf("evt-%d", id),
		Timestamp: at,
		Type:      types.EventLoginAttempt,
		Severity:  severity,
		IP:        ip,
		UserAgent: browserUA,
		Email:     email,
	}
}

func TestAnalyzer_QuietHistoryScoresZero(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	analyzer := newAnalyzer(clock, nil)

	assessment := analyzer.Analyze("alice@example.com", "93.184.216.34", browserUA, types.EventLoginAttempt)

	assert.Equal(t, 0, assessment.Overall)
	assert.Empty(t, assessment.Risks)
}

func TestAnalyzer_FrequencyFactor(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	analyzer := newAnalyzer(clock, nil)

	// Irregular spacing keeps the timing-regularity signal quiet.
	offsets := []time.Duration{0, 3, 9, 11, 20, 27, 31, 40, 49, 50, 58}
	for i, m := range offsets {
		analyzer.RecordEvent(context.Background(),
			loginEvent(i, "", "93.184.216.34", types.SeverityLow, clock.now.Add(-m*time.Minute)))
	}

	assessment := analyzer.Analyze("", "93.184.216.34", browserUA, types.EventLoginAttempt)

	assert.Equal(t, 40, assessment.Factors.Frequency)
	assert.Contains(t, assessment.Risks, "very high event frequency from this IP")
}

func TestAnalyzer_RepeatedFailuresRaiseBehavior(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	analyzer := newAnalyzer(clock, nil)

	offsets := []time.Duration{2, 7, 19, 31}
	for i, m := range offsets {
		analyzer.RecordEvent(context.Background(),
			loginEvent(i, "bob@example.com", "93.184.216.34", types.SeverityMedium, clock.now.Add(-m*time.Minute)))
	}

	assessment := analyzer.Analyze("bob@example.com", "93.184.216.34", browserUA, types.EventLoginAttempt)

	assert.GreaterOrEqual(t, assessment.Factors.Behavior, 50)
	assert.Contains(t, assessment.Risks, "repeated failed attempts from this IP")
}

func TestAnalyzer_MetronomicTimingRaisesBehavior(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	analyzer := newAnalyzer(clock, nil)

	// Exactly one event every five minutes, a script's heartbeat.
	for i := 0; i < 5; i++ {
		analyzer.RecordEvent(context.Background(),
			loginEvent(i, "", "93.184.216.34", types.SeverityLow, clock.now.Add(-time.Duration(i)*5*time.Minute)))
	}

	assessment := analyzer.Analyze("", "93.184.216.34", browserUA, types.EventLoginAttempt)

	assert.Contains(t, assessment.Risks, "near-perfectly regular request timing")
}

func TestAnalyzer_AccountHoppingRegions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	analyzer := newAnalyzer(clock, nil)

	// One account, four source regions inside the window.
	ips := []string{"23.1.1.1", "93.184.216.34", "150.10.0.2", "203.0.113.9"}
	offsets := []time.Duration{1, 8, 22, 37}
	for i, ip := range ips {
		analyzer.RecordEvent(context.Background(),
			loginEvent(i, "carol@example.com", ip, types.SeverityLow, clock.now.Add(-offsets[i]*time.Minute)))
	}

	assessment := analyzer.Analyze("carol@example.com", "203.0.113.9", browserUA, types.EventLoginAttempt)

	assert.Equal(t, 30, assessment.Factors.Location)
	assert.Contains(t, assessment.Risks, "activity dispersed across many regions")
}

func TestAnalyzer_BotAgentRaisesDevice(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	analyzer := newAnalyzer(clock, nil)

	assessment := analyzer.Analyze("", "93.184.216.34", "python-bot/1.0", types.EventLoginAttempt)

	assert.Equal(t, 60, assessment.Factors.Device)
	assert.Contains(t, assessment.Risks, "user agent matches known automation signature")
}

func TestAnalyzer_ScoreMonotonicInEventCount(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	analyzer := newAnalyzer(clock, nil)

	// Adding history never lowers the score.
	prev := 0
	offsets := []time.Duration{0, 3, 9, 11, 20, 27, 31, 40, 49, 50, 58, 59}
	for i, m := range offsets {
		analyzer.RecordEvent(context.Background(),
			loginEvent(i, "dave@example.com", "93.184.216.34", types.SeverityMedium, clock.now.Add(-m*time.Minute)))

		got := analyzer.Analyze("dave@example.com", "93.184.216.34", browserUA, types.EventLoginAttempt).Overall
		assert.GreaterOrEqual(t, got, prev, "after %d events", i+1)
		prev = got
	}
	assert.Greater(t, prev, 0)
}

func TestAnalyzer_EventsOutsideWindowIgnored(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	analyzer := newAnalyzer(clock, nil)

	for i := 0; i < 12; i++ {
		analyzer.RecordEvent(context.Background(),
			loginEvent(i, "", "93.184.216.34", types.SeverityMedium, clock.now.Add(-2*time.Hour)))
	}

	assessment := analyzer.Analyze("", "93.184.216.34", browserUA, types.EventLoginAttempt)
	assert.Equal(t, 0, assessment.Overall)
}

func TestAnalyzer_SweepPurgesExpired(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	analyzer := newAnalyzer(clock, nil)

	analyzer.RecordEvent(context.Background(),
		loginEvent(1, "erin@example.com", "93.184.216.34", types.SeverityLow, clock.now))

	clock.Advance(25 * time.Hour)
	// Indexed by email and by IP, so the sweep removes both copies.
	assert.Equal(t, 2, analyzer.Sweep())
	assert.Equal(t, 0, analyzer.Sweep())
}

func TestAnalyzer_SinkFailureDoesNotBlockRecording(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	sink := &failingSink{err: errors.New("database unavailable")}
	analyzer := newAnalyzer(clock, sink)

	offsets := []time.Duration{2, 7, 19, 31}
	for i, m := range offsets {
		analyzer.RecordEvent(context.Background(),
			loginEvent(i, "", "93.184.216.34", types.SeverityMedium, clock.now.Add(-m*time.Minute)))
	}

	require.Equal(t, 4, sink.calls)
	assessment := analyzer.Analyze("", "93.184.216.34", browserUA, types.EventLoginAttempt)
	assert.Contains(t, assessment.Risks, "repeated failed attempts from this IP")
}

type failingSink struct {
	err   error
	calls int
}

func (s *failingSink) SaveEvent(context.Context, *types.ThreatEvent) error {
	s.calls++
	return s.err
}
