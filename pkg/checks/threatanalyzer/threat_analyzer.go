package threatanalyzer

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pathlearn/authguard/pkg/checks"
	"github.com/pathlearn/authguard/pkg/config"
	"github.com/pathlearn/authguard/pkg/types"
)

// Factors are the four independent component scores feeding the
// composite threat estimate. Each is on a 0..100 scale.
type Factors struct {
	Frequency int
	Behavior  int
	Location  int
	Device    int
}

// Assessment is the outcome of analyzing one identifier pair. Risks
// lists a human-readable string for every sub-condition that fired.
type Assessment struct {
	Overall int
	Factors Factors
	Risks   []string
}

type Opts struct {
	TimeProvider func() time.Time
}

// Analyzer maintains the rolling event history and computes composite
// threat scores from the trailing analysis window.
type Analyzer struct {
	store        *eventStore
	sink         EventSink
	policy       config.ThreatPolicy
	logger       *logrus.Logger
	timeProvider func() time.Time
}

func New(policy config.ThreatPolicy, logger *logrus.Logger, sink EventSink, opts *Opts) *Analyzer {
	timeProvider := time.Now
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	return &Analyzer{
		store:        newEventStore(policy.RetentionWindow, policy.MaxEventsPerIP),
		sink:         sink,
		policy:       policy,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

// RecordEvent appends the event to both indices and forwards it to
// the persistence sink when one is configured. Sink failures are
// logged and never block recording.
func (a *Analyzer) RecordEvent(ctx context.Context, event types.ThreatEvent) {
	a.store.append(event)

	if a.sink != nil {
		if err := a.sink.SaveEvent(ctx, &event); err != nil {
			a.logger.WithError(err).WithField("event_id", event.ID).
				Warn("failed to persist threat event")
		}
	}
}

// Analyze computes the composite threat score for the identifier pair
// from the last analysis window of history. The overall score is the
// mean of the four factor scores, clamped to 100.
func (a *Analyzer) Analyze(email, ip, userAgent string, eventType types.EventType) Assessment {
	now := a.timeProvider()
	cutoff := now.Add(-a.policy.AnalysisWindow)

	ipEvents := a.store.recentByIP(ip, cutoff)
	var emailEvents []types.ThreatEvent
	if email != "" {
		emailEvents = a.store.recentByEmail(email, cutoff)
	}

	var risks []string
	addRisk := func(msg string) {
		risks = append(risks, msg)
	}

	factors := Factors{
		Frequency: a.frequencyScore(ipEvents, emailEvents, addRisk),
		Behavior:  a.behaviorScore(ipEvents, addRisk),
		Location:  a.locationScore(ipEvents, emailEvents, addRisk),
		Device:    a.deviceScore(ipEvents, userAgent, addRisk),
	}

	overall := (factors.Frequency + factors.Behavior + factors.Location + factors.Device) / 4
	if overall > 100 {
		overall = 100
	}

	a.logger.WithFields(logrus.Fields{
		"ip":         ip,
		"event_type": eventType,
		"overall":    overall,
	}).Debug("threat analysis completed")

	return Assessment{Overall: overall, Factors: factors, Risks: risks}
}

func (a *Analyzer) frequencyScore(ipEvents, emailEvents []types.ThreatEvent, addRisk func(string)) int {
	score := 0
	switch {
	case len(ipEvents) > 10:
		score += 40
		addRisk("very high event frequency from this IP")
	case len(ipEvents) > 5:
		score += 20
		addRisk("elevated event frequency from this IP")
	}
	if len(emailEvents) > 5 {
		score += 30
		addRisk("elevated event frequency for this email")
	}
	return score
}

func (a *Analyzer) behaviorScore(ipEvents []types.ThreatEvent, addRisk func(string)) int {
	score := 0

	failed := 0
	for _, e := range ipEvents {
		if e.Severity == types.SeverityMedium {
			failed++
		}
	}
	if failed > 3 {
		score += 50
		addRisk("repeated failed attempts from this IP")
	}

	switch cov, ok := intervalCoV(ipEvents); {
	case ok && cov < 0.1:
		score += 40
		addRisk("near-perfectly regular request timing")
	case ok && cov < 0.3:
		score += 20
		addRisk("unusually regular request timing")
	}

	return score
}

// locationScore measures geographic dispersion. The email index is
// the interesting one: one account hopping across many source
// regions within the window is a takeover pattern.
func (a *Analyzer) locationScore(ipEvents, emailEvents []types.ThreatEvent, addRisk func(string)) int {
	events := emailEvents
	if len(events) == 0 {
		events = ipEvents
	}
	buckets := make(map[string]struct{})
	for _, e := range events {
		buckets[geoBucket(e.IP)] = struct{}{}
	}
	if len(buckets) > 3 {
		addRisk("activity dispersed across many regions")
		return 30
	}
	return 0
}

func (a *Analyzer) deviceScore(ipEvents []types.ThreatEvent, userAgent string, addRisk func(string)) int {
	score := 0

	agents := make(map[string]struct{})
	for _, e := range ipEvents {
		if e.UserAgent != "" {
			agents[e.UserAgent] = struct{}{}
		}
	}
	if len(agents) > 3 {
		score += 40
		addRisk("device fingerprint churns across requests")
	}

	if checks.IsDeclaredBot(userAgent) {
		score += 60
		addRisk("user agent matches known automation signature")
	} else if checks.MissingBrowserTokens(userAgent) {
		score += 30
		addRisk("user agent lacks common browser identifiers")
	}

	if score > 100 {
		score = 100
	}
	return score
}

// intervalCoV computes the coefficient of variation (stddev/mean) of
// the inter-event intervals. At least three events are required for a
// meaningful estimate.
func intervalCoV(events []types.ThreatEvent) (float64, bool) {
	if len(events) < 3 {
		return 0, false
	}

	timestamps := make([]time.Time, len(events))
	for i, e := range events {
		timestamps[i] = e.Timestamp
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i].Before(timestamps[j]) })

	intervals := make([]float64, 0, len(timestamps)-1)
	for i := 1; i < len(timestamps); i++ {
		intervals = append(intervals, timestamps[i].Sub(timestamps[i-1]).Seconds())
	}

	mean := 0.0
	for _, v := range intervals {
		mean += v
	}
	mean /= float64(len(intervals))
	if mean == 0 {
		// All events share one timestamp: maximally regular.
		return 0, true
	}

	variance := 0.0
	for _, v := range intervals {
		variance += (v - mean) * (v - mean)
	}
	variance /= float64(len(intervals))

	return math.Sqrt(variance) / mean, true
}

// geoBucket coarsely buckets an IP by its first octet. A stand-in for
// real geolocation, good enough to notice dispersion.
func geoBucket(ip string) string {
	first, _, found := strings.Cut(ip, ".")
	if !found {
		return "unknown"
	}
	octet, err := strconv.Atoi(first)
	if err != nil {
		return "unknown"
	}
	switch {
	case octet < 64:
		return "region-a"
	case octet < 128:
		return "region-b"
	case octet < 192:
		return "region-c"
	default:
		return "region-d"
	}
}

// Sweep purges events older than the retention window.
func (a *Analyzer) Sweep() int {
	return a.store.sweep(a.timeProvider())
}
