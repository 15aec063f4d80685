package security

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pathlearn/authguard/pkg/challenge"
	"github.com/pathlearn/authguard/pkg/checks"
	"github.com/pathlearn/authguard/pkg/checks/botdetector"
	"github.com/pathlearn/authguard/pkg/checks/emailcheck"
	"github.com/pathlearn/authguard/pkg/checks/ipreputation"
	"github.com/pathlearn/authguard/pkg/checks/ratelimiter"
	"github.com/pathlearn/authguard/pkg/checks/threatanalyzer"
	"github.com/pathlearn/authguard/pkg/config"
	"github.com/pathlearn/authguard/pkg/infra/metrics"
	"github.com/pathlearn/authguard/pkg/types"
)

const (
	stageHoneypot  = "honeypot"
	stageRateLimit = "rate_limit"
	stageBot       = "bot_detector"
	stageEmail     = "email"
	stageIP        = "ip_reputation"
	stageThreat    = "threat_analyzer"

	// Confidence assigned to a stage whose analyzer failed. The
	// request proceeds degraded with a captcha instead of failing
	// open or hard-denying on an internal fault.
	degradedConfidence = 0.5

	// Confidence below which an otherwise clean verdict still asks
	// for a captcha.
	captchaConfidenceFloor = 0.6

	// Only confident successes reset rate-limit counters and earn a
	// low-severity event.
	strongConfidence = 0.8
)

// Orchestrator runs the security checks as a fixed pipeline with
// short-circuit on hard denials, merges the soft signals into one
// verdict and records the event. All state is owned here: construct
// one orchestrator per process (or per test) and share it.
type Orchestrator struct {
	cfg          *config.Config
	logger       *logrus.Logger
	limiters     map[types.Action]*ratelimiter.Limiter
	bot          *botdetector.Detector
	email        *emailcheck.Validator
	ip           *ipreputation.Analyzer
	threat       *threatanalyzer.Analyzer
	metrics      metrics.Recorder
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID
}

type Option func(*options)

type options struct {
	metrics      metrics.Recorder
	sink         threatanalyzer.EventSink
	ipProvider   ipreputation.IntelligenceProvider
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID
}

// WithMetrics attaches a metrics recorder; the default is a nop.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(o *options) { o.metrics = recorder }
}

// WithEventSink forwards recorded threat events to a persistence sink.
func WithEventSink(sink threatanalyzer.EventSink) Option {
	return func(o *options) { o.sink = sink }
}

// WithIPProvider substitutes an external IP intelligence provider.
func WithIPProvider(provider ipreputation.IntelligenceProvider) Option {
	return func(o *options) { o.ipProvider = provider }
}

// WithTimeProvider injects a clock, for tests.
func WithTimeProvider(provider func() time.Time) Option {
	return func(o *options) { o.timeProvider = provider }
}

// WithUUIDProvider injects an ID source, for tests.
func WithUUIDProvider(provider func() uuid.UUID) Option {
	return func(o *options) { o.uuidProvider = provider }
}

func NewOrchestrator(cfg *config.Config, logger *logrus.Logger, opts ...Option) *Orchestrator {
	o := &options{
		metrics:      metrics.NewNopRecorder(),
		timeProvider: time.Now,
		uuidProvider: uuid.New,
	}
	for _, opt := range opts {
		opt(o)
	}

	limiterOpts := &ratelimiter.Opts{TimeProvider: o.timeProvider}
	analyzerOpts := &threatanalyzer.Opts{TimeProvider: o.timeProvider}

	var ipOpts []ipreputation.Option
	if o.ipProvider != nil {
		ipOpts = append(ipOpts, ipreputation.WithProvider(o.ipProvider))
	}

	return &Orchestrator{
		cfg:          cfg,
		logger:       logger,
		limiters:     ratelimiter.NewPerAction(cfg.RateLimits, logger, limiterOpts),
		bot:          botdetector.New(cfg.Bot, logger),
		email:        emailcheck.New(logger),
		ip:           ipreputation.New(cfg.IP, logger, ipOpts...),
		threat:       threatanalyzer.New(cfg.Threat, logger, o.sink, analyzerOpts),
		metrics:      o.metrics,
		timeProvider: o.timeProvider,
		uuidProvider: o.uuidProvider,
	}
}

// EmailValidator exposes the email checker so integrators can reuse
// its blocklist management.
func (o *Orchestrator) EmailValidator() *emailcheck.Validator {
	return o.email
}

// PerformSecurityCheck runs the pipeline for one request. It never
// panics and never fails open: any unexpected fault inside the
// pipeline converts to a hard deny.
func (o *Orchestrator) PerformSecurityCheck(ctx context.Context, sc *types.SecurityContext) (result *types.SecurityCheckResult) {
	start := o.timeProvider()

	defer func() {
		if r := recover(); r != nil {
			o.logger.WithField("panic", r).Error("security pipeline panicked, failing closed")
			result = &types.SecurityCheckResult{
				Allowed:    false,
				Confidence: 1.0,
				Code:       types.ErrCodeSystemFailure,
				Reasons:    []string{"Security system temporarily unavailable"},
			}
		}
	}()

	if sc == nil || sc.IP == "" {
		return &types.SecurityCheckResult{
			Allowed:    false,
			Confidence: 1.0,
			Code:       types.ErrCodeSystemFailure,
			Reasons:    []string{"Security system temporarily unavailable"},
		}
	}
	if sc.Timestamp.IsZero() {
		sc.Timestamp = o.timeProvider()
	}

	result = o.runPipeline(ctx, sc)

	o.record(ctx, sc, result)
	o.metrics.ObserveCheck(string(sc.Action), result.Allowed, o.timeProvider().Sub(start))
	if result.RequiresCaptcha {
		o.metrics.IncCaptchaRequired()
	}
	return result
}

func (o *Orchestrator) runPipeline(ctx context.Context, sc *types.SecurityContext) *types.SecurityCheckResult {
	// The honeypot is the only stage allowed to deny before any
	// scoring happens: a filled trap field is unambiguous.
	if field, tripped := challenge.InspectForm(sc.FormData); tripped {
		o.logger.WithFields(logrus.Fields{
			"field": field,
			"ip":    sc.IP,
		}).Info("honeypot field submitted")
		o.metrics.IncStageDenial(stageHoneypot)
		return &types.SecurityCheckResult{
			Allowed:    false,
			Confidence: 1.0,
			Code:       types.ErrCodeBotDetected,
			Reasons:    []string{"Bot behavior detected"},
		}
	}

	stages := []struct {
		name string
		fn   func(context.Context, *types.SecurityContext) (*checks.Result, error)
	}{
		{stageRateLimit, o.checkRateLimit},
		{stageBot, o.checkBot},
		{stageEmail, o.checkEmail},
		{stageIP, o.checkIP},
		{stageThreat, o.checkThreat},
	}

	merged := &types.SecurityCheckResult{Allowed: true, Confidence: 1.0}
	var confidences []float64

	for _, stage := range stages {
		res := o.runStage(ctx, sc, stage.name, stage.fn)
		if res == nil {
			continue // stage not applicable to this context
		}

		if !res.Allowed {
			o.metrics.IncStageDenial(stage.name)
			return &types.SecurityCheckResult{
				Allowed:         false,
				Confidence:      res.Confidence,
				Code:            res.Code,
				Reasons:         dedupe(res.Reasons),
				RetryAfter:      res.RetryAfter,
				RequiresCaptcha: res.RequiresCaptcha,
			}
		}

		confidences = append(confidences, res.Confidence)
		merged.Reasons = append(merged.Reasons, res.Reasons...)
		merged.RequiresCaptcha = merged.RequiresCaptcha || res.RequiresCaptcha
		merged.RequiresEmailVerification = merged.RequiresEmailVerification || res.RequiresEmailVerification
	}

	merged.Confidence = combineConfidences(confidences)
	merged.Reasons = dedupe(merged.Reasons)
	if merged.Confidence < captchaConfidenceFloor {
		merged.RequiresCaptcha = true
	}
	if merged.RequiresEmailVerification {
		merged.Actions = append(merged.Actions, "verify_email")
	}
	if merged.RequiresCaptcha {
		merged.Actions = append(merged.Actions, "solve_captcha")
	}
	return merged
}

// runStage isolates a single analyzer: an internal error degrades the
// stage to a low-confidence pass with a captcha instead of aborting
// the pipeline.
func (o *Orchestrator) runStage(
	ctx context.Context,
	sc *types.SecurityContext,
	name string,
	fn func(context.Context, *types.SecurityContext) (*checks.Result, error),
) *checks.Result {
	res, err := fn(ctx, sc)
	if err != nil {
		o.logger.WithError(err).WithField("stage", name).Warn("stage failed, degrading result")
		return &checks.Result{
			Allowed:         true,
			Confidence:      degradedConfidence,
			Reasons:         []string{"Additional verification required"},
			RequiresCaptcha: true,
		}
	}
	return res
}

func (o *Orchestrator) checkRateLimit(_ context.Context, sc *types.SecurityContext) (*checks.Result, error) {
	limiter, ok := o.limiters[sc.Action]
	if !ok {
		return nil, fmt.Errorf("no rate limit policy for action %q", sc.Action)
	}

	status := limiter.CheckLimit(sc.Identifier())
	if !status.Allowed {
		return &checks.Result{
			Allowed:    false,
			Confidence: 1.0,
			Code:       types.ErrCodeRateLimited,
			Reasons:    []string{fmt.Sprintf("Too many %s attempts, please try again later", sc.Action)},
			RetryAfter: status.RetryAfter,
		}, nil
	}
	return checks.Allow(), nil
}

func (o *Orchestrator) checkBot(_ context.Context, sc *types.SecurityContext) (*checks.Result, error) {
	report := o.bot.Analyze(sc)
	if report.IsBot {
		reasons := report.Reasons
		if len(reasons) == 0 {
			reasons = []string{"Automated behavior detected"}
		}
		return &checks.Result{
			Allowed:         false,
			Confidence:      report.Confidence,
			Code:            types.ErrCodeBotDetected,
			Reasons:         reasons,
			RequiresCaptcha: true,
		}, nil
	}

	return &checks.Result{
		Allowed:    true,
		Confidence: clamp01(1 - report.Confidence),
	}, nil
}

func (o *Orchestrator) checkEmail(_ context.Context, sc *types.SecurityContext) (*checks.Result, error) {
	if sc.Email == "" {
		return nil, nil
	}

	validation := o.email.Validate(sc.Email)
	if !validation.IsValid {
		reasons := validation.Errors
		if len(reasons) == 0 {
			reasons = []string{"Email address rejected"}
		}
		code := types.ErrCodeInvalidEmail
		if _, domain, found := strings.Cut(sc.Email, "@"); found && o.email.IsDisposableDomain(domain) {
			code = types.ErrCodeDisposableEmail
		}
		return checks.Deny(code, 0.9, reasons...), nil
	}

	reputation := o.email.ReputationScore(sc.Email)
	if reputation < o.cfg.Email.DenyBelow {
		return checks.Deny(types.ErrCodeLowReputationEmail, 0.9, "Email address failed reputation screening"), nil
	}

	res := &checks.Result{Allowed: true, Confidence: clamp01(reputation)}
	if reputation < o.cfg.Email.VerifyBelow {
		res.RequiresEmailVerification = true
		res.Reasons = append(res.Reasons, "Email address requires verification")
	}
	return res, nil
}

func (o *Orchestrator) checkIP(ctx context.Context, sc *types.SecurityContext) (*checks.Result, error) {
	info, err := o.ip.Analyze(ctx, sc.IP, sc.UserAgent)
	if err != nil {
		return nil, err
	}

	if info.ThreatLevel == types.ThreatLevelHigh {
		return checks.Deny(types.ErrCodeHighRiskIP, 0.9, "Request originates from a high-risk network"), nil
	}
	if info.Reputation < o.cfg.IP.DenyReputationBelow {
		return checks.Deny(types.ErrCodeHighRiskIP, 0.9, "Request originates from a low-reputation network"), nil
	}

	res := &checks.Result{Allowed: true, Confidence: 1.0}
	if info.VPN || info.Proxy || info.Tor {
		res.Confidence *= o.cfg.IP.VPNConfidenceFactor
		res.RequiresCaptcha = true
		res.Reasons = append(res.Reasons, "VPN or proxy suspected")
	}
	if info.ThreatLevel == types.ThreatLevelMedium {
		res.Confidence *= o.cfg.IP.MediumConfidenceFactor
	}
	return res, nil
}

func (o *Orchestrator) checkThreat(_ context.Context, sc *types.SecurityContext) (*checks.Result, error) {
	assessment := o.threat.Analyze(sc.Email, sc.IP, sc.UserAgent, eventTypeFor(sc.Action))

	switch {
	case assessment.Overall > o.cfg.Threat.DenyAbove:
		reasons := assessment.Risks
		if len(reasons) == 0 {
			reasons = []string{"Suspicious activity detected"}
		}
		return checks.Deny(types.ErrCodeHighThreatScore, float64(assessment.Overall)/100, reasons...), nil

	case assessment.Overall > o.cfg.Threat.CaptchaAbove:
		return &checks.Result{
			Allowed:         true,
			Confidence:      0.4,
			Reasons:         assessment.Risks,
			RequiresCaptcha: true,
		}, nil
	}

	res := &checks.Result{
		Allowed:    true,
		Confidence: math.Max(1-float64(assessment.Overall)/100, 0.1),
	}
	if assessment.Overall > o.cfg.Threat.SurfaceRisksAbove {
		res.Reasons = assessment.Risks
	}
	return res, nil
}

// record captures the outcome as a threat event and feeds it back to
// the rate limiter: only a confident pass counts as success, so a
// shaky allow does not reset the counter.
func (o *Orchestrator) record(ctx context.Context, sc *types.SecurityContext, result *types.SecurityCheckResult) {
	severity := types.SeverityMedium
	switch {
	case result.Allowed && result.Confidence > strongConfidence:
		severity = types.SeverityLow
	case !result.Allowed && result.Confidence > strongConfidence:
		severity = types.SeverityCritical
	}

	eventType := eventTypeFor(sc.Action)
	if !result.Allowed {
		eventType = types.EventSuspiciousActivity
	}

	o.threat.RecordEvent(ctx, types.ThreatEvent{
		ID:        o.uuidProvider().String(),
		Timestamp: sc.Timestamp,
		Type:      eventType,
		Severity:  severity,
		IP:        sc.IP,
		UserAgent: sc.UserAgent,
		Email:     sc.Email,
		Details: map[string]string{
			"action":     string(sc.Action),
			"allowed":    fmt.Sprintf("%t", result.Allowed),
			"confidence": fmt.Sprintf("%.2f", result.Confidence),
		},
	})

	if limiter, ok := o.limiters[sc.Action]; ok {
		success := result.Allowed && result.Confidence > strongConfidence
		limiter.RecordAttempt(sc.Identifier(), success)
	}
}

// Sweep evicts expired state from every stateful component. Call it
// on a schedule from the host process.
func (o *Orchestrator) Sweep() {
	for action, limiter := range o.limiters {
		if removed := limiter.Sweep(); removed > 0 {
			o.logger.WithFields(logrus.Fields{
				"action":  action,
				"removed": removed,
			}).Debug("swept rate limit entries")
		}
	}
	o.ip.Sweep()
	o.threat.Sweep()
}

// StartSweeper runs Sweep on the given interval until ctx is done.
// Optional: embedders with their own scheduler can call Sweep directly.
func (o *Orchestrator) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.Sweep()
			}
		}
	}()
}

func eventTypeFor(action types.Action) types.EventType {
	switch action {
	case types.ActionLogin:
		return types.EventLoginAttempt
	case types.ActionSignup:
		return types.EventSignupAttempt
	case types.ActionPasswordReset:
		return types.EventPasswordReset
	default:
		return types.EventSuspiciousActivity
	}
}

// combineConfidences averages the mean with the minimum: consistently
// good signals are rewarded while a single weak one drags the result
// down hard. The result never exceeds the simple average.
func combineConfidences(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 1.0
	}
	sum := confidences[0]
	minimum := confidences[0]
	for _, c := range confidences[1:] {
		sum += c
		if c < minimum {
			minimum = c
		}
	}
	mean := sum / float64(len(confidences))
	return clamp01((mean + minimum) / 2)
}

func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
