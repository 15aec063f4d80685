package botdetector

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/pathlearn/authguard/pkg/checks"
	"github.com/pathlearn/authguard/pkg/config"
	"github.com/pathlearn/authguard/pkg/types"
)

const (
	// A sub-score above this counts toward the combined confidence.
	suspicionThreshold = 0.5

	// Triplet slope tolerance for collinear mouse paths.
	collinearEpsilon = 0.001

	userAgentWeight = 0.4
	typingWeight    = 0.3
	mouseWeight     = 0.3
)

// Report is the outcome of scoring a single interaction sample.
// Reasons are only populated when the sample is classified as a bot.
type Report struct {
	IsBot      bool
	Confidence float64
	Reasons    []string
}

// Detector scores a single interaction sample for automation
// signatures. It is a pure function over the sample; the only state
// is the configured policy.
type Detector struct {
	policy config.BotPolicy
	logger *logrus.Logger
}

func New(policy config.BotPolicy, logger *logrus.Logger) *Detector {
	return &Detector{policy: policy, logger: logger}
}

// Analyze combines user-agent, typing-pattern and mouse-movement
// sub-scores into a single bot confidence. Only sub-scores above the
// suspicion threshold contribute, weighted 0.4/0.3/0.3.
func (d *Detector) Analyze(sc *types.SecurityContext) Report {
	uaScore, uaReasons := d.analyzeUserAgent(sc.UserAgent)
	typingScore, typingReasons := d.analyzeTyping(sc.Interaction)
	mouseScore, mouseReasons := d.analyzeMouse(sc.Interaction)

	confidence := 0.0
	var reasons []string
	if uaScore > suspicionThreshold {
		confidence += uaScore * userAgentWeight
		reasons = append(reasons, uaReasons...)
	}
	if typingScore > suspicionThreshold {
		confidence += typingScore * typingWeight
		reasons = append(reasons, typingReasons...)
	}
	if mouseScore > suspicionThreshold {
		confidence += mouseScore * mouseWeight
		reasons = append(reasons, mouseReasons...)
	}

	isBot := confidence > d.policy.Threshold
	if !isBot {
		reasons = nil
	} else {
		d.logger.WithFields(logrus.Fields{
			"confidence": confidence,
			"ua_score":   uaScore,
			"typing":     typingScore,
			"mouse":      mouseScore,
		}).Debug("interaction classified as automated")
	}

	return Report{IsBot: isBot, Confidence: confidence, Reasons: reasons}
}

func (d *Detector) analyzeUserAgent(ua string) (float64, []string) {
	score := 0.0
	var reasons []string

	if checks.IsDeclaredBot(ua) {
		score += 0.8
		reasons = append(reasons, "user agent matches known automation signature")
	}
	if checks.MissingBrowserTokens(ua) {
		score += 0.3
		reasons = append(reasons, "user agent lacks common browser identifiers")
	}
	if len(ua) < 20 || len(ua) > 500 {
		score += 0.15
		reasons = append(reasons, "user agent has abnormal length")
	}

	return clamp01(score), reasons
}

func (d *Detector) analyzeTyping(sample *types.InteractionSample) (float64, []string) {
	if sample == nil || sample.TextLength == 0 {
		return 0, nil
	}

	duration := sample.Duration()
	if duration <= 0 {
		return 1.0, []string{"interaction completed instantly"}
	}

	speed := float64(sample.TextLength) / duration.Seconds()

	score := 0.0
	var reasons []string
	if speed > d.policy.MaxTypingSpeed {
		score += 0.4
		reasons = append(reasons, "typing speed exceeds human limits")
	}
	if duration < d.policy.MinInteractionTime {
		score += 0.4
		reasons = append(reasons, "form completed faster than humanly plausible")
	}
	if speed > d.policy.MaxTypingSpeed*0.7 && duration < 2*d.policy.MinInteractionTime {
		score += 0.2
		reasons = append(reasons, "fast typing combined with very short interaction")
	}

	return clamp01(score), reasons
}

func (d *Detector) analyzeMouse(sample *types.InteractionSample) (float64, []string) {
	if sample == nil {
		return 0, nil
	}

	movements := sample.MouseMovements
	if len(movements) == 0 {
		return 0.9, []string{"no mouse movement recorded"}
	}

	score := 0.0
	var reasons []string
	if len(movements) < 3 {
		score += 0.3
		reasons = append(reasons, "almost no mouse movement recorded")
	}

	if ratio, ok := collinearRatio(movements); ok && ratio > 0.7 {
		score += 0.4
		reasons = append(reasons, "mouse moves in near-perfect straight lines")
	}

	return clamp01(score), reasons
}

// collinearRatio reports the fraction of consecutive movement
// triplets whose two segments have (near-)identical slopes. Bots
// commonly interpolate the pointer along straight lines.
func collinearRatio(movements []types.MouseMovement) (float64, bool) {
	if len(movements) < 3 {
		return 0, false
	}

	collinear := 0
	triplets := len(movements) - 2
	for i := 0; i < triplets; i++ {
		a, b, c := movements[i], movements[i+1], movements[i+2]
		dx1, dy1 := b.X-a.X, b.Y-a.Y
		dx2, dy2 := c.X-b.X, c.Y-b.Y
		denom := math.Abs(dx1 * dx2)
		if denom == 0 {
			// Vertical segments have no slope; two in a row still
			// form a straight line.
			if dx1 == 0 && dx2 == 0 {
				collinear++
			}
			continue
		}
		slopeDiff := math.Abs(dy1*dx2-dy2*dx1) / denom
		if slopeDiff < collinearEpsilon {
			collinear++
		}
	}
	return float64(collinear) / float64(triplets), true
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
