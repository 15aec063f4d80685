package types

import (
	"time"
)

// Action represents the authentication action being evaluated
type Action string

const (
	ActionLogin         Action = "login"
	ActionSignup        Action = "signup"
	ActionPasswordReset Action = "password_reset"
)

// MouseMovement is a single pointer sample captured client-side
type MouseMovement struct {
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	Timestamp time.Time `json:"timestamp"`
}

// InteractionSample captures how the user interacted with the form
// before submitting it.
type InteractionSample struct {
	StartTime      time.Time       `json:"start_time"`
	EndTime        time.Time       `json:"end_time"`
	TextLength     int             `json:"text_length"`
	MouseMovements []MouseMovement `json:"mouse_movements"`
}

// Duration returns the total interaction time of the sample.
func (s *InteractionSample) Duration() time.Duration {
	return s.EndTime.Sub(s.StartTime)
}

// SecurityContext is the per-request input to the security pipeline.
// It is constructed by the caller from the form submission plus any
// client-side interaction tracking and is never persisted.
type SecurityContext struct {
	Email       string             `json:"email,omitempty"`
	IP          string             `json:"ip"`
	UserAgent   string             `json:"user_agent"`
	Timestamp   time.Time          `json:"timestamp"`
	Action      Action             `json:"action"`
	FormData    map[string]string  `json:"form_data,omitempty"`
	Interaction *InteractionSample `json:"interaction,omitempty"`
}

// Identifier returns the key rate limiting tracks attempts against:
// the email when present, the source IP otherwise.
func (c *SecurityContext) Identifier() string {
	if c.Email != "" {
		return c.Email
	}
	return c.IP
}

// SecurityCheckResult is the admission verdict returned to the caller.
// Invariant: Allowed == false implies at least one reason and a code.
type SecurityCheckResult struct {
	Allowed                   bool      `json:"allowed"`
	Confidence                float64   `json:"confidence"`
	Code                      ErrorCode `json:"code,omitempty"`
	Reasons                   []string  `json:"reasons,omitempty"`
	Actions                   []string `json:"actions,omitempty"`
	RetryAfter                int      `json:"retry_after,omitempty"`
	RequiresCaptcha           bool     `json:"requires_captcha"`
	RequiresEmailVerification bool     `json:"requires_email_verification"`
}
