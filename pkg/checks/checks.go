package checks

import (
	"github.com/pathlearn/authguard/pkg/types"
)

// Result is the outcome of a single pipeline stage. Stage results are
// merged by the orchestrator into one SecurityCheckResult; a stage
// that denies must supply a code and at least one reason.
type Result struct {
	Allowed                   bool
	Confidence                float64
	Code                      types.ErrorCode
	Reasons                   []string
	RetryAfter                int
	RequiresCaptcha           bool
	RequiresEmailVerification bool
}

// Allow returns a clean stage result with full confidence.
func Allow() *Result {
	return &Result{Allowed: true, Confidence: 1.0}
}

// Deny returns a denying stage result with the given confidence in
// the denial and one or more reasons.
func Deny(code types.ErrorCode, confidence float64, reasons ...string) *Result {
	return &Result{Allowed: false, Confidence: confidence, Code: code, Reasons: reasons}
}
