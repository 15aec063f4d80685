package types

// ErrorCode identifies why a check denied a request. All denials
// surface through SecurityCheckResult; the code lets integrators map
// them to responses without string matching.
type ErrorCode string

const (
	ErrCodeRateLimited        ErrorCode = "rate_limited"
	ErrCodeBotDetected        ErrorCode = "bot_detected"
	ErrCodeInvalidEmail       ErrorCode = "invalid_email"
	ErrCodeDisposableEmail    ErrorCode = "disposable_email"
	ErrCodeLowReputationEmail ErrorCode = "low_reputation_email"
	ErrCodeHighRiskIP         ErrorCode = "high_risk_ip"
	ErrCodeHighThreatScore    ErrorCode = "high_threat_score"
	ErrCodeSystemFailure      ErrorCode = "system_failure"
)
