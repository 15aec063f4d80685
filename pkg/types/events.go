package types

import (
	"time"
)

// EventType classifies a recorded threat event
type EventType string

const (
	EventLoginAttempt       EventType = "login_attempt"
	EventSignupAttempt      EventType = "signup_attempt"
	EventPasswordReset      EventType = "password_reset"
	EventSuspiciousActivity EventType = "suspicious_activity"
)

// Severity of a recorded threat event
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ThreatEvent is an append-only record of an authentication event,
// indexed by email and source IP and retained for a trailing window.
type ThreatEvent struct {
	ID        string            `json:"id"`
	Timestamp time.Time         `json:"timestamp"`
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	IP        string            `json:"ip"`
	UserAgent string            `json:"user_agent"`
	Email     string            `json:"email,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// ThreatLevel is the coarse classification of an IP address
type ThreatLevel string

const (
	ThreatLevelLow    ThreatLevel = "low"
	ThreatLevelMedium ThreatLevel = "medium"
	ThreatLevelHigh   ThreatLevel = "high"
)

// IPInfo is the cached analysis of a single IP address. The geo
// fields are heuristic bucketing, not authoritative geolocation.
type IPInfo struct {
	IP          string      `json:"ip"`
	Country     string      `json:"country,omitempty"`
	Region      string      `json:"region,omitempty"`
	City        string      `json:"city,omitempty"`
	ISP         string      `json:"isp,omitempty"`
	VPN         bool        `json:"vpn"`
	Proxy       bool        `json:"proxy"`
	Tor         bool        `json:"tor"`
	ThreatLevel ThreatLevel `json:"threat_level"`
	Reputation  int         `json:"reputation"`
}
