package emailcheck

import (
	"strings"
)

// ReputationScore estimates domain trust on a 0..1 scale. It starts
// neutral and accumulates credit for trusted providers, institutional
// suffixes, corporate-looking hosts and premium TLDs.
func (v *Validator) ReputationScore(email string) float64 {
	_, domain, found := strings.Cut(strings.TrimSpace(email), "@")
	if !found || domain == "" {
		return 0
	}
	domain = strings.ToLower(domain)

	score := 0.5

	if _, ok := trustedDomains[domain]; ok ||
		strings.HasSuffix(domain, ".edu") ||
		strings.HasSuffix(domain, ".gov") {
		score += 0.4
	}

	// Bare hostnames and obviously corporate names tend to be
	// internal or company-run mail systems.
	if strings.Contains(domain, "corp") ||
		strings.Contains(domain, "company") ||
		!strings.Contains(domain, ".") {
		score += 0.2
	}

	switch domainTLD(domain) {
	case "com", "org", "net":
		score += 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
