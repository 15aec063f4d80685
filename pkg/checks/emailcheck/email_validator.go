package emailcheck

import (
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	maxEmailLength = 254
	maxLocalLength = 64
)

var (
	emailShape     = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	allDigitsLocal = regexp.MustCompile(`^[0-9]+$`)
	localCharset   = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+$`)
)

// Domains of throwaway-address providers. The set is extensible at
// runtime via AddDisposableDomain/RemoveDisposableDomain.
var defaultDisposableDomains = []string{
	"mailinator.com",
	"guerrillamail.com",
	"10minutemail.com",
	"tempmail.com",
	"temp-mail.org",
	"throwaway.email",
	"yopmail.com",
	"trashmail.com",
	"getnada.com",
	"maildrop.cc",
	"sharklasers.com",
	"dispostable.com",
}

// TLDs disproportionately used by abuse campaigns.
var suspiciousTLDs = map[string]struct{}{
	"tk":       {},
	"ml":       {},
	"ga":       {},
	"cf":       {},
	"top":      {},
	"click":    {},
	"download": {},
}

var trustedDomains = map[string]struct{}{
	"gmail.com":      {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"yahoo.com":      {},
	"icloud.com":     {},
	"protonmail.com": {},
}

// ValidationResult reports the syntactic and trust assessment of one
// address. IsValid requires both zero errors and a score above 0.5.
type ValidationResult struct {
	IsValid bool
	Errors  []string
	Score   float64
}

// Validator performs syntactic email validation, disposable-domain
// blocking and domain reputation scoring.
type Validator struct {
	mu         sync.RWMutex
	disposable map[string]struct{}
	logger     *logrus.Logger
}

func New(logger *logrus.Logger) *Validator {
	disposable := make(map[string]struct{}, len(defaultDisposableDomains))
	for _, d := range defaultDisposableDomains {
		disposable[d] = struct{}{}
	}
	return &Validator{disposable: disposable, logger: logger}
}

// AddDisposableDomain extends the blocklist at runtime.
func (v *Validator) AddDisposableDomain(domain string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.disposable[strings.ToLower(domain)] = struct{}{}
}

// RemoveDisposableDomain removes a domain from the blocklist.
func (v *Validator) RemoveDisposableDomain(domain string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.disposable, strings.ToLower(domain))
}

// IsDisposableDomain reports whether the domain is blocklisted.
func (v *Validator) IsDisposableDomain(domain string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.disposable[strings.ToLower(domain)]
	return ok
}

// Validate checks the shape and trustworthiness of an address. Each
// violation subtracts a fixed weight from an initial score of 1.0,
// floored at zero.
func (v *Validator) Validate(email string) ValidationResult {
	email = strings.TrimSpace(email)
	score := 1.0
	var errs []string

	deduct := func(weight float64, msg string) {
		score -= weight
		errs = append(errs, msg)
	}

	if !emailShape.MatchString(email) {
		deduct(0.5, "email address is not well-formed")
	}
	if len(email) > maxEmailLength {
		deduct(0.3, "email address exceeds maximum length")
	}

	local, domain, found := strings.Cut(email, "@")
	if found {
		if len(local) > maxLocalLength {
			deduct(0.3, "local part exceeds maximum length")
		}
		if allDigitsLocal.MatchString(local) {
			deduct(0.2, "local part is entirely numeric")
		}
		if strings.Contains(local, "..") {
			deduct(0.3, "local part contains consecutive dots")
		}
		if local != "" && !localCharset.MatchString(local) {
			deduct(0.3, "local part contains disallowed characters")
		}

		domain = strings.ToLower(domain)
		if v.IsDisposableDomain(domain) {
			deduct(0.8, "email domain is a disposable provider")
		}

		tld := domainTLD(domain)
		if _, ok := suspiciousTLDs[tld]; ok {
			deduct(0.3, "email domain uses a suspicious TLD")
		}
		if len(tld) < 2 || len(domain) < 4 || len(domain) > 253 {
			deduct(0.3, "email domain is malformed")
		}
	}

	if score < 0 {
		score = 0
	}

	return ValidationResult{
		IsValid: len(errs) == 0 && score > 0.5,
		Errors:  errs,
		Score:   score,
	}
}

func domainTLD(domain string) string {
	idx := strings.LastIndex(domain, ".")
	if idx < 0 || idx == len(domain)-1 {
		return ""
	}
	return domain[idx+1:]
}
