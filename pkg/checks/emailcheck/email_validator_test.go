package emailcheck_test

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/pathlearn/authguard/pkg/checks/emailcheck"
)

func TestValidator_Validate(t *testing.T) {
	validator := emailcheck.New(logrus.New())

	t.Run("well-formed address", func(t *testing.T) {
		result := validator.Validate("alice@gmail.com")
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Errors)
		assert.Equal(t, 1.0, result.Score)
	})

	t.Run("not an address at all", func(t *testing.T) {
		result := validator.Validate("not-an-email")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "email address is not well-formed")
	})

	t.Run("disposable provider", func(t *testing.T) {
		result := validator.Validate("throwaway@mailinator.com")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "email domain is a disposable provider")
		assert.Less(t, result.Score, 0.5)
	})

	t.Run("suspicious TLD", func(t *testing.T) {
		result := validator.Validate("user@freedomain.tk")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "email domain uses a suspicious TLD")
		assert.InDelta(t, 0.7, result.Score, 0.001)
	})

	t.Run("numeric local part", func(t *testing.T) {
		result := validator.Validate("12345678@example.com")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "local part is entirely numeric")
	})

	t.Run("consecutive dots", func(t *testing.T) {
		result := validator.Validate("a..b@example.com")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "local part contains consecutive dots")
	})

	t.Run("overlong address", func(t *testing.T) {
		result := validator.Validate(strings.Repeat("a", 250) + "@example.com")
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Errors, "email address exceeds maximum length")
		assert.Contains(t, result.Errors, "local part exceeds maximum length")
	})

	t.Run("leading whitespace is trimmed", func(t *testing.T) {
		result := validator.Validate("  alice@gmail.com  ")
		assert.True(t, result.IsValid)
	})
}

func TestValidator_DisposableList(t *testing.T) {
	validator := emailcheck.New(logrus.New())

	assert.True(t, validator.IsDisposableDomain("mailinator.com"))
	assert.True(t, validator.IsDisposableDomain("MAILINATOR.com"))
	assert.False(t, validator.IsDisposableDomain("example.com"))

	validator.AddDisposableDomain("Burner.Example")
	assert.True(t, validator.IsDisposableDomain("burner.example"))
	assert.False(t, validator.Validate("x@burner.example").IsValid)

	validator.RemoveDisposableDomain("mailinator.com")
	assert.False(t, validator.IsDisposableDomain("mailinator.com"))
}

func TestValidator_ReputationScore(t *testing.T) {
	validator := emailcheck.New(logrus.New())

	cases := []struct {
		name  string
		email string
		want  float64
	}{
		{"trusted provider", "alice@gmail.com", 1.0},
		{"university", "student@cs.stanford.edu", 0.9},
		{"government", "clerk@city.example.gov", 0.9},
		{"corporate host", "jo@corp-mail.com", 0.8},
		{"plain com domain", "user@example.com", 0.6},
		{"unknown TLD", "user@example.xyz", 0.5},
		{"no domain", "nodomain", 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, validator.ReputationScore(tc.email), 0.001)
		})
	}
}
