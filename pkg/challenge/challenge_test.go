package challenge_test

import (
	"context"
	"math/rand"
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathlearn/authguard/pkg/challenge"
)

var questionShape = regexp.MustCompile(`^What is (\d) ([+-]) (\d)\?$`)

func newGenerator(t *testing.T) *challenge.Generator {
	t.Helper()
	return challenge.NewGenerator(
		challenge.NewMemoryStore(5*time.Minute),
		5*time.Minute,
		logrus.New(),
		&challenge.GeneratorOpts{Rand: rand.New(rand.NewSource(42))},
	)
}

// solve recovers the expected answer from the question text.
func solve(t *testing.T, question string) string {
	t.Helper()
	m := questionShape.FindStringSubmatch(question)
	require.NotNil(t, m, "unexpected question shape: %q", question)

	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[3])
	if m[2] == "-" {
		return strconv.Itoa(a - b)
	}
	return strconv.Itoa(a + b)
}

func TestGenerator_RoundTrip(t *testing.T) {
	generator := newGenerator(t)
	ctx := context.Background()

	captcha, err := generator.NewCaptcha(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, captcha.ID)

	assert.True(t, generator.Verify(ctx, captcha.ID, solve(t, captcha.Question)))
}

func TestGenerator_AnswerIsOneShot(t *testing.T) {
	generator := newGenerator(t)
	ctx := context.Background()

	captcha, err := generator.NewCaptcha(ctx)
	require.NoError(t, err)

	answer := solve(t, captcha.Question)
	require.True(t, generator.Verify(ctx, captcha.ID, answer))
	assert.False(t, generator.Verify(ctx, captcha.ID, answer), "answers must not be replayable")
}

func TestGenerator_WrongAnswerConsumesChallenge(t *testing.T) {
	generator := newGenerator(t)
	ctx := context.Background()

	captcha, err := generator.NewCaptcha(ctx)
	require.NoError(t, err)

	require.False(t, generator.Verify(ctx, captcha.ID, "999"))
	// A wrong guess burns the challenge; the right answer is too late.
	assert.False(t, generator.Verify(ctx, captcha.ID, solve(t, captcha.Question)))
}

func TestGenerator_UnknownIDRejected(t *testing.T) {
	generator := newGenerator(t)

	assert.False(t, generator.Verify(context.Background(), uuid.NewString(), "4"))
}

func TestGenerator_AnswerWhitespaceTolerated(t *testing.T) {
	generator := newGenerator(t)
	ctx := context.Background()

	captcha, err := generator.NewCaptcha(ctx)
	require.NoError(t, err)

	assert.True(t, generator.Verify(ctx, captcha.ID, "  "+solve(t, captcha.Question)+" \n"))
}

func TestGenerator_SubtractionNeverNegative(t *testing.T) {
	generator := newGenerator(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		captcha, err := generator.NewCaptcha(ctx)
		require.NoError(t, err)

		answer, err := strconv.Atoi(solve(t, captcha.Question))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, answer, 0, "question: %q", captcha.Question)
	}
}

func TestNewHoneypot(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		hp := challenge.NewHoneypot()
		assert.NotEmpty(t, hp.FieldName)
		assert.Regexp(t, `^field-[0-9a-f]{8}$`, hp.ElementID)

		// Every generated field must be one Inspect recognizes.
		_, tripped := challenge.InspectForm(map[string]string{hp.FieldName: "x"})
		assert.True(t, tripped)

		seen[hp.ElementID] = struct{}{}
	}
	assert.Len(t, seen, 20, "element ids must be unique")
}

func TestInspectForm(t *testing.T) {
	t.Run("clean submission", func(t *testing.T) {
		_, tripped := challenge.InspectForm(map[string]string{
			"email":    "alice@gmail.com",
			"password": "hunter2",
		})
		assert.False(t, tripped)
	})

	t.Run("filled trap field", func(t *testing.T) {
		field, tripped := challenge.InspectForm(map[string]string{
			"email":       "alice@gmail.com",
			"website_url": "http://spam.example",
		})
		assert.True(t, tripped)
		assert.Equal(t, "website_url", field)
	})

	t.Run("whitespace-only value ignored", func(t *testing.T) {
		_, tripped := challenge.InspectForm(map[string]string{"company_fax": "   "})
		assert.False(t, tripped)
	})

	t.Run("empty form", func(t *testing.T) {
		_, tripped := challenge.InspectForm(nil)
		assert.False(t, tripped)
	})
}
