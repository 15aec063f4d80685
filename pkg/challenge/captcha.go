package challenge

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Captcha is a challenge presented to the user. The answer never
// leaves the server; it lives in the answer store keyed by ID.
type Captcha struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}

// AnswerStore keeps captcha answers server-side for a short TTL.
// Consume removes the entry on first lookup regardless of whether the
// subsequent comparison succeeds.
type AnswerStore interface {
	Set(ctx context.Context, id, answer string, ttl time.Duration) error
	Consume(ctx context.Context, id string) (string, bool, error)
}

type GeneratorOpts struct {
	UUIDProvider func() uuid.UUID
	Rand         *rand.Rand
}

// Generator produces simple arithmetic captchas. Explicitly not a
// production-grade challenge; it raises the cost of naive automation.
type Generator struct {
	store        AnswerStore
	answerTTL    time.Duration
	logger       *logrus.Logger
	uuidProvider func() uuid.UUID
	rand         *rand.Rand
}

func NewGenerator(store AnswerStore, answerTTL time.Duration, logger *logrus.Logger, opts *GeneratorOpts) *Generator {
	g := &Generator{
		store:        store,
		answerTTL:    answerTTL,
		logger:       logger,
		uuidProvider: uuid.New,
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if opts != nil && opts.UUIDProvider != nil {
		g.uuidProvider = opts.UUIDProvider
	}
	if opts != nil && opts.Rand != nil {
		g.rand = opts.Rand
	}
	return g
}

// NewCaptcha creates a challenge and stores its answer.
func (g *Generator) NewCaptcha(ctx context.Context) (*Captcha, error) {
	a := g.rand.Intn(9) + 1
	b := g.rand.Intn(9) + 1

	var question string
	var answer int
	if g.rand.Intn(2) == 0 {
		question = fmt.Sprintf("What is %d + %d?", a, b)
		answer = a + b
	} else {
		if a < b {
			a, b = b, a
		}
		question = fmt.Sprintf("What is %d - %d?", a, b)
		answer = a - b
	}

	id := g.uuidProvider().String()
	if err := g.store.Set(ctx, id, strconv.Itoa(answer), g.answerTTL); err != nil {
		return nil, fmt.Errorf("failed to store captcha answer: %w", err)
	}

	return &Captcha{ID: id, Question: question}, nil
}

// Verify checks the submitted answer. The stored answer is consumed
// on the first attempt, so retrying with the same ID always fails.
func (g *Generator) Verify(ctx context.Context, id, answer string) bool {
	expected, found, err := g.store.Consume(ctx, id)
	if err != nil {
		g.logger.WithError(err).WithField("captcha_id", id).Warn("captcha answer lookup failed")
		return false
	}
	if !found {
		return false
	}
	return strings.TrimSpace(answer) == expected
}
