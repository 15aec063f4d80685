package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const defaultTokenTTL = 24 * time.Hour

// UserRecord is the slice of the identity provider's user this seam
// needs. The provider itself stays abstract.
type UserRecord struct {
	Email         string
	EmailVerified bool
}

// Mailer delivers the verification email. Injected so the core never
// depends on a concrete mail transport.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Opts struct {
	TokenTTL     time.Duration
	TimeProvider func() time.Time
	UUIDProvider func() uuid.UUID
}

// Service issues and validates email-verification tokens.
type Service struct {
	secret       []byte
	tokenTTL     time.Duration
	mailer       Mailer
	logger       *logrus.Logger
	timeProvider func() time.Time
	uuidProvider func() uuid.UUID
}

func NewService(secret []byte, mailer Mailer, logger *logrus.Logger, opts *Opts) *Service {
	s := &Service{
		secret:       secret,
		tokenTTL:     defaultTokenTTL,
		mailer:       mailer,
		logger:       logger,
		timeProvider: time.Now,
		uuidProvider: uuid.New,
	}
	if opts != nil {
		if opts.TokenTTL > 0 {
			s.tokenTTL = opts.TokenTTL
		}
		if opts.TimeProvider != nil {
			s.timeProvider = opts.TimeProvider
		}
		if opts.UUIDProvider != nil {
			s.uuidProvider = opts.UUIDProvider
		}
	}
	return s
}

// IsEmailVerified reports whether the user completed verification.
func (s *Service) IsEmailVerified(user *UserRecord) bool {
	return user != nil && user.EmailVerified
}

// SendVerificationEmail issues a signed token for the user's email
// and hands it to the mailer. The token is returned so callers can
// build their own links in tests or alternative flows.
func (s *Service) SendVerificationEmail(ctx context.Context, user *UserRecord) (string, error) {
	if user == nil || user.Email == "" {
		return "", fmt.Errorf("cannot send verification email without an address")
	}

	now := s.timeProvider()
	claims := jwt.RegisteredClaims{
		Subject:   user.Email,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		ID:        s.uuidProvider().String(),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign verification token: %w", err)
	}

	body := fmt.Sprintf("Confirm your email address using this token: %s", token)
	if err := s.mailer.Send(ctx, user.Email, "Verify your email address", body); err != nil {
		return "", fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.WithField("email", user.Email).Debug("verification email sent")
	return token, nil
}

// VerifyToken validates a verification token and returns the email it
// was issued for.
func (s *Service) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithTimeFunc(s.timeProvider),
	)
	if err != nil {
		return "", fmt.Errorf("invalid verification token: %w", err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", fmt.Errorf("verification token carries no subject")
	}
	return claims.Subject, nil
}
