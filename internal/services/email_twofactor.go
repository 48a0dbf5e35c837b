package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/mportier/vaultgate/internal/models"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

// EmailCodeService generates, delivers, and verifies email two-factor codes.
// Codes are single-use, bcrypt-hashed at rest, and expire with the redis TTL.
type EmailCodeService struct {
	client *redis.Client
	mail   MailService
	ttl    time.Duration
	logger *slog.Logger
}

func NewEmailCodeService(client *redis.Client, mail MailService, ttl time.Duration, logger *slog.Logger) *EmailCodeService {
	return &EmailCodeService{
		client: client,
		mail:   mail,
		ttl:    ttl,
		logger: logger,
	}
}

func emailCodeKey(userID string) string {
	return "2fa:email:" + userID
}

// generateCode returns a random 6-digit code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// SendCode generates a fresh code for the user, stores its hash, and emails
// it. A new send replaces any outstanding code.
func (s *EmailCodeService) SendCode(ctx context.Context, user *models.User) error {
	code, err := generateCode()
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	if err := s.client.Set(ctx, emailCodeKey(user.ID), hash, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store email code: %w", err)
	}

	if err := s.mail.SendTwoFactorEmail(ctx, user.Email, code); err != nil {
		s.logger.Error("failed to send two-factor email",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
		return err
	}

	s.logger.Info("two-factor email code sent", slog.String("user_id", user.ID))
	return nil
}

// Verify checks a submitted code against the stored hash and consumes it on
// success. Expired, absent, or mismatched codes verify false.
func (s *EmailCodeService) Verify(ctx context.Context, user *models.User, code string) bool {
	if code == "" {
		return false
	}

	hash, err := s.client.Get(ctx, emailCodeKey(user.ID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("email code read failed",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}
		return false
	}

	if bcrypt.CompareHashAndPassword(hash, []byte(code)) != nil {
		return false
	}

	// Single use
	if err := s.client.Del(ctx, emailCodeKey(user.ID)).Err(); err != nil {
		s.logger.Warn("failed to consume email code",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}
	return true
}
