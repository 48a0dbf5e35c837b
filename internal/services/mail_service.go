package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// MailService defines the security notification emails the identity core
// sends. Implementations are best-effort collaborators: callers log failures
// but never fail an authentication because a mail could not be sent.
type MailService interface {
	SendNewDeviceLoggedInEmail(ctx context.Context, email, deviceType string, at time.Time, ip string) error
	SendFailedLoginAttemptsEmail(ctx context.Context, email string, at time.Time, ip string) error
	SendFailedTwoFactorAttemptsEmail(ctx context.Context, email string, at time.Time, ip string) error
	SendTwoFactorEmail(ctx context.Context, email, code string) error
}

// AWSSESMailService sends notification emails using AWS SES
type AWSSESMailService struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

func NewAWSSESMailService(region, fromAddress string, logger *slog.Logger) (*AWSSESMailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESMailService{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

func (s *AWSSESMailService) send(ctx context.Context, email, subject, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES",
			slog.String("subject", subject),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("subject", subject),
		slog.String("message_id", *result.MessageId))
	return nil
}

func (s *AWSSESMailService) SendNewDeviceLoggedInEmail(ctx context.Context, email, deviceType string, at time.Time, ip string) error {
	body := fmt.Sprintf(`Your account was just logged into from a new device.

Device: %s
Date: %s
IP address: %s

If this was you, you can ignore this email. If you don't recognize this
login, you should change your master password immediately.
`, deviceType, at.UTC().Format(time.RFC1123), ip)

	return s.send(ctx, email, fmt.Sprintf("New Device Logged In From %s", deviceType), body)
}

func (s *AWSSESMailService) SendFailedLoginAttemptsEmail(ctx context.Context, email string, at time.Time, ip string) error {
	body := fmt.Sprintf(`There have been multiple failed login attempts on your account from an
unrecognized device.

Date: %s
IP address: %s

If this wasn't you, we recommend changing your master password.
`, at.UTC().Format(time.RFC1123), ip)

	return s.send(ctx, email, "Failed login attempts detected", body)
}

func (s *AWSSESMailService) SendFailedTwoFactorAttemptsEmail(ctx context.Context, email string, at time.Time, ip string) error {
	body := fmt.Sprintf(`There have been multiple failed two-step login attempts on your account
from an unrecognized device.

Date: %s
IP address: %s

If this wasn't you, your master password may be compromised. We recommend
changing it immediately.
`, at.UTC().Format(time.RFC1123), ip)

	return s.send(ctx, email, "Failed two-step login attempts detected", body)
}

func (s *AWSSESMailService) SendTwoFactorEmail(ctx context.Context, email, code string) error {
	body := fmt.Sprintf(`Your two-step verification code is: %s

This code expires shortly. If you did not request it, you can ignore this
email.
`, code)

	return s.send(ctx, email, "Your Two-step Login Verification Code", body)
}
