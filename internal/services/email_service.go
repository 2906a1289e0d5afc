package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/voyageur/internal/models"
	"github.com/BradenHooton/voyageur/pkg/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// EmailService delivers one-time passcodes
type EmailService interface {
	SendCode(ctx context.Context, email, code string, kind models.OTPKind, expiresAt time.Time) error
}

// sesAPI is the subset of the SES client used here
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// AWSSESEmailService sends emails using AWS SES
type AWSSESEmailService struct {
	client      sesAPI
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESEmailService creates a new AWS SES email service
func NewAWSSESEmailService(ctx context.Context, region, fromAddress string, logger *slog.Logger) (*AWSSESEmailService, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return newSESEmailService(ses.NewFromConfig(cfg), fromAddress, logger), nil
}

func newSESEmailService(client sesAPI, fromAddress string, logger *slog.Logger) *AWSSESEmailService {
	return &AWSSESEmailService{client: client, fromAddress: fromAddress, logger: logger}
}

type codeEmail struct {
	subject string
	heading string
	intro   string
}

var codeEmails = map[models.OTPKind]codeEmail{
	models.OTPKindSignup: {
		subject: "Confirm your Voyageur account",
		heading: "Welcome aboard",
		intro:   "Enter this code in Voyageur to confirm your email address:",
	},
	models.OTPKindEmail: {
		subject: "Your Voyageur sign-in code",
		heading: "Your one-time code",
		intro:   "Enter this code in Voyageur to continue:",
	},
}

// SendCode emails code to the address
func (s *AWSSESEmailService) SendCode(ctx context.Context, email, code string, kind models.OTPKind, expiresAt time.Time) error {
	tmpl, ok := codeEmails[kind]
	if !ok {
		return fmt.Errorf("unknown otp kind %q: %w", kind, models.ErrValidation)
	}
	minutes := int(time.Until(expiresAt).Round(time.Minute) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	htmlBody := fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #333;">
    <h1>%s</h1>
    <p>%s</p>
    <p style="font-size: 28px; letter-spacing: 6px;"><strong>%s</strong></p>
    <p>The code expires in %d minutes. If you did not request it, you can ignore this email.</p>
</body>
</html>
`, tmpl.heading, tmpl.intro, code, minutes)

	textBody := fmt.Sprintf("%s\n\n%s\n\n    %s\n\nThe code expires in %d minutes. If you did not request it, you can ignore this email.\n",
		tmpl.heading, tmpl.intro, code, minutes)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{email},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(tmpl.subject)},
			Body: &types.Body{
				Html: &types.Content{Data: aws.String(htmlBody)},
				Text: &types.Content{Data: aws.String(textBody)},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to send code via SES",
			slog.String("email", logger.SanitizedEmail(email)),
			slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.InfoContext(ctx, "code email sent",
		slog.String("email", logger.SanitizedEmail(email)),
		slog.String("kind", string(kind)),
		slog.String("message_id", aws.ToString(result.MessageId)))
	return nil
}

// LogEmailService writes codes to the log instead of sending mail.
// Development only.
type LogEmailService struct {
	logger *slog.Logger
}

func NewLogEmailService(logger *slog.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendCode(ctx context.Context, email, code string, kind models.OTPKind, expiresAt time.Time) error {
	s.logger.WarnContext(ctx, "email delivery disabled, code logged",
		slog.String("email", email),
		slog.String("kind", string(kind)),
		slog.String("code", code),
		slog.Time("expires_at", expiresAt))
	return nil
}
