package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// AWSSESNotifier sends notification emails using AWS SES.
type AWSSESNotifier struct {
	sesClient   *ses.Client
	fromAddress string
	logger      *slog.Logger
}

// NewAWSSESNotifier creates a new AWS SES notifier
func NewAWSSESNotifier(region, fromAddress string, logger *slog.Logger) (*AWSSESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(context.Background(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSSESNotifier{
		sesClient:   ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		logger:      logger,
	}, nil
}

// SendVerificationCode mails a one-time login/confirmation code.
func (s *AWSSESNotifier) SendVerificationCode(ctx context.Context, email, code string, expiresAt time.Time) error {
	minutes := int(time.Until(expiresAt).Minutes())
	if minutes < 1 {
		minutes = 1
	}

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<h1 style="font-size: 20px;">Your PlanPago verification code</h1>
		<p>Enter this code to continue:</p>
		<p style="font-size: 32px; letter-spacing: 6px; font-weight: bold;">%s</p>
		<p>The code is valid for %d minutes.</p>
		<p style="color: #666; font-size: 12px;">If you did not request this code, you can ignore this email. Someone may have typed your address by mistake; without this code they cannot sign in.</p>
	</div>
</body>
</html>
`, code, minutes)

	textBody := fmt.Sprintf(`Your PlanPago verification code:

  %s

The code is valid for %d minutes.

If you did not request this code, you can ignore this email.
`, code, minutes)

	return s.send(ctx, email, "Your PlanPago verification code", htmlBody, textBody)
}

// SendImpersonationConsent mails the out-of-band consent link for an admin
// impersonation request.
func (s *AWSSESNotifier) SendImpersonationConsent(ctx context.Context, email, adminEmail, confirmURL string) error {
	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; color: #333;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<h1 style="font-size: 20px;">Support access request</h1>
		<p>Administrator <strong>%s</strong> has requested temporary access to your PlanPago account.</p>
		<p>If you approve, click the link below. Access expires 10 minutes after your approval.</p>
		<p><a href="%s" style="display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px;">Approve access</a></p>
		<p>Or copy and paste this link in your browser:<br><code>%s</code></p>
		<p style="color: #666; font-size: 12px;">If you did not expect this request, do nothing. Without your approval no access is granted.</p>
	</div>
</body>
</html>
`, adminEmail, confirmURL, confirmURL)

	textBody := fmt.Sprintf(`Support access request

Administrator %s has requested temporary access to your PlanPago account.

If you approve, open this link. Access expires 10 minutes after your approval:

%s

If you did not expect this request, do nothing. Without your approval no access is granted.
`, adminEmail, confirmURL)

	return s.send(ctx, email, "PlanPago: support access request", htmlBody, textBody)
}

func (s *AWSSESNotifier) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	result, err := s.sesClient.SendEmail(ctx, input)
	if err != nil {
		s.logger.Error("failed to send email via SES", slog.Any("error", err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent", slog.String("message_id", *result.MessageId))
	return nil
}
