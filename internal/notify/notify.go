// Package notify escalates repeated prompt injection attempts to operators
// over SES email and SNS SMS. Escalation is best effort and never blocks the
// request path.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"

	"admin-gateway/internal/common/config"
	"admin-gateway/internal/common/errors"
	"admin-gateway/internal/common/logger"
)

const defaultInjectionThreshold = 3

// SESService is the SES surface the escalator needs; satisfied by *ses.Client.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the SNS surface the escalator needs; satisfied by *sns.Client.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Escalator sends operator alerts when a session crosses the injection
// rejection threshold.
type Escalator struct {
	cfg       config.NotificationConfig
	sesClient SESService
	snsClient SNSService
	threshold int
	logger    logger.Logger
}

// New builds an escalator with live AWS clients.
func New(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Escalator, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewWithClients(cfg, ses.NewFromConfig(awsCfg), sns.NewFromConfig(awsCfg), log), nil
}

// NewWithClients builds an escalator with injected clients.
func NewWithClients(cfg config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Escalator {
	threshold := cfg.InjectionThreshold
	if threshold <= 0 {
		threshold = defaultInjectionThreshold
	}
	return &Escalator{
		cfg:       cfg,
		sesClient: sesClient,
		snsClient: snsClient,
		threshold: threshold,
		logger:    log.WithFields(map[string]interface{}{"component": "escalator"}),
	}
}

// ShouldEscalate reports whether a session's rejection count has just crossed
// the threshold. Alerts fire once per threshold multiple so a persistent
// attacker does not flood operators.
func (e *Escalator) ShouldEscalate(rejections int) bool {
	return rejections > 0 && rejections%e.threshold == 0
}

// EscalateInjection alerts operators about repeated injection attempts on a
// session. Partial failure of one channel does not stop the other.
func (e *Escalator) EscalateInjection(ctx context.Context, sessionID string, rejections int) error {
	alertID := uuid.New().String()
	subject := "Repeated prompt injection attempts detected"
	body := fmt.Sprintf(
		"Alert %s\nSession %s was blocked %d times for prompt injection as of %s. Review the audit trail for details.",
		alertID, sessionID, rejections, time.Now().UTC().Format(time.RFC3339),
	)

	var firstErr error

	if e.cfg.Email.Enabled && e.sesClient != nil && e.cfg.Email.ToEmail != "" {
		if err := e.sendEmail(ctx, subject, body); err != nil {
			e.logger.Error("escalation email failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
			firstErr = errors.NewNotificationSendFailedError("email", err)
		}
	}

	if e.cfg.SMS.Enabled && e.snsClient != nil && e.cfg.SMS.ToPhone != "" {
		if err := e.sendSMS(ctx, body); err != nil {
			e.logger.Error("escalation SMS failed", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
			if firstErr == nil {
				firstErr = errors.NewNotificationSendFailedError("sms", err)
			}
		}
	}

	if firstErr == nil {
		e.logger.Warn("injection escalation sent", map[string]interface{}{
			"session_id": sessionID,
			"rejections": rejections,
			"alert_id":   alertID,
		})
	}
	return firstErr
}

func (e *Escalator) sendEmail(ctx context.Context, subject, body string) error {
	_, err := e.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &sestypes.Destination{
			ToAddresses: []string{e.cfg.Email.ToEmail},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{Data: aws.String(subject)},
			Body: &sestypes.Body{
				Text: &sestypes.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(e.cfg.Email.FromEmail),
	})
	return err
}

func (e *Escalator) sendSMS(ctx context.Context, message string) error {
	_, err := e.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(e.cfg.SMS.ToPhone),
		Message:     aws.String(message),
	})
	return err
}
