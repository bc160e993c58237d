// internal/common/notify/notifier.go
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"property-approvals/internal/common/config"
	"property-approvals/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
)

// Notifier tells a requester how their approval request was resolved.
// Delivery is fire-and-forget: a failed notification never rolls back or
// fails the resolution that triggered it.
type Notifier interface {
	Notify(ctx context.Context, principalID, requestID, outcome string) error
}

// Interfaces for mocking the AWS clients.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// AWSNotifier delivers email via SES and SMS via SNS, looking up the
// recipient's contact details in the profiles table.
type AWSNotifier struct {
	cfg       config.NotificationConfig
	db        *sql.DB
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService
}

func NewAWSNotifier(cfg config.NotificationConfig, db *sql.DB, log logger.Logger) (*AWSNotifier, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &AWSNotifier{
		cfg:       cfg,
		db:        db,
		logger:    log.WithFields(map[string]interface{}{"component": "notifier"}),
		sesClient: ses.NewFromConfig(awsCfg),
		snsClient: sns.NewFromConfig(awsCfg),
	}, nil
}

// NewAWSNotifierWithClients wires pre-built clients, used by tests.
func NewAWSNotifierWithClients(cfg config.NotificationConfig, db *sql.DB, log logger.Logger, sesClient SESService, snsClient SNSService) *AWSNotifier {
	return &AWSNotifier{
		cfg:       cfg,
		db:        db,
		logger:    log.WithFields(map[string]interface{}{"component": "notifier"}),
		sesClient: sesClient,
		snsClient: snsClient,
	}
}

// Notify sends the resolution outcome to the requester over every enabled
// channel for which a contact exists.
func (n *AWSNotifier) Notify(ctx context.Context, principalID, requestID, outcome string) error {
	email, phone, err := n.getRecipientContact(ctx, principalID)
	if err != nil {
		n.logger.Warn("recipient not found, notification skipped", map[string]interface{}{
			"principalId": principalID,
			"requestId":   requestID,
		})
		return nil
	}

	subject, body := renderMessage(requestID, outcome)
	notificationID := uuid.New().String()

	emailSent := false
	smsSent := false

	if n.cfg.Email.Enabled && email != "" {
		if err := n.sendEmail(ctx, email, subject, body); err != nil {
			n.logger.Error("email send failed", map[string]interface{}{
				"error":          err.Error(),
				"notificationId": notificationID,
				"requestId":      requestID,
			})
		} else {
			emailSent = true
		}
	}

	if n.cfg.SMS.Enabled && phone != "" {
		if err := n.sendSMS(ctx, phone, body); err != nil {
			n.logger.Error("sms send failed", map[string]interface{}{
				"error":          err.Error(),
				"notificationId": notificationID,
				"requestId":      requestID,
			})
		} else {
			smsSent = true
		}
	}

	if !emailSent && !smsSent {
		return fmt.Errorf("no notification delivered for request %s", requestID)
	}

	n.logger.Info("notification sent", map[string]interface{}{
		"notificationId": notificationID,
		"principalId":    principalID,
		"requestId":      requestID,
		"outcome":        outcome,
		"emailSent":      emailSent,
		"smsSent":        smsSent,
		"sentAt":         time.Now().UTC().Format(time.RFC3339),
	})
	return nil
}

func (n *AWSNotifier) getRecipientContact(ctx context.Context, principalID string) (email, phone string, err error) {
	query := `SELECT COALESCE(email, ''), COALESCE(phone, '') FROM profiles WHERE id = $1`
	err = n.db.QueryRowContext(ctx, query, principalID).Scan(&email, &phone)
	return email, phone, err
}

func (n *AWSNotifier) sendEmail(ctx context.Context, to, subject, body string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(n.cfg.Email.FromEmail),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
	}
	_, err := n.sesClient.SendEmail(ctx, input)
	return err
}

func (n *AWSNotifier) sendSMS(ctx context.Context, phone, body string) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(body),
	}
	_, err := n.snsClient.Publish(ctx, input)
	return err
}

func renderMessage(requestID, outcome string) (subject, body string) {
	pretty := strings.ToUpper(outcome[:1]) + outcome[1:]
	subject = fmt.Sprintf("Your request was %s", outcome)
	body = fmt.Sprintf("%s: approval request %s has been %s. Open the portal for details.",
		pretty, requestID, outcome)
	return subject, body
}
