// Package notify implements the gateway.Emitter port: queuing (or directly
// delivering) the activation and receipt emails that follow a settled
// payment. Delivery failures are surfaced to the dispatcher, which logs them
// without failing the webhook.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"billgate/internal/gateway"
)

// Email message types consumed by the downstream email worker.
const (
	MessageActivation = "subscription_activated"
	MessageReceipt    = "payment_receipt"
)

// EmailMessage is the queue payload for one outbound email. The worker owns
// template resolution; the producer ships identifiers and display values only.
type EmailMessage struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	To       string            `json:"to"`
	TenantID int64             `json:"tenant_id"`
	QueuedAt time.Time         `json:"queued_at"`
	Data     map[string]string `json:"data"`
}

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSEmitter publishes EmailMessages to the notification queue for the email
// worker to deliver. This is the production emitter; direct SMTP delivery is
// reserved for environments without queue infrastructure.
type SQSEmitter struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewSQSEmitter creates an SQSEmitter publishing to queueURL.
func NewSQSEmitter(client SQSSender, queueURL string, logger *slog.Logger) *SQSEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQSEmitter{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// SendActivation queues a subscription-activation email.
func (e *SQSEmitter) SendActivation(ctx context.Context, n gateway.ActivationNotice) error {
	return e.publish(ctx, EmailMessage{
		ID:       uuid.New().String(),
		Type:     MessageActivation,
		To:       n.Email,
		TenantID: n.TenantID,
		QueuedAt: time.Now().UTC(),
		Data: map[string]string{
			"plan_name": n.PlanName,
		},
	})
}

// SendReceipt queues a payment-receipt email.
func (e *SQSEmitter) SendReceipt(ctx context.Context, n gateway.ReceiptNotice) error {
	return e.publish(ctx, EmailMessage{
		ID:       uuid.New().String(),
		Type:     MessageReceipt,
		To:       n.Email,
		TenantID: n.TenantID,
		QueuedAt: time.Now().UTC(),
		Data: map[string]string{
			"invoice_id":     fmt.Sprintf("%d", n.InvoiceID),
			"transaction_id": n.TransactionID,
			"amount":         n.Amount.StringFixed(2),
		},
	})
}

// publish serializes the message to JSON and dispatches it to the queue. The
// message type rides as an attribute so workers can filter without parsing
// the body.
func (e *SQSEmitter) publish(ctx context.Context, msg EmailMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: failed to marshal email message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(e.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"type": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Type),
			},
		},
	}

	if _, err := e.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("notify: failed to send email message to %s: %w", e.queueURL, err)
	}

	e.logger.InfoContext(ctx, "email message queued",
		"queue_url", e.queueURL,
		"message_id", msg.ID,
		"type", msg.Type,
		"tenant_id", msg.TenantID,
	)

	return nil
}
