package notify

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"billgate/internal/config"
	"billgate/internal/gateway"
)

// mailDialer is the subset of *gomail.Dialer the emitter uses.
type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPEmitter delivers billing emails directly over SMTP. Intended for local
// and single-box deployments where no notification queue exists; production
// uses SQSEmitter and a worker.
type SMTPEmitter struct {
	dialer mailDialer
	from   string
	logger *slog.Logger
}

// NewSMTPEmitter creates an SMTPEmitter from the email configuration.
func NewSMTPEmitter(cfg config.EmailConfig, logger *slog.Logger) *SMTPEmitter {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword.Unmask())
	return newSMTPEmitterWithDialer(dialer, cfg, logger)
}

func newSMTPEmitterWithDialer(dialer mailDialer, cfg config.EmailConfig, logger *slog.Logger) *SMTPEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPEmitter{
		dialer: dialer,
		from:   fmt.Sprintf("%s <%s>", cfg.FromName, cfg.FromAddress),
		logger: logger,
	}
}

// SendActivation delivers the subscription-activation email.
func (e *SMTPEmitter) SendActivation(ctx context.Context, n gateway.ActivationNotice) error {
	subject := "Your subscription is active"
	body := fmt.Sprintf(
		"<p>Your <strong>%s</strong> subscription is now active.</p>"+
			"<p>Thanks for choosing BillGate.</p>",
		n.PlanName,
	)
	return e.send(ctx, n.Email, n.TenantID, subject, body)
}

// SendReceipt delivers the payment-receipt email.
func (e *SMTPEmitter) SendReceipt(ctx context.Context, n gateway.ReceiptNotice) error {
	subject := fmt.Sprintf("Payment received for invoice #%d", n.InvoiceID)
	body := fmt.Sprintf(
		"<p>We received your payment of <strong>R%s</strong> for invoice #%d.</p>"+
			"<p>Transaction reference: %s</p>",
		n.Amount.StringFixed(2), n.InvoiceID, n.TransactionID,
	)
	return e.send(ctx, n.Email, n.TenantID, subject, body)
}

func (e *SMTPEmitter) send(ctx context.Context, to string, tenantID int64, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", e.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	if err := e.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("notify: smtp delivery failed: %w", err)
	}

	e.logger.InfoContext(ctx, "email delivered",
		"tenant_id", tenantID,
		"subject", subject,
	)
	return nil
}
