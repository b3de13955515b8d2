// Package notify tells the user when a projection shows the balance going
// negative.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/warp/cashflow-engine/config"
	"github.com/warp/cashflow-engine/engine"
)

// RiskAlert is raised for an owner whose projection is at risk.
type RiskAlert struct {
	Owner      engine.OwnerID
	Projection *engine.Projection
}

// Notifier delivers risk alerts.
type Notifier interface {
	NotifyRisk(ctx context.Context, alert RiskAlert) error
}

// New picks email delivery when SMTP is configured, logging otherwise.
func New(cfg config.SMTPConfig, logger logrus.FieldLogger) Notifier {
	if cfg.Enabled() {
		return NewEmailNotifier(cfg, logger)
	}
	return NewLogNotifier(logger)
}

// Subject renders the alert's subject line.
func (a RiskAlert) Subject() string {
	return fmt.Sprintf("Cash-flow risk: balance reaches %s", a.Projection.MinBalance.StringFixed(2))
}

// Body renders a plain-text month table.
func (a RiskAlert) Body() string {
	p := a.Projection
	var b strings.Builder
	fmt.Fprintf(&b, "Projection for %s as of %s\n\n", a.Owner, p.AsOf)
	fmt.Fprintf(&b, "Current balance: %s\n", p.CurrentBalance.StringFixed(2))
	fmt.Fprintf(&b, "Lowest balance:  %s (month %d)\n\n", p.MinBalance.StringFixed(2), p.MinMonth)
	for _, m := range p.Months {
		marker := ""
		if m.Balance.IsNegative() {
			marker = "  <-- negative"
		}
		fmt.Fprintf(&b, "%-23s in %12s  out %12s  balance %12s%s\n",
			m.Period.String(), m.Inflow.StringFixed(2), m.Outflow.StringFixed(2), m.Balance.StringFixed(2), marker)
	}
	return b.String()
}

// =============================================================================
// EMAIL
// =============================================================================

// EmailNotifier sends alerts over SMTP.
type EmailNotifier struct {
	cfg    config.SMTPConfig
	logger logrus.FieldLogger

	// send delivers the message; replaced in tests.
	send func(e *email.Email, addr string, auth smtp.Auth) error
}

func NewEmailNotifier(cfg config.SMTPConfig, logger logrus.FieldLogger) *EmailNotifier {
	return &EmailNotifier{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// WithSender replaces the SMTP delivery function.
func (n *EmailNotifier) WithSender(send func(e *email.Email, addr string, auth smtp.Auth) error) *EmailNotifier {
	n.send = send
	return n
}

// Message builds the email for an alert.
func (n *EmailNotifier) Message(alert RiskAlert) *email.Email {
	e := email.NewEmail()
	e.From = n.cfg.From
	e.To = append([]string(nil), n.cfg.To...)
	e.Subject = alert.Subject()
	e.Text = []byte(alert.Body())
	return e
}

func (n *EmailNotifier) NotifyRisk(_ context.Context, alert RiskAlert) error {
	e := n.Message(alert)
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := n.send(e, n.cfg.Addr(), auth); err != nil {
		n.logger.WithError(err).WithField("owner", alert.Owner).Error("failed to send risk email")
		return fmt.Errorf("failed to send risk email: %w", err)
	}
	n.logger.WithFields(logrus.Fields{"owner": alert.Owner, "to": strings.Join(e.To, ",")}).Info("risk email sent")
	return nil
}

// =============================================================================
// LOG
// =============================================================================

// LogNotifier writes alerts to the log.
type LogNotifier struct {
	logger logrus.FieldLogger
}

func NewLogNotifier(logger logrus.FieldLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyRisk(_ context.Context, alert RiskAlert) error {
	n.logger.WithFields(logrus.Fields{
		"owner":       alert.Owner,
		"as_of":       alert.Projection.AsOf.String(),
		"min_balance": alert.Projection.MinBalance.StringFixed(2),
		"min_month":   alert.Projection.MinMonth,
	}).Warn("projected balance goes negative")
	return nil
}
