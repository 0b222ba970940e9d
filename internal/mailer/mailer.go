package mailer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"shop-sync-service/internal/models"
	"shop-sync-service/internal/util"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// Sender delivers composed messages
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Options configures the SMTP alert channel
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// Enabled reports whether enough is configured to send mail
func (o Options) Enabled() bool {
	return o.Host != "" && o.From != "" && len(o.To) > 0
}

// AlertMailer emails operator-facing notifications
type AlertMailer struct {
	sender Sender
	from   string
	to     []string
	logger *zap.Logger
}

// NewAlertMailer creates a mailer that dials the configured SMTP server
func NewAlertMailer(opts Options) *AlertMailer {
	return NewAlertMailerWithSender(gomail.NewDialer(opts.Host, opts.Port, opts.Username, opts.Password), opts.From, opts.To)
}

// NewAlertMailerWithSender creates a mailer on top of an existing sender
func NewAlertMailerWithSender(sender Sender, from string, to []string) *AlertMailer {
	return &AlertMailer{
		sender: sender,
		from:   from,
		to:     to,
		logger: util.GetLogger(),
	}
}

// SendAlert emails one notification to every configured recipient
func (m *AlertMailer) SendAlert(ctx context.Context, n *models.Notification) error {
	_, span := util.StartSpan(ctx, "AlertMailer.SendAlert")
	defer span.End()

	msg := Compose(m.from, m.to, n)
	if err := m.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	m.logger.Info("Alert email sent",
		zap.String("type", n.Type),
		zap.Int("recipients", len(m.to)))
	return nil
}

// Compose renders a notification as a plain text email
func Compose(from string, to []string, n *models.Notification) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to...)
	msg.SetHeader("Subject", fmt.Sprintf("[%s] %s", n.Type, n.Title))
	msg.SetBody("text/plain", body(n))
	return msg
}

func body(n *models.Notification) string {
	var b strings.Builder
	b.WriteString(n.Message)
	b.WriteString("\n\n")
	if n.ShopID != nil {
		fmt.Fprintf(&b, "shop: %s\n", *n.ShopID)
	}
	if n.OrderID != nil {
		fmt.Fprintf(&b, "order: %s\n", *n.OrderID)
	}
	if n.UserID != "" {
		fmt.Fprintf(&b, "user: %s\n", n.UserID)
	}

	keys := make([]string, 0, len(n.Data))
	for k := range n.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, n.Data[k])
	}
	fmt.Fprintf(&b, "at: %s\n", n.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	return b.String()
}
