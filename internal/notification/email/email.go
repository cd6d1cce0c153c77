// Package email sends order confirmation mails over SMTP.
package email

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"time"

	"github.com/go-faster/errors"
	"github.com/wneessen/go-mail"

	"github.com/kickzhub/storefront/internal/domain/notification"
)

//go:embed confirmation.html
var confirmationHTML string

var confirmation = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": func(n notification.Notice) string { return n.TotalAmount.StringFixed(2) },
	"date":  func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
}).Parse(confirmationHTML))

// Config holds SMTP settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	// TLS is one of "mandatory", "opportunistic", "none".
	TLS string
}

// Client delivers prepared messages. *mail.Client satisfies it.
type Client interface {
	DialAndSendWithContext(ctx context.Context, msgs ...*mail.Msg) error
}

// NewClient builds an SMTP client from cfg.
func NewClient(cfg Config) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTimeout(10 * time.Second),
	}
	switch cfg.TLS {
	case "", "mandatory":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	case "opportunistic":
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		return nil, errors.Errorf("unknown smtp tls policy %q", cfg.TLS)
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	c, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create smtp client")
	}
	return c, nil
}

// Sender is a notification.Sender that mails the customer.
type Sender struct {
	client Client
	from   string
}

var _ notification.Sender = (*Sender)(nil)

// NewSender returns a Sender using client and the given From address.
func NewSender(client Client, from string) *Sender {
	return &Sender{client: client, from: from}
}

func (s *Sender) Name() string { return "email" }

// Send mails an order confirmation to the customer of n.
func (s *Sender) Send(ctx context.Context, n notification.Notice) error {
	msg, err := s.message(n)
	if err != nil {
		return err
	}
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return errors.Wrapf(err, "send confirmation for order %s", n.OrderID)
	}
	return nil
}

func (s *Sender) message(n notification.Notice) (*mail.Msg, error) {
	if n.CustomerEmail == "" {
		return nil, errors.Errorf("order %s: customer has no email", n.OrderID)
	}

	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return nil, errors.Wrap(err, "set from")
	}
	if err := m.To(n.CustomerEmail); err != nil {
		return nil, errors.Wrap(err, "set to")
	}
	m.Subject("Your order " + n.OrderID)
	if err := m.SetBodyHTMLTemplate(confirmation, n); err != nil {
		return nil, errors.Wrap(err, "render body")
	}
	return m, nil
}

// Render returns the HTML confirmation body for n.
func Render(n notification.Notice) (string, error) {
	var buf bytes.Buffer
	if err := confirmation.Execute(&buf, n); err != nil {
		return "", errors.Wrap(err, "render confirmation")
	}
	return buf.String(), nil
}
