package notify

import (
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/restaurant-booking-ai/pkg/logging"
)

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a rendered email. Category and Args are passed to the
// provider for filtering and are not shown to the recipient.
type EmailMessage struct {
	To       string
	ToName   string
	Subject  string
	Body     string
	HTML     string
	Category string
	Args     map[string]string
}

const (
	defaultFromName    = "Reservations Desk"
	staffAlertCategory = "staff-alert"
)

var alertHTML = template.Must(template.New("alert").Parse(`<p><strong>{{.Customer}}</strong> ({{.Phone}}) sent a WhatsApp message.</p>
<blockquote>{{.Preview}}</blockquote>
{{- if .Action}}
<p>Assistant action: {{.Action}}</p>
{{- end}}
{{- if .BookingID}}
<p>Booking: {{.BookingID}}</p>
{{- end}}
`))

// AlertEmail renders a staff alert as a text and HTML email. The recipient is
// left for the caller to fill in.
func AlertEmail(alert StaffAlert) EmailMessage {
	var text strings.Builder
	fmt.Fprintf(&text, "Customer: %s\n", displayName(alert))
	fmt.Fprintf(&text, "Phone: %s\n", alert.Phone)
	if alert.Action != "" {
		fmt.Fprintf(&text, "Assistant action: %s\n", alert.Action)
	}
	if alert.BookingID != "" {
		fmt.Fprintf(&text, "Booking: %s\n", alert.BookingID)
	}
	fmt.Fprintf(&text, "\nMessage:\n%s\n", alert.Preview)

	var html strings.Builder
	_ = alertHTML.Execute(&html, struct {
		Customer, Phone, Preview, Action, BookingID string
	}{displayName(alert), alert.Phone, alert.Preview, alert.Action, alert.BookingID})

	args := map[string]string{"restaurant_id": alert.RestaurantID}
	if alert.CustomerID != "" {
		args["customer_id"] = alert.CustomerID
	}
	if alert.BookingID != "" {
		args["booking_id"] = alert.BookingID
	}
	return EmailMessage{
		Subject:  alertTitle(alert),
		Body:     text.String(),
		HTML:     html.String(),
		Category: staffAlertCategory,
		Args:     args,
	}
}

type sendgridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends staff email through the SendGrid v3 API.
type SendGridSender struct {
	client    sendgridAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil without an API key so SendGrid stays optional.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridSender(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridSender(client sendgridAPI, cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{client: client, fromEmail: cfg.FromEmail, fromName: cfg.FromName, logger: logger}
}

// Send delivers msg. The plain text part always comes first, as SendGrid
// requires.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(msg.ToName, msg.To))
	for k, v := range msg.Args {
		p.SetCustomArg(k, v)
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	m.Subject = msg.Subject
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/plain", msg.Body))
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.Category != "" {
		m.AddCategories(msg.Category)
	}

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To)
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if resp.StatusCode >= 400 {
		s.logger.Error("sendgrid rejected email", "status", resp.StatusCode, "body", resp.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}
	s.logger.Info("staff email sent", "provider", "sendgrid", "to", msg.To, "category", msg.Category)
	return nil
}

var _ EmailSender = (*SendGridSender)(nil)
