package notify

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailSender is the outbound mail contract. Implementations can be
// swapped (SendGrid, SES, SMTP) without changing callers.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

type Email struct {
	To          string
	ToName      string
	Subject     string
	Body        string
	Attachments []Attachment
}

type SendGridConfig struct {
	APIKey    string `envconfig:"API_KEY" split_words:"true" required:"true"`
	FromEmail string `envconfig:"FROM_EMAIL" split_words:"true" required:"true"`
	FromName  string `envconfig:"FROM_NAME" split_words:"true" default:"ClinicDesk"`
}

// SendGridSender sends email through the SendGrid API.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

var _ EmailSender = (*SendGridSender)(nil)

func NewSendGridSender(cfg SendGridConfig) (*SendGridSender, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("notify: sendgrid api key is required")
	}
	if cfg.FromName == "" {
		cfg.FromName = "ClinicDesk"
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
	}, nil
}

func (s *SendGridSender) Send(ctx context.Context, msg Email) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.Body)

	for _, att := range msg.Attachments {
		a := mail.NewAttachment()
		a.SetContent(base64.StdEncoding.EncodeToString(att.Data))
		a.SetType(att.ContentType)
		a.SetFilename(att.Filename)
		a.SetDisposition("attachment")
		message.AddAttachment(a)
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("notify: sendgrid send: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("status", response.StatusCode).
		Msg("email sent")
	return nil
}

// LogSender logs instead of sending. Demo mode and tests run on it.
type LogSender struct{}

var _ EmailSender = LogSender{}

func (LogSender) Send(_ context.Context, msg Email) error {
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("attachments", len(msg.Attachments)).
		Msg("email suppressed (log sender)")
	return nil
}
