// Package twiliowhatsapp wraps the Twilio API for WhatsApp integration in IntakePipe.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/BTreeMap/IntakePipe/internal/util"
)

// WhatsAppPrefix marks Twilio WhatsApp addresses ("whatsapp:+919876543210").
const WhatsAppPrefix = "whatsapp:"

// TwilioWhatsAppSender sends WhatsApp messages through Twilio.
type TwilioWhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// WebhookValidator checks the X-Twilio-Signature of an inbound webhook.
type WebhookValidator interface {
	ValidateWebhook(url string, params map[string]string, signature string) bool
}

// Opts holds configuration options for the Twilio WhatsApp client.
// This focuses solely on Twilio API requirements
type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

// Option defines a configuration option for the Twilio WhatsApp client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token, also used for webhook signatures.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sender number. The "whatsapp:" prefix is added when missing.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client wraps Twilio REST API for WhatsApp
type Client struct {
	client    *twilio.RestClient
	validator twilioclient.RequestValidator
	fromWhats string // WhatsApp number in "whatsapp:+1234567890" format
}

var (
	_ TwilioWhatsAppSender = (*Client)(nil)
	_ WebhookValidator     = (*Client)(nil)
)

func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	// Fallback to environment variables if not provided via options
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromWhats == "" {
		cfg.FromWhats = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("Twilio client config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromWhats_set", cfg.FromWhats != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromWhats == "" {
		return nil, fmt.Errorf("fromWhats number must be provided")
	}

	client := twilio.NewRestClientWithParams(
		twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		},
	)

	return &Client{
		client:    client,
		validator: twilioclient.NewRequestValidator(cfg.AuthToken),
		fromWhats: ToAddress(cfg.FromWhats),
	}, nil
}

// ToAddress formats a phone number as a Twilio WhatsApp address.
func ToAddress(phone string) string {
	phone = strings.TrimPrefix(strings.TrimSpace(phone), WhatsAppPrefix)
	if !strings.HasPrefix(phone, "+") {
		phone = "+" + phone
	}
	return WhatsAppPrefix + phone
}

// SendMessage sends a WhatsApp message using Twilio API. to is a phone
// number with country code, with or without the "whatsapp:" prefix.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(ToAddress(to))
	params.SetFrom(c.fromWhats)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	if resp != nil && resp.Sid != nil {
		slog.Debug("Twilio message sent", "to", to, "sid", *resp.Sid)
	}
	return nil
}

// ValidateWebhook reports whether signature matches the request URL and form params.
func (c *Client) ValidateWebhook(url string, params map[string]string, signature string) bool {
	return c.validator.Validate(url, params, signature)
}

// MockClient records sends and accepts every webhook signature unless Reject is set.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Reject       bool
}

type SentMessage struct {
	To   string
	Body string
}

func NewMockClient() *MockClient {
	return &MockClient{SentMessages: []SentMessage{}}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

func (m *MockClient) ValidateWebhook(url string, params map[string]string, signature string) bool {
	return !m.Reject
}

// Messages returns a copy of the recorded sends.
func (m *MockClient) Messages() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.SentMessages))
	copy(out, m.SentMessages)
	return out
}

// IdentifierFromAddress maps a Twilio sender ("whatsapp:+919876543210") to
// the WhatsApp JID form used for sessions ("919876543210@s.whatsapp.net").
func IdentifierFromAddress(addr string) string {
	digits := util.DigitsOnly(strings.TrimPrefix(strings.TrimSpace(addr), WhatsAppPrefix))
	if digits == "" {
		return ""
	}
	return digits + "@s.whatsapp.net"
}

// PhoneFromIdentifier maps a session identifier or Twilio address back to an
// E.164 phone. The "whatsapp:" prefix, device suffixes (":12") and the JID
// server are dropped.
func PhoneFromIdentifier(identifier string) string {
	user := strings.TrimPrefix(strings.TrimSpace(identifier), WhatsAppPrefix)
	user, _, _ = strings.Cut(user, "@")
	user, _, _ = strings.Cut(user, ":")
	digits := util.DigitsOnly(user)
	if digits == "" {
		return ""
	}
	return "+" + digits
}
