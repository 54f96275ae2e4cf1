package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/twiliowhatsapp"
)

// TwilioService implements Service using the Twilio API. Inbound messages
// arrive through the HTTP webhook, which calls EmitInbound.
type TwilioService struct {
	emitter
	client twiliowhatsapp.TwilioWhatsAppSender // real Twilio client or MockClient
}

var _ Service = (*TwilioService)(nil)

func NewTwilioService(client twiliowhatsapp.TwilioWhatsAppSender) *TwilioService {
	return &TwilioService{emitter: emitter{responses: make(chan models.Response, DefaultChannelBufferSize)}, client: client}
}

func (s *TwilioService) Name() string { return "twilio" }

// Start is a no-op for Twilio (no live client)
func (s *TwilioService) Start(ctx context.Context) error {
	return nil
}

// Stop closes the responses channel.
func (s *TwilioService) Stop() error {
	s.stop()
	return nil
}

// SendMessage sends to a session identifier ("919876543210@s.whatsapp.net")
// or a phone number.
func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	phone := twiliowhatsapp.PhoneFromIdentifier(to)
	if phone == "" {
		return fmt.Errorf("invalid recipient %q: no digits found", to)
	}
	if err := s.client.SendMessage(ctx, phone, body); err != nil {
		return err
	}
	slog.Debug("TwilioService message sent", "to", phone, "body_length", len(body))
	return nil
}

func (s *TwilioService) Responses() <-chan models.Response {
	return s.responses
}

// EmitInbound forwards a webhook message. From is the Twilio sender
// ("whatsapp:+919876543210"); it is rewritten to a session identifier. The body
// is trimmed like WhatsApp text.
func (s *TwilioService) EmitInbound(messageSID, from, body string, numMedia int, ts int64) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	identifier := twiliowhatsapp.IdentifierFromAddress(from)
	if identifier == "" {
		return fmt.Errorf("invalid sender %q", from)
	}
	kind := "text"
	if numMedia > 0 {
		kind = "media"
	}
	resp := models.Response{MessageID: messageSID, From: identifier, Body: strings.TrimSpace(body), Time: ts, Kind: kind}
	if !s.emit(s.Name(), resp) {
		return fmt.Errorf("inbound message from %s dropped", identifier)
	}
	slog.Debug("TwilioService emitted inbound response", "from", identifier)
	return nil
}
