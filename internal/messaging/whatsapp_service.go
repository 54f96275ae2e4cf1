package messaging

import (
	"context"
	"log/slog"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/IntakePipe/internal/models"
	"github.com/BTreeMap/IntakePipe/internal/whatsapp"
)

// WhatsAppService implements Service using the whatsmeow-based whatsapp client.
type WhatsAppService struct {
	emitter
	client    whatsapp.WhatsAppSender
	waClient  *whatsapp.Client // access to the underlying client for event handling
	handlerID uint32
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService creates a new WhatsAppService wrapping the given WhatsAppSender.
func NewWhatsAppService(client whatsapp.WhatsAppSender) *WhatsAppService {
	service := &WhatsAppService{
		emitter: emitter{responses: make(chan models.Response, DefaultChannelBufferSize)},
		client:  client,
	}

	// If the client is a full Client (not just an interface), store it for event handling
	if waClient, ok := client.(*whatsapp.Client); ok {
		service.waClient = waClient
		slog.Debug("WhatsAppService created with full client for event handling")
	} else {
		slog.Debug("WhatsAppService created with interface client (likely mock)")
	}

	return service
}

func (s *WhatsAppService) Name() string { return "whatsapp" }

// Start registers the inbound event handler on the live client.
func (s *WhatsAppService) Start(ctx context.Context) error {
	if s.waClient == nil || s.waClient.GetClient() == nil {
		slog.Debug("WhatsAppService no full client available, skipping event handling (likely mock)")
		return nil
	}
	s.handlerID = s.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			s.handleIncomingMessage(v)
		case *events.Connected:
			slog.Info("WhatsAppService connected")
		case *events.Disconnected:
			slog.Warn("WhatsAppService disconnected")
		case *events.LoggedOut:
			slog.Error("WhatsAppService logged out; delete the device store and log in again", "reason", v.Reason)
		}
	})
	slog.Debug("WhatsAppService event handler registered")
	return nil
}

// Stop unregisters the event handler and closes the responses channel.
func (s *WhatsAppService) Stop() error {
	if s.waClient != nil && s.waClient.GetClient() != nil {
		s.waClient.GetClient().RemoveEventHandler(s.handlerID)
	}
	if s.stop() {
		slog.Info("WhatsAppService stopped and channels closed")
	}
	return nil
}

func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	if s.isStopped() {
		return ErrServiceStopped
	}
	if err := s.client.SendMessage(ctx, to, body); err != nil {
		slog.Error("WhatsAppService SendMessage error", "error", err, "to", to)
		return err
	}
	slog.Debug("WhatsAppService message sent", "to", to, "body_length", len(body))
	return nil
}

func (s *WhatsAppService) Responses() <-chan models.Response {
	return s.responses
}

// handleIncomingMessage converts a whatsmeow message event into a Response.
// Messages without text are still forwarded with an empty body so a live
// session can ask for text.
func (s *WhatsAppService) handleIncomingMessage(evt *events.Message) {
	resp := models.Response{
		MessageID: string(evt.Info.ID),
		From:      evt.Info.Chat.String(),
		Body:      whatsapp.ExtractText(evt.Message),
		Time:      evt.Info.Timestamp.Unix(),
		FromSelf:  evt.Info.IsFromMe,
		Kind:      evt.Info.Type,
	}
	if s.emit(s.Name(), resp) {
		slog.Debug("WhatsAppService incoming message forwarded", "from", resp.From, "body_length", len(resp.Body))
	}
}
