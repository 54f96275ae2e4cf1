package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/BTreeMap/IntakePipe/internal/whatsapp"
)

func messageEvent(user, server, text string, fromMe bool) *events.Message {
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:     types.NewJID(user, server),
				Sender:   types.NewJID(user, server),
				IsFromMe: fromMe,
			},
			ID:        "3EB0C0FFEE",
			Type:      "text",
			Timestamp: time.Unix(1700000000, 0),
		},
	}
	if text != "" {
		evt.Message = &waE2E.Message{Conversation: &text}
	} else {
		evt.Message = &waE2E.Message{}
	}
	return evt
}

func TestWhatsAppService_SendMessage(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	svc := NewWhatsAppService(mockClient)
	if svc.Name() != "whatsapp" {
		t.Errorf("Name = %q", svc.Name())
	}
	if err := svc.SendMessage(context.Background(), "919876543210@s.whatsapp.net", "hello"); err != nil {
		t.Fatalf("SendMessage returned error: %v", err)
	}
	msgs := mockClient.Messages()
	if len(msgs) != 1 || msgs[0].Body != "hello" {
		t.Fatalf("unexpected sends: %+v", msgs)
	}
}

func TestWhatsAppService_SendMessageError(t *testing.T) {
	mockClient := whatsapp.NewMockClient()
	mockClient.Err = errors.New("offline")
	svc := NewWhatsAppService(mockClient)
	if err := svc.SendMessage(context.Background(), "x@s.whatsapp.net", "hi"); err == nil {
		t.Fatal("expected send error")
	}
}

func TestWhatsAppService_IncomingMessage(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())

	svc.handleIncomingMessage(messageEvent("919876543210", types.DefaultUserServer, "1", false))
	svc.handleIncomingMessage(messageEvent("919876543210", types.DefaultUserServer, "", false))

	first := <-svc.Responses()
	if first.From != "919876543210@s.whatsapp.net" || first.Body != "1" {
		t.Errorf("unexpected response %+v", first)
	}
	if first.MessageID != "3EB0C0FFEE" || first.Time != 1700000000 || first.Kind != "text" {
		t.Errorf("metadata not carried: %+v", first)
	}
	second := <-svc.Responses()
	if second.Body != "" {
		t.Errorf("non-text message should arrive with empty body, got %q", second.Body)
	}
}

func TestWhatsAppService_StartStop(t *testing.T) {
	svc := NewWhatsAppService(whatsapp.NewMockClient())
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	if err := svc.Stop(); err != nil {
		t.Fatalf("second Stop returned error: %v", err)
	}
	if _, ok := <-svc.Responses(); ok {
		t.Error("expected responses channel closed")
	}
	if err := svc.SendMessage(context.Background(), "x@s.whatsapp.net", "hi"); !errors.Is(err, ErrServiceStopped) {
		t.Errorf("SendMessage after Stop = %v, want ErrServiceStopped", err)
	}
	// Events after Stop are dropped, not sent on a closed channel.
	svc.handleIncomingMessage(messageEvent("1", types.DefaultUserServer, "late", false))
}
