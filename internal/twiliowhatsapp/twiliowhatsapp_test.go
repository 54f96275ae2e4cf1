package twiliowhatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"sort"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	err := mock.SendMessage(ctx, "12345", "Hello Test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(mock.Messages()) != 1 {
		t.Fatalf("expected 1 message, got %d", len(mock.Messages()))
	}

	if mock.Messages()[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", mock.Messages()[0].Body)
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok")); err == nil {
		t.Error("expected error without from number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("tok"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.fromWhats != "whatsapp:+14155238886" {
		t.Errorf("fromWhats = %q", c.fromWhats)
	}
}

func TestToAddress(t *testing.T) {
	tests := []struct{ in, want string }{
		{"+919876543210", "whatsapp:+919876543210"},
		{"919876543210", "whatsapp:+919876543210"},
		{"whatsapp:+919876543210", "whatsapp:+919876543210"},
	}
	for _, tt := range tests {
		if got := ToAddress(tt.in); got != tt.want {
			t.Errorf("ToAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// sign computes a Twilio request signature: base64(HMAC-SHA1(token, url + sorted key/values)).
func sign(token, url string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	payload := url
	for _, k := range keys {
		payload += k + params[k]
	}
	mac := hmac.New(sha1.New, []byte(token))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestValidateWebhook(t *testing.T) {
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFromWhats("+14155238886"))
	if err != nil {
		t.Fatal(err)
	}
	url := "https://intake.example.com/twilio/webhook"
	params := map[string]string{"From": "whatsapp:+919876543210", "Body": "1", "MessageSid": "SM1"}

	if !c.ValidateWebhook(url, params, sign("secret", url, params)) {
		t.Error("expected valid signature")
	}
	if c.ValidateWebhook(url, params, sign("other", url, params)) {
		t.Error("expected signature with wrong token to fail")
	}
}

func TestIdentifierMapping(t *testing.T) {
	if got := IdentifierFromAddress("whatsapp:+919876543210"); got != "919876543210@s.whatsapp.net" {
		t.Errorf("IdentifierFromAddress = %q", got)
	}
	if got := IdentifierFromAddress("whatsapp:"); got != "" {
		t.Errorf("IdentifierFromAddress(empty) = %q, want empty", got)
	}

	tests := []struct{ in, want string }{
		{"919876543210@s.whatsapp.net", "+919876543210"},
		{"919876543210:7@s.whatsapp.net", "+919876543210"},
		{"whatsapp:+919876543210", "+919876543210"},
		{" whatsapp:+919876543210:3", "+919876543210"},
		{"+1 (415) 523-8886", "+14155238886"},
		{"abc@lid", ""},
	}
	for _, tt := range tests {
		if got := PhoneFromIdentifier(tt.in); got != tt.want {
			t.Errorf("PhoneFromIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
