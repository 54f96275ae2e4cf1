package util

import (
	"testing"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Type 1", "type1"},
		{"  HAAN ", "haan"},
		{"Diabetes care!", "diabetescare"},
		{"", ""},
		{"नमस्ते", ""},
	}
	for _, tt := range tests {
		if got := NormalizeToken(tt.in); got != tt.want {
			t.Errorf("NormalizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseAffirmation(t *testing.T) {
	tests := []struct {
		in   string
		want Affirmation
	}{
		{"yes", AffirmationYes},
		{"Y", AffirmationYes},
		{"1", AffirmationYes},
		{"HAAN ", AffirmationYes},
		{"ha.", AffirmationYes},
		{"no", AffirmationNo},
		{"N", AffirmationNo},
		{"2", AffirmationNo},
		{"Na", AffirmationNo},
		{"nah!", AffirmationNo},
		{"maybe", AffirmationUnknown},
		{"yes please", AffirmationUnknown},
		{"", AffirmationUnknown},
	}
	for _, tt := range tests {
		if got := ParseAffirmation(tt.in); got != tt.want {
			t.Errorf("ParseAffirmation(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if ParseAffirmation("HAAN ") != ParseAffirmation("haan") {
		t.Error("normalization-equivalent inputs disagree")
	}
}

func TestExtractAddress(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"919876543210@s.whatsapp.net", "919876543210"},
		{"919876543210:12@s.whatsapp.net", "919876543210"},
		{"12345@lid", "12345"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := ExtractAddress(tt.in); got != tt.want {
			t.Errorf("ExtractAddress(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPhoneFromIdentifier(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"919876543210@s.whatsapp.net", "9876543210"},
		{"919876543210:12@s.whatsapp.net", "9876543210"},
		{"919876543210@c.us", "9876543210"},
		{"4815162342@lid", ""},
		{"1203630@g.us", ""},
		{"919876543210", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := PhoneFromIdentifier(tt.in); got != tt.want {
			t.Errorf("PhoneFromIdentifier(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"919876543210", "9876543210"},
		{"+91 98765-43210", "9876543210"},
		{"9876543210", "9876543210"},
		{"12345", "12345"},
		{"abc", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := CanonicalizePhone(tt.in)
		if got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := CanonicalizePhone(got); again != got {
			t.Errorf("CanonicalizePhone not idempotent for %q: %q then %q", tt.in, got, again)
		}
	}
}

func TestParseStructuredLines(t *testing.T) {
	fields := []models.DataKey{models.DataKeyName, models.DataKeyAge, models.DataKeyEmail}

	tests := []struct {
		name   string
		text   string
		wantOK bool
		want   map[models.DataKey]string
	}{
		{
			name:   "exact",
			text:   "Jane\n34\njane@x.com",
			wantOK: true,
			want:   map[models.DataKey]string{models.DataKeyName: "Jane", models.DataKeyAge: "34", models.DataKeyEmail: "jane@x.com"},
		},
		{
			name:   "blank lines and padding dropped",
			text:   "  Jane \r\n\n 34\n\n jane@x.com ",
			wantOK: true,
			want:   map[models.DataKey]string{models.DataKeyName: "Jane", models.DataKeyAge: "34", models.DataKeyEmail: "jane@x.com"},
		},
		{
			name:   "extra lines ignored",
			text:   "Jane\n34\njane@x.com\nextra",
			wantOK: true,
			want:   map[models.DataKey]string{models.DataKeyName: "Jane", models.DataKeyAge: "34", models.DataKeyEmail: "jane@x.com"},
		},
		{name: "too few", text: "Jane\n34", wantOK: false},
		{name: "empty", text: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseStructuredLines(tt.text, fields)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				if got != nil {
					t.Errorf("expected nil map on failure, got %v", got)
				}
				return
			}
			if len(got) != len(fields) {
				t.Fatalf("got %d entries, want %d", len(got), len(fields))
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
