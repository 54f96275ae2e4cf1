// Package util provides input normalization helpers shared across components.
package util

import (
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// Affirmation is the outcome of a yes/no reply.
type Affirmation int

const (
	// AffirmationUnknown means the reply was ambiguous; callers must re-prompt.
	AffirmationUnknown Affirmation = iota
	AffirmationYes
	AffirmationNo
)

// String returns "Yes", "No" or "".
func (a Affirmation) String() string {
	switch a {
	case AffirmationYes:
		return "Yes"
	case AffirmationNo:
		return "No"
	default:
		return ""
	}
}

var (
	affirmativeTokens = map[string]struct{}{"yes": {}, "y": {}, "1": {}, "haan": {}, "ha": {}}
	negativeTokens    = map[string]struct{}{"no": {}, "n": {}, "2": {}, "na": {}, "nah": {}}
)

// NormalizeToken lowercases text and keeps only ASCII letters and digits.
func NormalizeToken(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseAffirmation maps a reply onto Yes, No or Unknown.
func ParseAffirmation(text string) Affirmation {
	n := NormalizeToken(text)
	if _, ok := affirmativeTokens[n]; ok {
		return AffirmationYes
	}
	if _, ok := negativeTokens[n]; ok {
		return AffirmationNo
	}
	return AffirmationUnknown
}

// ExtractAddress returns the local part of a transport address, dropping the
// domain suffix ("@s.whatsapp.net") and any device suffix (":12").
func ExtractAddress(address string) string {
	local, _, _ := strings.Cut(address, "@")
	local, _, _ = strings.Cut(local, ":")
	return local
}

// phoneServers are the JID servers whose user part is a phone number.
var phoneServers = map[string]bool{
	"s.whatsapp.net": true,
	"c.us":           true,
}

// PhoneFromIdentifier returns the canonical phone carried by a session
// identifier. Identifiers on other servers (LIDs, groups) carry no phone and
// yield "".
func PhoneFromIdentifier(identifier string) string {
	_, server, ok := strings.Cut(identifier, "@")
	if !ok || !phoneServers[server] {
		return ""
	}
	return CanonicalizePhone(ExtractAddress(identifier))
}

// CanonicalizePhone keeps digits only and right-truncates to the last 10.
// The empty string means unknown and never matches anything.
func CanonicalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}

// DigitsOnly strips every non-digit without truncating.
func DigitsOnly(raw string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
}

// ParseStructuredLines splits text into trimmed non-empty lines and assigns them
// positionally to fields. It returns false when fewer lines than fields were
// supplied. Extra trailing lines are ignored.
func ParseStructuredLines(text string, fields []models.DataKey) (map[models.DataKey]string, bool) {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < len(fields) {
		return nil, false
	}
	out := make(map[models.DataKey]string, len(fields))
	for i, f := range fields {
		out[f] = lines[i]
	}
	return out, true
}
