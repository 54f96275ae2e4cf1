// Package testutil provides fakes and assertion helpers shared by IntakePipe tests.
package testutil

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/BTreeMap/IntakePipe/internal/models"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertAPIStatus decodes an APIResponse envelope from r and checks its status.
func AssertAPIStatus(t TB, r io.Reader, expectedStatus string) models.APIResponse {
	t.Helper()
	var response models.APIResponse
	if err := json.NewDecoder(r).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return response
	}
	if response.Status != expectedStatus {
		t.Errorf("expected status '%s', got '%s'", expectedStatus, response.Status)
	}
	return response
}

// AssertSentContains checks that the n-th message sent to recipient contains every fragment.
func AssertSentContains(t TB, s *RecordingSender, to string, n int, fragments ...string) {
	t.Helper()
	sent := s.SentTo(to)
	if n >= len(sent) {
		t.Fatalf("expected at least %d messages to %s, got %d", n+1, to, len(sent))
		return
	}
	for _, f := range fragments {
		if !strings.Contains(sent[n], f) {
			t.Errorf("message %d to %s missing %q: %q", n, to, f, sent[n])
		}
	}
}

// MustMarshalJSON marshals v to JSON and fails the test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}
