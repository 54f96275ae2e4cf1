package util

import (
	"strings"
	"testing"
	"time"
)

func TestGenerateRecordID(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{name: "patient", prefix: "PAT-"},
		{name: "student", prefix: "STU-"},
		{name: "empty prefix", prefix: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := GenerateRecordID(tt.prefix)
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("GenerateRecordID() = %v, want prefix %v", got, tt.prefix)
			}
			if len(got) != len(tt.prefix)+26 {
				t.Errorf("GenerateRecordID() length = %d, want %d", len(got), len(tt.prefix)+26)
			}
		})
	}
}

func TestGenerateRecordIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateRecordID("PAT-")
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestRandomDuration(t *testing.T) {
	lo, hi := 2*time.Second, 5*time.Second
	for i := 0; i < 500; i++ {
		d := RandomDuration(lo, hi)
		if d < lo || d > hi {
			t.Fatalf("RandomDuration() = %v, want within [%v, %v]", d, lo, hi)
		}
	}

	if got := RandomDuration(3*time.Second, time.Second); got != 3*time.Second {
		t.Errorf("RandomDuration(hi < lo) = %v, want lo", got)
	}
	if got := RandomDuration(0, 0); got != 0 {
		t.Errorf("RandomDuration(0, 0) = %v, want 0", got)
	}
}
