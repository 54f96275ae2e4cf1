package util

import "testing"

func TestParseFloatEnv(t *testing.T) {
	tests := []struct {
		name string
		val  string
		want float64
	}{
		{"unset", "", 24},
		{"valid", "1.5", 1.5},
		{"negative", "-3", -3},
		{"garbage", "abc", 24},
		{"nan", "NaN", 24},
		{"inf", "+Inf", 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("INTAKEPIPE_TEST_FLOAT", tt.val)
			if got := ParseFloatEnv("INTAKEPIPE_TEST_FLOAT", 24); got != tt.want {
				t.Errorf("ParseFloatEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("INTAKEPIPE_TEST_BOOL", "ON")
	if !ParseBoolEnv("INTAKEPIPE_TEST_BOOL", false) {
		t.Error("expected true for ON")
	}
	t.Setenv("INTAKEPIPE_TEST_BOOL", "bogus")
	if ParseBoolEnv("INTAKEPIPE_TEST_BOOL", false) {
		t.Error("expected default for invalid value")
	}
}

func TestStringEnv(t *testing.T) {
	t.Setenv("INTAKEPIPE_TEST_STR", "  ")
	if got := StringEnv("INTAKEPIPE_TEST_STR", "Sheet3"); got != "Sheet3" {
		t.Errorf("StringEnv() = %q, want default", got)
	}
	t.Setenv("INTAKEPIPE_TEST_STR", "Students")
	if got := StringEnv("INTAKEPIPE_TEST_STR", "Sheet3"); got != "Students" {
		t.Errorf("StringEnv() = %q, want Students", got)
	}
}
