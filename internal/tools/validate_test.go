package tools

import (
	"strings"
	"testing"
)

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr string
	}{
		{"required ok", Required("phone", "0821234567"), ""},
		{"required blank", Required("phone", "  "), "missing phone"},
		{"email ok", Email("email", "jane@example.com"), ""},
		{"email display name", Email("email", "Jane <jane@example.com>"), "not a valid email"},
		{"email no tld", Email("email", "jane@localhost"), "not a valid email"},
		{"email missing", Email("email", ""), "missing email"},
		{"optional email blank", OptionalEmail("email", ""), ""},
		{"one of ok", OneOf("status", "WON", []string{"NEW", "WON"}), ""},
		{"one of bad", OneOf("status", "MAYBE", []string{"NEW", "WON"}), "status must be one of NEW, WON"},
		{"positive ok", Positive("amount", 0.01), ""},
		{"positive zero", Positive("amount", 0), "amount must be greater than zero"},
		{"non-negative", NonNegative("budget", -1), "budget must not be negative"},
		{"date ok", Date("due_date", "2026-03-01"), ""},
		{"date bad", Date("due_date", "01/03/2026"), "YYYY-MM-DD"},
		{"check first", Check(nil, Required("a", ""), Required("b", "")), "missing a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr == "" {
				if tt.err != nil {
					t.Errorf("error = %v, want nil", tt.err)
				}
				return
			}
			if tt.err == nil || !strings.Contains(tt.err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want %q", tt.err, tt.wantErr)
			}
		})
	}
}
