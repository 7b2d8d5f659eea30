package domain

import "testing"

func TestValidEventType(t *testing.T) {
	for _, et := range EventTypes {
		if !ValidEventType(et) {
			t.Errorf("catalog entry %q reported invalid", et)
		}
	}

	for _, et := range []string{"", "order", "order.shipped", "ORDER.CREATED"} {
		if ValidEventType(et) {
			t.Errorf("ValidEventType(%q) = true, want false", et)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{StatusSuccess, true},
		{StatusExhausted, true},
		{StatusPending, false},
		{StatusAwaitingRetry, false},
		{StatusFailure, false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsTerminal(tt.status); got != tt.want {
			t.Errorf("IsTerminal(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
