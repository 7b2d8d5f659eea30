package domain

import (
	"testing"
	"time"
)

func TestClampAttempts(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 1},
		{-5, 1},
		{1, 1},
		{5, 5},
		{10, 10},
		{11, 10},
		{100, 10},
	}

	for _, tt := range tests {
		if got := ClampAttempts(tt.in); got != tt.want {
			t.Errorf("ClampAttempts(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestClampTimeoutSeconds(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 5},
		{4, 5},
		{5, 5},
		{30, 30},
		{120, 120},
		{121, 120},
	}

	for _, tt := range tests {
		if got := ClampTimeoutSeconds(tt.in); got != tt.want {
			t.Errorf("ClampTimeoutSeconds(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestSubscriptionTimeout(t *testing.T) {
	sub := Subscription{TimeoutSeconds: 45}
	if got := sub.Timeout(); got != 45*time.Second {
		t.Errorf("Timeout() = %s, want 45s", got)
	}
}

func TestSubscribesTo(t *testing.T) {
	sub := Subscription{EventTypes: []string{"order.created", "invoice.issued"}}

	if !sub.SubscribesTo("order.created") {
		t.Error("expected subscription to order.created")
	}
	if sub.SubscribesTo("order.canceled") {
		t.Error("did not expect subscription to order.canceled")
	}
	if sub.SubscribesTo("") {
		t.Error("empty event type must never match")
	}
}
