package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedis(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Client().Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set through client: %v", err)
	}
}

func TestNewRedis_InvalidURL(t *testing.T) {
	if _, err := NewRedis(context.Background(), "http://localhost:6379"); err == nil {
		t.Fatal("expected error for non-redis URL scheme")
	}
}
