package logging

import (
	"context"
	"testing"
)

func TestTraceIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetTraceID(ctx); got != "" {
		t.Fatalf("expected empty trace id, got %q", got)
	}

	id := NewTraceID()
	if id == "" {
		t.Fatal("NewTraceID returned empty string")
	}

	ctx = WithTraceID(ctx, id)
	if got := GetTraceID(ctx); got != id {
		t.Fatalf("trace id mismatch: got %q want %q", got, id)
	}
}

func TestUserIDRoundTrip(t *testing.T) {
	ctx := WithUserID(context.Background(), "user-1")
	if got := GetUserID(ctx); got != "user-1" {
		t.Fatalf("user id mismatch: got %q", got)
	}
	if WithUserID(context.Background(), "") != context.Background() {
		t.Fatal("empty user id should not allocate a new context")
	}
}

func TestNewToleratesBadLevel(t *testing.T) {
	log := New("test", "no-such-level", "text")
	if log == nil {
		t.Fatal("expected logger")
	}
	log.WithField("k", "v").Debug("should not panic")
}
