package services_test

import (
	"context"
	"testing"

	"afterlive/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRoomID(ctx, 100)
	ctx = services.WithSessionID(ctx, "sess-1")
	ctx = services.WithStage(ctx, "staged")
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.RoomIDFromContext(ctx); !ok || id != 100 {
		t.Fatalf("unexpected room id: %v %v", id, ok)
	}
	if sid, ok := services.SessionIDFromContext(ctx); !ok || sid != "sess-1" {
		t.Fatalf("unexpected session id: %v %v", sid, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "staged" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	ctx = services.WithSessionID(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.SessionIDFromContext(ctx); ok {
		t.Fatal("expected no session value")
	}
	if _, ok := services.RoomIDFromContext(ctx); ok {
		t.Fatal("expected no room value")
	}
}

func TestZeroRoomIsNotRecorded(t *testing.T) {
	ctx := services.WithRoomID(context.Background(), 0)
	if _, ok := services.RoomIDFromContext(ctx); ok {
		t.Fatal("expected zero room id to be dropped")
	}
}
