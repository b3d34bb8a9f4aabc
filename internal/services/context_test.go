package services_test

import (
	"context"
	"testing"

	"reelscout/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPlatform(ctx, "nfx")
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithRequestID(ctx, "req-123")

	if platform, ok := services.PlatformFromContext(ctx); !ok || platform != "nfx" {
		t.Fatalf("unexpected platform: %v %v", platform, ok)
	}
	if id, ok := services.RunIDFromContext(ctx); !ok || id != "run-1" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestBlankValuesPreserveContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithPlatform(ctx, "")
	ctx = services.WithRunID(ctx, "")
	if _, ok := services.PlatformFromContext(ctx); ok {
		t.Fatal("expected no platform value")
	}
	if _, ok := services.RunIDFromContext(ctx); ok {
		t.Fatal("expected no run id value")
	}
}
