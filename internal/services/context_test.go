package services

import (
	"context"
	"testing"
)

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := WithJobID(context.Background(), "job-1")
	ctx = WithStage(ctx, "speech")
	ctx = WithRequestID(ctx, "req-9")

	if id, ok := JobIDFromContext(ctx); !ok || id != "job-1" {
		t.Fatalf("job id = %q, %v", id, ok)
	}
	if stage, ok := StageFromContext(ctx); !ok || stage != "speech" {
		t.Fatalf("stage = %q, %v", stage, ok)
	}
	if rid, ok := RequestIDFromContext(ctx); !ok || rid != "req-9" {
		t.Fatalf("request id = %q, %v", rid, ok)
	}
}

func TestContextHelpersIgnoreEmpty(t *testing.T) {
	ctx := WithJobID(context.Background(), "")
	ctx = WithStage(ctx, "")
	if _, ok := JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id")
	}
	if _, ok := StageFromContext(ctx); ok {
		t.Fatal("expected no stage")
	}
}
