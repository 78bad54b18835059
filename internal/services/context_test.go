package services_test

import (
	"context"
	"testing"

	"morgonpodd/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "20261014T040000Z")
	ctx = services.WithStage(ctx, "render")
	ctx = services.WithChunkIndex(ctx, 3)
	ctx = services.WithRequestID(ctx, "req-123")

	if id, ok := services.RunIDFromContext(ctx); !ok || id != "20261014T040000Z" {
		t.Fatalf("unexpected run id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "render" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if idx, ok := services.ChunkIndexFromContext(ctx); !ok || idx != 3 {
		t.Fatalf("unexpected chunk index: %v %v", idx, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
	if _, ok := services.ChunkIndexFromContext(ctx); ok {
		t.Fatal("expected no chunk index")
	}
}
