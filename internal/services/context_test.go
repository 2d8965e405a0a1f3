package services_test

import (
	"context"
	"testing"

	"comicvault/internal/services"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithComicID(ctx, 42)
	ctx = services.WithStage(ctx, "load_contents")
	ctx = services.WithRequestID(ctx, "job-123")

	if id, ok := services.ComicIDFromContext(ctx); !ok || id != 42 {
		t.Fatalf("unexpected comic id: %v %v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "load_contents" {
		t.Fatalf("unexpected stage: %v %v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "job-123" {
		t.Fatalf("unexpected request id: %v %v", rid, ok)
	}
}

func TestStageBlankPreservesContext(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithStage(ctx, "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected no stage value")
	}
}

func TestComicIDMissing(t *testing.T) {
	if _, ok := services.ComicIDFromContext(context.Background()); ok {
		t.Fatal("expected no comic id")
	}
}
