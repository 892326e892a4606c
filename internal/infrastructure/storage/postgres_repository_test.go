package storage

import (
	"context"
	"strings"
	"testing"

	"wphunter/internal/domain"
)

func TestNilDBIsSafe(t *testing.T) {
	t.Parallel()

	r := NewPostgresRepository(nil)
	ctx := context.Background()

	if err := r.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if id, err := r.CreateSession(ctx, []byte(`{}`)); err != nil || id != 0 {
		t.Fatalf("CreateSession = (%d, %v)", id, err)
	}
	if err := r.SaveCandidate(ctx, 1, domain.Candidate{}); err != nil {
		t.Fatalf("SaveCandidate: %v", err)
	}
	if err := r.FinishSession(ctx, 1, domain.StatusDone, 0, 0, ""); err != nil {
		t.Fatalf("FinishSession: %v", err)
	}
	if rows, err := r.TopCandidates(ctx, 1, "vps", 10); err != nil || rows != nil {
		t.Fatalf("TopCandidates = (%v, %v)", rows, err)
	}
}

func TestTopCandidatesRejectsUnknownOrderColumn(t *testing.T) {
	t.Parallel()

	r := NewPostgresRepository(nil)

	_, err := r.TopCandidates(context.Background(), 1, "severity; DROP TABLE scan_results", 10)
	if err == nil {
		t.Fatal("expected rejection of unknown order column")
	}
	if !strings.Contains(err.Error(), "unsupported order column") {
		t.Fatalf("unexpected error: %v", err)
	}
}
