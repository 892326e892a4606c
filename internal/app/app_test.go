package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"wphunter/internal/analysis"
	"wphunter/internal/config"
	"wphunter/internal/domain"
	"wphunter/internal/scanner"
	"wphunter/internal/usecase"
)

type stubSource struct {
	records []domain.ListingRecord
}

func (s *stubSource) Name() string { return "plugins" }

func (s *stubSource) FetchPage(ctx context.Context, req scanner.Request) ([]domain.ListingRecord, error) {
	if req.Page == 1 {
		return s.records, nil
	}
	return nil, nil
}

type brokenRepository struct{}

func (brokenRepository) CreateSession(context.Context, []byte) (int64, error) {
	return 0, errors.New("connection refused")
}

func (brokenRepository) FinishSession(context.Context, int64, domain.RunStatus, int, int, string) error {
	return errors.New("connection refused")
}

func (brokenRepository) SaveCandidate(context.Context, int64, domain.Candidate) error {
	return errors.New("connection refused")
}

func (brokenRepository) TopCandidates(context.Context, int64, string, int) ([]domain.Candidate, error) {
	return nil, errors.New("connection refused")
}

type storedRepository struct {
	brokenRepository
	candidates []domain.Candidate
	orderBy    string
	sessionID  int64
}

func (r *storedRepository) TopCandidates(ctx context.Context, sessionID int64, orderBy string, limit int) ([]domain.Candidate, error) {
	r.sessionID = sessionID
	r.orderBy = orderBy
	return r.candidates, nil
}

type memoryReporter struct {
	writes int
	last   domain.RunResult
}

func (r *memoryReporter) Write(result domain.RunResult) error {
	r.writes++
	r.last = result
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testScan() config.Config {
	cfg := config.Config{}
	cfg.Scan = config.ScanConfig{
		Pages:        1,
		Sort:         config.SortUpdated,
		FetchWorkers: 1,
		DeepWorkers:  1,
	}
	cfg.Directory.PerPage = 100
	return cfg
}

func testPipeline(src scanner.Source) *usecase.Pipeline {
	return usecase.NewPipeline(usecase.PipelineDeps{
		Source:     src,
		Classifier: analysis.NewClassifier(analysis.DefaultCategoryRules()),
		Changelog:  analysis.NewChangelogAnalyzer(analysis.DefaultSignalKeywords()),
		Scorer:     analysis.NewScorer(analysis.DefaultWeights()),
		Logger:     discardLogger(),
	})
}

func TestRunSurvivesBrokenPersistence(t *testing.T) {
	t.Parallel()

	src := &stubSource{records: []domain.ListingRecord{
		{
			Slug:           "easy-pay",
			Name:           "Easy Pay",
			Author:         "someone",
			ActiveInstalls: 3000,
			LastUpdated:    time.Now().AddDate(0, 0, -30),
			Tags:           []string{"payment"},
		},
	}}
	reporter := &memoryReporter{}
	a := &Application{
		cfg:        testScan(),
		logger:     discardLogger(),
		pipeline:   testPipeline(src),
		repository: brokenRepository{},
		reporter:   reporter,
	}

	if err := a.Run(context.Background()); err != nil {
		t.Fatalf("a broken database must not abort the hunt: %v", err)
	}
	if reporter.writes != 1 {
		t.Fatalf("report writes = %d, want 1", reporter.writes)
	}
	if len(reporter.last.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(reporter.last.Candidates))
	}
}

func TestReplayWritesStoredSession(t *testing.T) {
	t.Parallel()

	repo := &storedRepository{candidates: []domain.Candidate{
		{Record: domain.ListingRecord{Slug: "easy-pay"}, VPS: 62, Severity: domain.SeverityHigh},
		{Record: domain.ListingRecord{Slug: "plain-widget"}, VPS: 5, Severity: domain.SeverityLow},
	}}
	reporter := &memoryReporter{}
	a := &Application{
		cfg:        testScan(),
		logger:     discardLogger(),
		repository: repo,
		reporter:   reporter,
	}

	if err := a.Replay(context.Background(), 7); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if repo.sessionID != 7 || repo.orderBy != "vps" {
		t.Fatalf("unexpected query: session=%d order=%s", repo.sessionID, repo.orderBy)
	}
	if reporter.writes != 1 || len(reporter.last.Candidates) != 2 {
		t.Fatalf("report = %d writes, %d candidates", reporter.writes, len(reporter.last.Candidates))
	}
}

func TestReplayRequiresDatabase(t *testing.T) {
	t.Parallel()

	a := &Application{cfg: testScan(), logger: discardLogger(), reporter: &memoryReporter{}}
	if err := a.Replay(context.Background(), 7); err == nil {
		t.Fatal("expected error without a configured repository")
	}
}
