package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"wphunter/internal/analysis"
	"wphunter/internal/config"
	"wphunter/internal/domain"
	"wphunter/internal/ports"
	"wphunter/internal/scanner"
)

// PipelineDeps wires the directory source and analysis components into the
// hunt orchestration. Archive is optional; a nil analyzer skips the deep
// stage entirely. Clock defaults to time.Now and exists for tests.
type PipelineDeps struct {
	Source     scanner.Source
	Classifier *analysis.Classifier
	Changelog  *analysis.ChangelogAnalyzer
	Scorer     *analysis.Scorer
	Archive    ports.ArchiveAnalyzer
	PerPage    int
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Pipeline implements the hunt workflow: concurrent paginated fetch, scope
// filtering, scoring, ranking, and the optional deep archive stage.
type Pipeline struct {
	source     scanner.Source
	classifier *analysis.Classifier
	changelog  *analysis.ChangelogAnalyzer
	scorer     *analysis.Scorer
	archive    ports.ArchiveAnalyzer
	perPage    int
	logger     *slog.Logger
	clock      func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	perPage := deps.PerPage
	if perPage <= 0 {
		perPage = 100
	}
	return &Pipeline{
		source:     deps.Source,
		classifier: deps.Classifier,
		changelog:  deps.Changelog,
		scorer:     deps.Scorer,
		archive:    deps.Archive,
		perPage:    perPage,
		logger:     logger,
		clock:      clock,
	}
}

// pageOutcome carries one fetched page back to the merge step.
type pageOutcome struct {
	page    int
	records []domain.ListingRecord
	err     error
	skipped bool
}

// pageEntry records one listing's slug and eligibility in page order, so the
// skip decision can replay the exact dedup-then-cut walk selection performs.
type pageEntry struct {
	slug     string
	eligible bool
}

// fetchState tracks completed pages so workers can prove a page cannot
// contribute to the final selection. A page may be skipped only when every
// earlier page has completed and the deduped union of their eligible slugs
// already satisfies the limit; the result is then independent of worker
// count, because selection always takes the first eligible records in merged
// page order. A slug repeated across pages counts once, with the earliest
// page's eligibility, exactly as mergePages resolves it.
type fetchState struct {
	mu    sync.Mutex
	pages map[int][]pageEntry
}

func (s *fetchState) complete(page int, entries []pageEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[page] = entries
}

func (s *fetchState) prefixSatisfied(page, limit int) bool {
	if limit <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	eligible := 0
	for p := 1; p < page; p++ {
		entries, done := s.pages[p]
		if !done {
			return false
		}
		for _, e := range entries {
			if seen[e.slug] {
				continue
			}
			seen[e.slug] = true
			if e.eligible {
				eligible++
			}
		}
	}
	return eligible >= limit
}

// Run executes a full hunt over the configured directory.
//
// Pages that fail after retries are counted in PagesFailed and do not abort
// the run. Context cancellation does abort it: Run returns the partial result
// with StatusAborted alongside the context error.
func (p *Pipeline) Run(ctx context.Context, cfg config.ScanConfig) (domain.RunResult, error) {
	now := p.clock()
	result := domain.RunResult{Status: domain.StatusFetching}

	p.logger.Info("fetch started",
		"source", p.source.Name(),
		"pages", cfg.Pages,
		"sort", cfg.Sort,
		"workers", cfg.FetchWorkers)

	pages, failed := p.fetchPages(ctx, cfg)
	result.PagesFailed = failed
	if ctx.Err() != nil {
		result.Status = domain.StatusAborted
		return result, fmt.Errorf("fetch stage: %w", ctx.Err())
	}

	result.Status = domain.StatusFiltering
	records := mergePages(pages, cfg.Pages)
	p.logger.Info("fetch complete",
		"records", len(records),
		"pages_failed", failed)

	result.Status = domain.StatusScoring
	candidates := p.selectCandidates(records, cfg, now)
	p.logger.Info("scoring complete",
		"eligible", len(candidates),
		"skipped", len(records)-len(candidates))

	rank(candidates)

	if p.archive != nil && len(candidates) > 0 {
		result.Status = domain.StatusDeepAnalysis
		unreadable := p.deepStage(ctx, candidates, cfg)
		result.ArchivesUnreadable = unreadable
		if ctx.Err() != nil {
			result.Candidates = candidates
			result.Status = domain.StatusAborted
			return result, fmt.Errorf("deep stage: %w", ctx.Err())
		}
		for i := range candidates {
			p.scorer.Apply(&candidates[i], now)
		}
		rank(candidates)
	}

	result.Candidates = candidates
	result.Status = domain.StatusDone
	return result, nil
}

// fetchPages runs the bounded worker pool over page numbers 1..cfg.Pages and
// returns successfully fetched pages keyed by number plus the failure count.
func (p *Pipeline) fetchPages(ctx context.Context, cfg config.ScanConfig) (map[int][]domain.ListingRecord, int) {
	workers := cfg.FetchWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > cfg.Pages {
		workers = cfg.Pages
	}

	jobs := make(chan int)
	outcomes := make(chan pageOutcome, cfg.Pages)
	state := &fetchState{pages: map[int][]pageEntry{}}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for page := range jobs {
				outcomes <- p.fetchOne(ctx, cfg, page, state)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for page := 1; page <= cfg.Pages; page++ {
			select {
			case jobs <- page:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	pages := make(map[int][]domain.ListingRecord, cfg.Pages)
	failed := 0
	for outcome := range outcomes {
		switch {
		case outcome.skipped:
		case outcome.err != nil:
			failed++
			p.logger.Warn("page failed",
				"page", outcome.page,
				"error", outcome.err)
		default:
			pages[outcome.page] = outcome.records
		}
	}
	return pages, failed
}

func (p *Pipeline) fetchOne(ctx context.Context, cfg config.ScanConfig, page int, state *fetchState) pageOutcome {
	if state.prefixSatisfied(page, cfg.Limit) {
		return pageOutcome{page: page, skipped: true}
	}
	if ctx.Err() != nil {
		return pageOutcome{page: page, err: ctx.Err()}
	}

	records, err := p.source.FetchPage(ctx, scanner.Request{
		Page:    page,
		PerPage: p.perPage,
		Sort:    cfg.Sort,
	})
	if err != nil {
		state.complete(page, nil)
		return pageOutcome{page: page, err: err}
	}

	entries := make([]pageEntry, 0, len(records))
	now := p.clock()
	for _, rec := range records {
		c := p.buildCandidate(rec, now)
		entries = append(entries, pageEntry{
			slug:     rec.Slug,
			eligible: p.eligibleCandidate(c, rec, cfg, now),
		})
	}
	state.complete(page, entries)
	return pageOutcome{page: page, records: records}
}

// mergePages flattens fetched pages in page order, dropping duplicate slugs.
// Duplicates happen when the directory reshuffles listings between page
// requests; the earliest occurrence wins.
func mergePages(pages map[int][]domain.ListingRecord, maxPage int) []domain.ListingRecord {
	var merged []domain.ListingRecord
	seen := make(map[string]bool)
	for page := 1; page <= maxPage; page++ {
		for _, rec := range pages[page] {
			if seen[rec.Slug] {
				continue
			}
			seen[rec.Slug] = true
			merged = append(merged, rec)
		}
	}
	return merged
}

func (p *Pipeline) buildCandidate(rec domain.ListingRecord, now time.Time) domain.Candidate {
	c := domain.Candidate{
		Record:          rec,
		Category:        p.classifier.Classify(rec),
		ChangelogSignal: p.changelog.Signal(rec.Changelog),
	}
	p.scorer.Apply(&c, now)
	return c
}

func (p *Pipeline) eligibleCandidate(c domain.Candidate, rec domain.ListingRecord, cfg config.ScanConfig, now time.Time) bool {
	scope := analysis.ScopeConfig{
		MinInstalls: cfg.MinInstalls,
		MaxInstalls: cfg.MaxInstalls,
		MinDays:     cfg.MinDays,
		MaxDays:     cfg.MaxDays,
	}
	if !analysis.InScope(rec, scope, now) {
		return false
	}
	if cfg.Smart && !analysis.Risky(c.Category) {
		return false
	}
	if cfg.Abandoned && !c.Abandoned {
		return false
	}
	return true
}

// selectCandidates builds, filters, and cuts candidates in page order. The
// limit cut happens before ranking so the selected set depends only on the
// merged record order, never on fetch timing.
func (p *Pipeline) selectCandidates(records []domain.ListingRecord, cfg config.ScanConfig, now time.Time) []domain.Candidate {
	var selected []domain.Candidate
	for _, rec := range records {
		c := p.buildCandidate(rec, now)
		if !p.eligibleCandidate(c, rec, cfg, now) {
			continue
		}
		selected = append(selected, c)
		if cfg.Limit > 0 && len(selected) >= cfg.Limit {
			break
		}
	}
	return selected
}

// rank orders candidates by descending score, breaking ties with descending
// install count. The sort is stable so equal candidates keep page order.
func rank(candidates []domain.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].VPS != candidates[j].VPS {
			return candidates[i].VPS > candidates[j].VPS
		}
		return candidates[i].Record.ActiveInstalls > candidates[j].Record.ActiveInstalls
	})
}

// deepStage downloads and inspects candidate archives with its own smaller
// worker pool, attaching findings to each candidate in place. It returns the
// number of archives that could not be read.
func (p *Pipeline) deepStage(ctx context.Context, candidates []domain.Candidate, cfg config.ScanConfig) int {
	workers := cfg.DeepWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(candidates) {
		workers = len(candidates)
	}

	p.logger.Info("deep analysis started",
		"candidates", len(candidates),
		"workers", workers)

	jobs := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	unreadable := 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				c := &candidates[i]
				if c.Record.DownloadURL == "" {
					c.Deep = &domain.DeepAnalysisResult{ArchiveUnreadable: true}
					mu.Lock()
					unreadable++
					mu.Unlock()
					continue
				}
				deep, err := p.archive.Analyze(ctx, c.Record.DownloadURL)
				c.Deep = &deep
				if err != nil {
					p.logger.Warn("archive analysis failed",
						"slug", c.Record.Slug,
						"error", err)
				}
				if deep.ArchiveUnreadable {
					mu.Lock()
					unreadable++
					mu.Unlock()
				}
			}
		}()
	}

	for i := range candidates {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return unreadable
		}
	}
	close(jobs)
	wg.Wait()
	return unreadable
}
