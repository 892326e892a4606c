package ports

import (
	"context"

	"wphunter/internal/domain"
)

// ArchiveAnalyzer downloads a candidate's distribution archive and reports
// static findings. Implementations own their scratch space exclusively and
// must release it before returning, on every exit path.
type ArchiveAnalyzer interface {
	Analyze(ctx context.Context, downloadURL string) (domain.DeepAnalysisResult, error)
}

// ResultRepository persists scan sessions and their scored candidates for
// later triage.
type ResultRepository interface {
	CreateSession(ctx context.Context, configJSON []byte) (int64, error)
	FinishSession(ctx context.Context, id int64, status domain.RunStatus, totalFound, highRisk int, errMsg string) error
	SaveCandidate(ctx context.Context, sessionID int64, c domain.Candidate) error
	TopCandidates(ctx context.Context, sessionID int64, orderBy string, limit int) ([]domain.Candidate, error)
}

// Reporter renders the final ranked candidate list.
type Reporter interface {
	Write(result domain.RunResult) error
}
