package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"wphunter/internal/analysis"
	"wphunter/internal/config"
	"wphunter/internal/domain"
	"wphunter/internal/infrastructure/archive"
	"wphunter/internal/infrastructure/directory"
	"wphunter/internal/infrastructure/report"
	"wphunter/internal/infrastructure/storage"
	"wphunter/internal/logging"
	"wphunter/internal/ports"
	"wphunter/internal/scanner"
	"wphunter/internal/usecase"
)

// Application wires configuration into the hunt pipeline and its adapters.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	pipeline   *usecase.Pipeline
	repository ports.ResultRepository
	reporter   ports.Reporter
	db         *sql.DB
}

// New builds a runnable application instance. The database connection and
// deep analyzer are wired only when the configuration asks for them.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	httpClient := &http.Client{Timeout: time.Duration(cfg.Directory.TimeoutSeconds) * time.Second}

	registry := scanner.NewRegistry()
	registry.Register(directory.NewPluginsClient(
		cfg.Directory.PluginsURL,
		baseLogger.With("component", "directory.plugins"),
		directory.WithHTTPClient(httpClient),
		directory.WithMaxRetries(cfg.Directory.MaxRetries),
	))
	registry.Register(directory.NewThemesClient(
		cfg.Directory.ThemesURL,
		baseLogger.With("component", "directory.themes"),
		directory.WithHTTPClient(httpClient),
		directory.WithMaxRetries(cfg.Directory.MaxRetries),
	))

	sourceName := "plugins"
	if cfg.Scan.Themes {
		sourceName = "themes"
	}
	source, err := registry.Resolve(sourceName)
	if err != nil {
		return nil, fmt.Errorf("resolve directory source: %w", err)
	}

	weights := analysis.DefaultWeights()
	deepEnabled := cfg.Scan.DeepAnalysis || cfg.Scan.DangerousFunctions || cfg.Scan.AjaxScan
	if deepEnabled && !cfg.Scan.DeepAnalysis {
		// Single-finding modes keep the other finding type out of the score.
		if !cfg.Scan.DangerousFunctions {
			weights.DangerousPointsPerHit = 0
		}
		if !cfg.Scan.AjaxScan {
			weights.AjaxPointsPerHit = 0
		}
	}

	var archiveAnalyzer ports.ArchiveAnalyzer
	if deepEnabled {
		archiveAnalyzer = archive.NewAnalyzer(
			nil,
			cfg.Scan.MaxArchiveBytes,
			baseLogger.With("component", "archive"),
		)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:     source,
		Classifier: analysis.NewClassifier(analysis.DefaultCategoryRules()),
		Changelog:  analysis.NewChangelogAnalyzer(analysis.DefaultSignalKeywords()),
		Scorer:     analysis.NewScorer(weights),
		Archive:    archiveAnalyzer,
		PerPage:    cfg.Directory.PerPage,
		Logger:     baseLogger.With("component", "pipeline"),
	})

	app := &Application{
		cfg:      cfg,
		logger:   baseLogger.With("component", "app"),
		pipeline: pipeline,
	}

	reporter, err := report.New(cfg.Report.Format, cfg.Report.Output)
	if err != nil {
		return nil, err
	}
	app.reporter = reporter

	if cfg.Database.DSN != "" {
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		app.db = db
		app.repository = storage.NewPostgresRepository(db)
	}

	return app, nil
}

// Close releases the database connection if one was opened.
func (a *Application) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Run executes one hunt: open a session, run the pipeline, persist and
// report the outcome. Reporting happens even when persistence is disabled,
// and a broken database downgrades to an unpersisted run rather than
// aborting before the first fetch.
func (a *Application) Run(ctx context.Context) error {
	sessionID, err := a.openSession(ctx)
	if err != nil {
		a.logger.Warn("session persistence unavailable", "error", err)
		sessionID = 0
	}

	result, runErr := a.pipeline.Run(ctx, a.cfg.Scan)

	highRisk := 0
	bands := map[domain.Severity]int{}
	for _, c := range result.Candidates {
		bands[c.Severity]++
		if c.Severity == domain.SeverityHigh || c.Severity == domain.SeverityCritical {
			highRisk++
		}
	}

	if a.repository != nil && sessionID != 0 {
		for _, c := range result.Candidates {
			if err := a.repository.SaveCandidate(ctx, sessionID, c); err != nil {
				a.logger.Warn("persist candidate failed",
					"slug", c.Record.Slug,
					"error", err)
			}
		}
		errMsg := ""
		if runErr != nil {
			errMsg = runErr.Error()
		}
		if err := a.repository.FinishSession(ctx, sessionID, result.Status, len(result.Candidates), highRisk, errMsg); err != nil {
			a.logger.Warn("finish session failed", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}

	a.logger.Info("hunt complete",
		"candidates", len(result.Candidates),
		"critical", bands[domain.SeverityCritical],
		"high", bands[domain.SeverityHigh],
		"low", bands[domain.SeverityLow],
		"pages_failed", result.PagesFailed,
		"archives_unreadable", result.ArchivesUnreadable)

	if err := a.reporter.Write(result); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Replay reprints a stored session's candidates through the configured
// reporter, highest score first, without touching the network.
func (a *Application) Replay(ctx context.Context, sessionID int64) error {
	if a.repository == nil {
		return fmt.Errorf("replaying session %d requires a configured database", sessionID)
	}

	candidates, err := a.repository.TopCandidates(ctx, sessionID, "vps", a.cfg.Scan.Limit)
	if err != nil {
		return fmt.Errorf("load session %d: %w", sessionID, err)
	}
	a.logger.Info("session replay", "session", sessionID, "candidates", len(candidates))
	return a.reporter.Write(domain.RunResult{Candidates: candidates, Status: domain.StatusDone})
}

func (a *Application) openSession(ctx context.Context) (int64, error) {
	if a.repository == nil {
		return 0, nil
	}

	if pg, ok := a.repository.(*storage.PostgresRepository); ok {
		if err := pg.Migrate(ctx); err != nil {
			return 0, fmt.Errorf("migrate schema: %w", err)
		}
	}

	snapshot, err := json.Marshal(a.cfg.Scan)
	if err != nil {
		return 0, fmt.Errorf("marshal scan config: %w", err)
	}
	id, err := a.repository.CreateSession(ctx, snapshot)
	if err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	return id, nil
}
