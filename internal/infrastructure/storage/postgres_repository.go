package storage

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"wphunter/internal/domain"
	"wphunter/internal/ports"
)

// PostgresRepository persists scan sessions and scored candidates into
// Postgres so past hunts can be re-triaged without refetching the directory.
type PostgresRepository struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.ResultRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Migrate creates the session and result tables when they do not exist yet.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if r.db == nil {
		return nil
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS scan_sessions (
			id            BIGSERIAL PRIMARY KEY,
			config_json   JSONB NOT NULL,
			status        TEXT NOT NULL,
			total_found   INTEGER NOT NULL DEFAULT 0,
			high_risk     INTEGER NOT NULL DEFAULT 0,
			error_message TEXT NOT NULL DEFAULT '',
			started_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at   TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS scan_results (
			id                  BIGSERIAL PRIMARY KEY,
			session_id          BIGINT NOT NULL REFERENCES scan_sessions(id) ON DELETE CASCADE,
			slug                TEXT NOT NULL,
			name                TEXT NOT NULL,
			author              TEXT NOT NULL,
			active_installs     INTEGER NOT NULL,
			last_updated        TIMESTAMPTZ,
			tags                TEXT[],
			category            TEXT NOT NULL,
			changelog_signal    INTEGER NOT NULL,
			abandoned           BOOLEAN NOT NULL,
			trusted_author      BOOLEAN NOT NULL,
			compatible          BOOLEAN NOT NULL,
			dangerous_functions INTEGER NOT NULL,
			ajax_handlers       INTEGER NOT NULL,
			archive_unreadable  BOOLEAN NOT NULL,
			vps                 INTEGER NOT NULL,
			severity            TEXT NOT NULL,
			UNIQUE (session_id, slug)
		)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// CreateSession opens a new scan session row holding the effective
// configuration snapshot, and returns its id.
func (r *PostgresRepository) CreateSession(ctx context.Context, configJSON []byte) (int64, error) {
	if r.db == nil {
		return 0, nil
	}

	query, args, err := r.builder.
		Insert("scan_sessions").
		Columns("config_json", "status").
		Values(configJSON, string(domain.StatusFetching)).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build session insert: %w", err)
	}

	var id int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// FinishSession records the terminal state and summary counters of a run.
func (r *PostgresRepository) FinishSession(ctx context.Context, id int64, status domain.RunStatus, totalFound, highRisk int, errMsg string) error {
	if r.db == nil {
		return nil
	}

	query, args, err := r.builder.
		Update("scan_sessions").
		Set("status", string(status)).
		Set("total_found", totalFound).
		Set("high_risk", highRisk).
		Set("error_message", errMsg).
		Set("finished_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build session update: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return nil
}

// SaveCandidate upserts one scored candidate under its session. Re-running a
// scan with the same session keeps the latest score for each slug.
func (r *PostgresRepository) SaveCandidate(ctx context.Context, sessionID int64, c domain.Candidate) error {
	if r.db == nil {
		return nil
	}

	dangerous, ajax, unreadable := 0, 0, false
	if c.Deep != nil {
		dangerous = c.Deep.DangerousFunctions
		ajax = c.Deep.AjaxHandlers
		unreadable = c.Deep.ArchiveUnreadable
	}

	query, args, err := r.builder.
		Insert("scan_results").
		Columns(
			"session_id", "slug", "name", "author", "active_installs",
			"last_updated", "tags", "category", "changelog_signal",
			"abandoned", "trusted_author", "compatible",
			"dangerous_functions", "ajax_handlers", "archive_unreadable",
			"vps", "severity",
		).
		Values(
			sessionID, c.Record.Slug, c.Record.Name, c.Record.Author, c.Record.ActiveInstalls,
			c.Record.LastUpdated, pq.Array(c.Record.Tags), string(c.Category), c.ChangelogSignal,
			c.Abandoned, c.TrustedAuthor, c.Compatible,
			dangerous, ajax, unreadable,
			c.VPS, string(c.Severity),
		).
		Suffix(`ON CONFLICT (session_id, slug) DO UPDATE
			SET vps = EXCLUDED.vps,
			    severity = EXCLUDED.severity,
			    changelog_signal = EXCLUDED.changelog_signal,
			    dangerous_functions = EXCLUDED.dangerous_functions,
			    ajax_handlers = EXCLUDED.ajax_handlers,
			    archive_unreadable = EXCLUDED.archive_unreadable`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build candidate insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save candidate %s: %w", c.Record.Slug, err)
	}
	return nil
}

// validateOrder whitelists the columns TopCandidates may order by. Anything
// else is rejected before it can reach the query text.
func (r *PostgresRepository) validateOrder(orderBy string) error {
	switch orderBy {
	case "vps", "active_installs", "last_updated":
		return nil
	default:
		return fmt.Errorf("unsupported order column %q", orderBy)
	}
}

// TopCandidates loads the highest-scoring rows of a past session, ordered by
// the given column. Only known columns are accepted.
func (r *PostgresRepository) TopCandidates(ctx context.Context, sessionID int64, orderBy string, limit int) ([]domain.Candidate, error) {
	if err := r.validateOrder(orderBy); err != nil {
		return nil, err
	}
	if r.db == nil {
		return nil, nil
	}

	builder := r.builder.
		Select(
			"slug", "name", "author", "active_installs", "last_updated",
			"tags", "category", "changelog_signal",
			"abandoned", "trusted_author", "compatible",
			"dangerous_functions", "ajax_handlers", "archive_unreadable",
			"vps", "severity",
		).
		From("scan_results").
		Where(sq.Eq{"session_id": sessionID}).
		OrderBy(orderBy + " DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build candidate select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var (
			c          domain.Candidate
			tags       pq.StringArray
			category   string
			severity   string
			deep       domain.DeepAnalysisResult
			hasDeepRow bool
		)
		if err := rows.Scan(
			&c.Record.Slug, &c.Record.Name, &c.Record.Author, &c.Record.ActiveInstalls, &c.Record.LastUpdated,
			&tags, &category, &c.ChangelogSignal,
			&c.Abandoned, &c.TrustedAuthor, &c.Compatible,
			&deep.DangerousFunctions, &deep.AjaxHandlers, &deep.ArchiveUnreadable,
			&c.VPS, &severity,
		); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		c.Record.Tags = tags
		c.Category = domain.Category(category)
		c.Severity = domain.Severity(severity)
		hasDeepRow = deep.DangerousFunctions > 0 || deep.AjaxHandlers > 0 || deep.ArchiveUnreadable
		if hasDeepRow {
			c.Deep = &deep
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
