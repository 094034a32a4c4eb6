package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/samvad-hq/samvad-briefing/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		author TEXT NOT NULL DEFAULT '',
		publication_date TEXT NOT NULL DEFAULT '',
		source_url TEXT NOT NULL,
		source_type TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS briefings (
		id BIGSERIAL PRIMARY KEY,
		date TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		articles JSONB NOT NULL DEFAULT '[]',
		total_count INTEGER NOT NULL DEFAULT 0,
		ai_summary TEXT NOT NULL DEFAULT '',
		full_text TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS briefing_articles (
		briefing_id BIGINT NOT NULL REFERENCES briefings(id) ON DELETE CASCADE,
		article_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (briefing_id, article_id)
	)`,
}

var briefingColumns = []string{"id", "date", "title", "articles", "total_count", "ai_summary", "full_text", "created_at"}

// postgresRepository stores articles and briefings through pgx's database/sql driver.
type postgresRepository struct {
	db *sql.DB
}

func openPostgres(ctx context.Context, opts Options) (*postgresRepository, error) {
	db, err := sql.Open("pgx", opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	repo := &postgresRepository{db: db}
	if err := repo.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (r *postgresRepository) ensureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (r *postgresRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func upsertArticleQuery(a domain.Article) sq.InsertBuilder {
	return psql.Insert("articles").
		Columns("id", "title", "content", "author", "publication_date", "source_url", "source_type", "summary", "status", "created_at", "updated_at").
		Values(a.ID, a.Title, a.Content, a.Author, a.PublicationDate, a.SourceURL, string(a.SourceType), a.Summary, string(a.Status), a.CreatedAt, a.UpdatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			author = EXCLUDED.author,
			publication_date = EXCLUDED.publication_date,
			source_url = EXCLUDED.source_url,
			source_type = EXCLUDED.source_type,
			summary = EXCLUDED.summary,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`)
}

func upsertBriefingQuery(b domain.Briefing, articles []byte) sq.InsertBuilder {
	return psql.Insert("briefings").
		Columns("date", "title", "articles", "total_count", "ai_summary", "full_text", "created_at").
		Values(b.Date, b.Title, string(articles), b.TotalCount, b.AISummary, b.FullText, b.CreatedAt).
		Suffix(`ON CONFLICT (date) DO UPDATE SET
			title = EXCLUDED.title,
			articles = EXCLUDED.articles,
			total_count = EXCLUDED.total_count,
			ai_summary = EXCLUDED.ai_summary,
			full_text = EXCLUDED.full_text,
			created_at = EXCLUDED.created_at
		RETURNING id`)
}

func (r *postgresRepository) UpsertArticle(ctx context.Context, a domain.Article) (string, error) {
	if a.ID == "" {
		return "", fmt.Errorf("article id is required")
	}
	query, args, err := upsertArticleQuery(a).ToSql()
	if err != nil {
		return "", fmt.Errorf("build article upsert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("upsert article %s: %w", a.ID, err)
	}
	return a.ID, nil
}

func (r *postgresRepository) UpsertBriefing(ctx context.Context, b domain.Briefing, articleIDs []string) (id int64, err error) {
	b, err = prepareBriefing(b)
	if err != nil {
		return 0, err
	}
	snapshot, err := json.Marshal(b.Articles)
	if err != nil {
		return 0, fmt.Errorf("encode articles: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin briefing upsert: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, args, err := upsertBriefingQuery(b, snapshot).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build briefing upsert: %w", err)
	}
	if err = tx.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("upsert briefing %s: %w", b.Date, err)
	}

	del, delArgs, err := psql.Delete("briefing_articles").Where(sq.Eq{"briefing_id": id}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build link delete: %w", err)
	}
	if _, err = tx.ExecContext(ctx, del, delArgs...); err != nil {
		return 0, fmt.Errorf("clear briefing links: %w", err)
	}

	if links := linkInsertQuery(id, articleIDs); links != nil {
		ins, insArgs, buildErr := links.ToSql()
		if buildErr != nil {
			err = buildErr
			return 0, fmt.Errorf("build link insert: %w", err)
		}
		if _, err = tx.ExecContext(ctx, ins, insArgs...); err != nil {
			return 0, fmt.Errorf("link briefing articles: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit briefing upsert: %w", err)
	}
	return id, nil
}

// linkInsertQuery returns nil when there is nothing to link. Repeated ids keep
// their first position.
func linkInsertQuery(briefingID int64, articleIDs []string) *sq.InsertBuilder {
	seen := make(map[string]struct{}, len(articleIDs))
	q := psql.Insert("briefing_articles").Columns("briefing_id", "article_id", "position")
	rows := 0
	for pos, aid := range articleIDs {
		if _, dup := seen[aid]; dup || aid == "" {
			continue
		}
		seen[aid] = struct{}{}
		q = q.Values(briefingID, aid, pos)
		rows++
	}
	if rows == 0 {
		return nil
	}
	return &q
}

func (r *postgresRepository) GetBriefingByDate(ctx context.Context, date string) (domain.Briefing, bool, error) {
	query, args, err := psql.Select(briefingColumns...).From("briefings").Where(sq.Eq{"date": date}).ToSql()
	if err != nil {
		return domain.Briefing{}, false, err
	}
	return r.queryOne(ctx, query, args...)
}

func (r *postgresRepository) GetLatestBriefing(ctx context.Context) (domain.Briefing, bool, error) {
	query, args, err := psql.Select(briefingColumns...).From("briefings").OrderBy("date DESC").Limit(1).ToSql()
	if err != nil {
		return domain.Briefing{}, false, err
	}
	return r.queryOne(ctx, query, args...)
}

func (r *postgresRepository) ListBriefings(ctx context.Context, limit, offset int) ([]domain.Briefing, error) {
	limit, offset = clampPage(limit, offset)
	query, args, err := psql.Select(briefingColumns...).From("briefings").
		OrderBy("date DESC").Limit(uint64(limit)).Offset(uint64(offset)).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list briefings: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Briefing, 0, limit)
	for rows.Next() {
		b, err := scanBriefing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *postgresRepository) queryOne(ctx context.Context, query string, args ...any) (domain.Briefing, bool, error) {
	b, err := scanBriefing(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Briefing{}, false, nil
	}
	if err != nil {
		return domain.Briefing{}, false, err
	}
	return b, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBriefing(row rowScanner) (domain.Briefing, error) {
	var (
		b        domain.Briefing
		articles []byte
	)
	if err := row.Scan(&b.ID, &b.Date, &b.Title, &articles, &b.TotalCount, &b.AISummary, &b.FullText, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return b, err
		}
		return b, fmt.Errorf("scan briefing: %w", err)
	}
	if len(articles) > 0 {
		if err := json.Unmarshal(articles, &b.Articles); err != nil {
			return b, fmt.Errorf("decode briefing articles: %w", err)
		}
	}
	b.Normalize()
	return b, nil
}
