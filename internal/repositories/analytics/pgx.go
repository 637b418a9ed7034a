package analytics

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/repositories"
	"github.com/orgball2608/content-publisher/pkg/logger"
)

type Pgx struct {
	pg     *pgxpool.Pool
	logger logger.Logger
}

func NewPgx(pg *pgxpool.Pool, logger logger.Logger) *Pgx {
	return &Pgx{
		pg:     pg,
		logger: logger.WithComponent("AnalyticsRepo"),
	}
}

var _ Repository = (*Pgx)(nil)

func (p *Pgx) Record(ctx context.Context, snapshot domain.AnalyticsSnapshot) error {
	if snapshot.RecordedAt.IsZero() {
		snapshot.RecordedAt = time.Now()
	}

	query, args, err := repositories.SqBuilder.
		Insert("analytics_snapshots").
		Columns("content_id", "platform", "views", "likes", "shares", "comments", "recorded_at").
		Values(
			snapshot.ContentID,
			string(snapshot.Platform),
			snapshot.Views,
			snapshot.Likes,
			snapshot.Shares,
			snapshot.Comments,
			snapshot.RecordedAt,
		).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	return err
}

func (p *Pgx) ListByContent(ctx context.Context, contentID string) ([]domain.AnalyticsSnapshot, error) {
	query, args, err := repositories.SqBuilder.
		Select("id", "content_id", "platform", "views", "likes", "shares", "comments", "recorded_at").
		From("analytics_snapshots").
		Where(sq.Eq{"content_id": contentID}).
		OrderBy("recorded_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []domain.AnalyticsSnapshot
	for rows.Next() {
		var (
			s        domain.AnalyticsSnapshot
			platform string
		)
		if err := rows.Scan(&s.ID, &s.ContentID, &platform, &s.Views, &s.Likes, &s.Shares, &s.Comments, &s.RecordedAt); err != nil {
			return nil, err
		}
		s.Platform = domain.Platform(platform)
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return snapshots, nil
}
