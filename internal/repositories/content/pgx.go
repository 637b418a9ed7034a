package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/orgball2608/content-publisher/internal/domain"
	"github.com/orgball2608/content-publisher/internal/repositories"
	"github.com/orgball2608/content-publisher/pkg/logger"
)

const (
	itemsTable = "content_items"
	mediaTable = "content_media"
)

var itemColumns = []string{
	"id", "user_id", "title", "body", "hashtags", "platforms",
	"status", "scheduled_for", "published_at", "created_at", "updated_at",
}

type Pgx struct {
	pg     *pgxpool.Pool
	logger logger.Logger
}

func NewPgx(pg *pgxpool.Pool, logger logger.Logger) *Pgx {
	return &Pgx{
		pg:     pg,
		logger: logger.WithComponent("ContentRepo"),
	}
}

var _ Repository = (*Pgx)(nil)

func (p *Pgx) Create(ctx context.Context, item domain.ContentItem) error {
	now := time.Now()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}
	if item.Status == "" {
		item.Status = domain.StatusDraft
	}

	query, args, err := repositories.SqBuilder.
		Insert(itemsTable).
		Columns(itemColumns...).
		Values(
			item.ID,
			item.UserID,
			item.Title,
			item.Body,
			encodeSet(item.Hashtags),
			encodePlatforms(item.Platforms),
			string(item.Status),
			item.ScheduledFor,
			item.PublishedAt,
			item.CreatedAt,
			item.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}

	tx, err := p.pg.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err = tx.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == repositories.UniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}

	if len(item.Media) > 0 {
		insert := repositories.SqBuilder.
			Insert(mediaTable).
			Columns("content_id", "position", "url", "kind", "mime_type")
		for i, m := range item.Media {
			insert = insert.Values(item.ID, i, m.URL, string(m.ResolvedKind()), m.MimeType)
		}

		query, args, err = insert.ToSql()
		if err != nil {
			return repositories.ErrBadQuery
		}
		if _, err = tx.Exec(ctx, query, args...); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (p *Pgx) GetByID(ctx context.Context, id string) (*domain.ContentItem, error) {
	query, args, err := repositories.SqBuilder.
		Select(itemColumns...).
		From(itemsTable).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	item, err := scanItem(p.pg.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	media, err := p.loadMedia(ctx, []string{item.ID})
	if err != nil {
		return nil, err
	}
	item.Media = media[item.ID]

	return &item, nil
}

func (p *Pgx) ListDue(ctx context.Context, now time.Time) ([]domain.ContentItem, error) {
	query, args, err := repositories.SqBuilder.
		Select(itemColumns...).
		From(itemsTable).
		Where(sq.Eq{"status": string(domain.StatusScheduled)}).
		Where(sq.Lt{"scheduled_for": now}).
		OrderBy("scheduled_for ASC").
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query due content: %w", err)
	}
	defer rows.Close()

	var items []domain.ContentItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	media, err := p.loadMedia(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Media = media[items[i].ID]
	}

	return items, nil
}

func (p *Pgx) Claim(ctx context.Context, id, runID string, now time.Time) (bool, error) {
	query, args, err := repositories.SqBuilder.
		Update(itemsTable).
		Set("status", string(domain.StatusPublishing)).
		Set("claim_token", runID).
		Set("claimed_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": string(domain.StatusScheduled)}).
		Where(sq.Lt{"scheduled_for": now}).
		ToSql()
	if err != nil {
		return false, repositories.ErrBadQuery
	}

	result, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}

	return result.RowsAffected() == 1, nil
}

func (p *Pgx) MarkPublished(ctx context.Context, id, runID string, publishedAt time.Time) error {
	query, args, err := repositories.SqBuilder.
		Update(itemsTable).
		Set("status", string(domain.StatusPublished)).
		Set("published_at", publishedAt).
		Set("claim_token", nil).
		Set("claimed_at", nil).
		Set("updated_at", time.Now()).
		Where(sq.Eq{
			"id":          id,
			"status":      string(domain.StatusPublishing),
			"claim_token": runID,
		}).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}

	result, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		return ErrClaimLost
	}

	return nil
}

func (p *Pgx) ReleaseStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	query, args, err := repositories.SqBuilder.
		Update(itemsTable).
		Set("status", string(domain.StatusScheduled)).
		Set("claim_token", nil).
		Set("claimed_at", nil).
		Set("updated_at", time.Now()).
		Where(sq.Eq{"status": string(domain.StatusPublishing)}).
		Where(sq.Lt{"claimed_at": claimedBefore}).
		ToSql()
	if err != nil {
		return 0, repositories.ErrBadQuery
	}

	result, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	if n := result.RowsAffected(); n > 0 {
		p.logger.Warn("Released stale content claims", "count", n, "claimed_before", claimedBefore)
	}

	return result.RowsAffected(), nil
}

func (p *Pgx) loadMedia(ctx context.Context, ids []string) (map[string][]domain.Media, error) {
	query, args, err := repositories.SqBuilder.
		Select("content_id", "url", "kind", "mime_type").
		From(mediaTable).
		Where(sq.Eq{"content_id": ids}).
		OrderBy("content_id", "position ASC").
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query content media: %w", err)
	}
	defer rows.Close()

	media := make(map[string][]domain.Media, len(ids))
	for rows.Next() {
		var (
			contentID string
			m         domain.Media
			kind      string
		)
		if err := rows.Scan(&contentID, &m.URL, &kind, &m.MimeType); err != nil {
			return nil, err
		}
		m.Kind = domain.MediaKind(kind)
		media[contentID] = append(media[contentID], m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return media, nil
}

func scanItem(row pgx.Row) (domain.ContentItem, error) {
	var (
		item      domain.ContentItem
		hashtags  string
		platforms string
		status    string
	)
	err := row.Scan(
		&item.ID,
		&item.UserID,
		&item.Title,
		&item.Body,
		&hashtags,
		&platforms,
		&status,
		&item.ScheduledFor,
		&item.PublishedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return domain.ContentItem{}, err
	}

	item.Hashtags = decodeSet(hashtags)
	item.Platforms = decodePlatforms(platforms)
	item.Status = domain.Status(status)

	return item, nil
}
