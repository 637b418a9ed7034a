package account

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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
		logger: logger.WithComponent("AccountRepo"),
	}
}

var _ Repository = (*Pgx)(nil)

func (p *Pgx) Create(ctx context.Context, account domain.ConnectedAccount) error {
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	query, args, err := repositories.SqBuilder.
		Insert("connected_accounts").
		Columns("id", "user_id", "provider", "access_token", "active", "default_channel_id", "created_at").
		Values(
			account.ID,
			account.UserID,
			string(account.Provider),
			account.AccessToken,
			account.Active,
			account.DefaultChannelID,
			account.CreatedAt,
		).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == repositories.UniqueViolation {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (p *Pgx) FindActive(ctx context.Context, userID string, provider domain.Platform) (*domain.ConnectedAccount, error) {
	query, args, err := repositories.SqBuilder.
		Select("id", "user_id", "provider", "access_token", "active", "default_channel_id", "created_at").
		From("connected_accounts").
		Where(sq.Eq{
			"user_id":  userID,
			"provider": string(provider),
			"active":   true,
		}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	var (
		account      domain.ConnectedAccount
		providerName string
	)
	err = p.pg.QueryRow(ctx, query, args...).Scan(
		&account.ID,
		&account.UserID,
		&providerName,
		&account.AccessToken,
		&account.Active,
		&account.DefaultChannelID,
		&account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	account.Provider = domain.Platform(providerName)

	return &account, nil
}
