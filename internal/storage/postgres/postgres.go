package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"account_service/internal/config"
	"account_service/internal/models"
	"account_service/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PostgresRepo struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, cfg *config.Config) (*PostgresRepo, error) {
	const op = "storage.postgres.New"

	dsn := dsn(cfg)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse config: %w", op, err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create pool: %w", op, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: failed to ping database: %w", op, err)
	}

	return &PostgresRepo{pool: pool}, nil
}

func (r *PostgresRepo) SaveUser(ctx context.Context, name, username, email string, passHash []byte) (int64, error) {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users (name, username, email, password_hash)
		VALUES ($1, NULLIF($2, ''), $3, $4)
		RETURNING id;
	`

	var id int64

	err := r.pool.QueryRow(ctx, query, name, username, email, string(passHash)).Scan(&id)
	if err != nil {
		if dupErr := duplicateUserError(err); dupErr != nil {
			return 0, dupErr
		}

		return 0, fmt.Errorf("%s: failed to save user: %w", op, err)
	}

	return id, nil
}

// duplicateUserError maps a unique-constraint violation on the users table to
// the matching sentinel, or returns nil for any other error.
func duplicateUserError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}

	if strings.Contains(pgErr.ConstraintName, "username") {
		return storage.ErrUsernameTaken
	}

	return storage.ErrEmailTaken
}

func (r *PostgresRepo) UserByEmail(ctx context.Context, email string) (models.User, error) {
	query := `
		SELECT id, name, COALESCE(username, ''), email, password_hash, role,
		       email_verified_at, created_at, updated_at
		FROM users
		WHERE email = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *PostgresRepo) UserByID(ctx context.Context, id int64) (models.User, error) {
	query := `
		SELECT id, name, COALESCE(username, ''), email, password_hash, role,
		       email_verified_at, created_at, updated_at
		FROM users
		WHERE id = $1;
	`

	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

func (r *PostgresRepo) scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Username,
		&u.Email,
		&u.PassHash,
		&u.Role,
		&u.EmailVerifiedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, storage.ErrUserNotFound
		}

		return models.User{}, err
	}

	return u, nil
}

func (r *PostgresRepo) SetEmailVerified(ctx context.Context, userID int64, at time.Time) error {
	query := `UPDATE users SET email_verified_at = $1, updated_at = NOW() WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, at, userID)

	return err
}

func (r *PostgresRepo) UpdatePassword(ctx context.Context, userID int64, passHash []byte) error {
	query := `UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`

	_, err := r.pool.Exec(ctx, query, string(passHash), userID)

	return err
}

func (r *PostgresRepo) SaveToken(ctx context.Context, t models.Token) error {
	const query = `
		INSERT INTO tokens (user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := r.pool.Exec(ctx, query, t.UserID, t.TokenHash, t.CreatedAt, t.ExpiresAt)
	return err
}

func (r *PostgresRepo) TokenByHash(ctx context.Context, tokenHash string) (models.Token, error) {
	const query = `
		SELECT id, user_id, token_hash, created_at, expires_at
		FROM tokens
		WHERE token_hash = $1;
	`

	var t models.Token

	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.CreatedAt,
		&t.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Token{}, storage.ErrTokenNotFound
		}

		return models.Token{}, err
	}

	return t, nil
}

func (r *PostgresRepo) DeleteToken(ctx context.Context, tokenHash string) error {
	query := `DELETE FROM tokens WHERE token_hash = $1`

	_, err := r.pool.Exec(ctx, query, tokenHash)

	return err
}

// DeleteUserTokens removes every durable token row for the user and returns
// the deleted hashes so the caller can evict the cache mirrors.
func (r *PostgresRepo) DeleteUserTokens(ctx context.Context, userID int64) ([]string, error) {
	const query = `
		DELETE FROM tokens
		WHERE user_id = $1
		RETURNING token_hash;
	`

	return r.collectHashes(r.pool.Query(ctx, query, userID))
}

// DeleteUserTokensExcept removes the user's token rows except the one with
// keepHash, preserving the session that initiated the change.
func (r *PostgresRepo) DeleteUserTokensExcept(ctx context.Context, userID int64, keepHash string) ([]string, error) {
	const query = `
		DELETE FROM tokens
		WHERE user_id = $1 AND token_hash != $2
		RETURNING token_hash;
	`

	return r.collectHashes(r.pool.Query(ctx, query, userID, keepHash))
}

func (r *PostgresRepo) collectHashes(rows pgx.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hashes []string

	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, err
		}
		hashes = append(hashes, hash)
	}

	return hashes, rows.Err()
}

func (r *PostgresRepo) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	query := `DELETE FROM tokens WHERE expires_at < NOW()`

	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}

	return tag.RowsAffected(), nil
}

func (r *PostgresRepo) Close() {
	r.pool.Close()
}

// * dsn builds the database connection string.
func dsn(cfg *config.Config) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s",
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}
