package tokens

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sl "account_service/internal/lib/logger"
	"account_service/internal/lib/random"
	"account_service/internal/models"
	"account_service/internal/storage"
)

const (
	cachePrefix = "token:"
	indexPrefix = "user_tokens:"
)

type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	AddToSet(ctx context.Context, key, member string) error
	SetMembers(ctx context.Context, key string) ([]string, error)
	RemoveFromSet(ctx context.Context, key, member string) error
	FlushAll(ctx context.Context) error
}

type TokenStore interface {
	SaveToken(ctx context.Context, t models.Token) error
	TokenByHash(ctx context.Context, tokenHash string) (models.Token, error)
	DeleteToken(ctx context.Context, tokenHash string) error
	DeleteUserTokens(ctx context.Context, userID int64) ([]string, error)
	DeleteUserTokensExcept(ctx context.Context, userID int64, keepHash string) ([]string, error)
}

type UserProvider interface {
	UserByID(ctx context.Context, id int64) (models.User, error)
}

// Repository issues and validates opaque bearer tokens. The durable store is
// the source of truth; the cache is a lookup accelerator keyed by
// sha256(plaintext) and re-primed on miss. A per-user set of token hashes
// makes bulk revocation possible without scanning.
type Repository struct {
	log   *slog.Logger
	cache Cache
	store TokenStore
	users UserProvider
	ttl   time.Duration
}

func New(
	log *slog.Logger,
	cache Cache,
	store TokenStore,
	users UserProvider,
	ttl time.Duration,
) *Repository {
	return &Repository{
		log:   log,
		cache: cache,
		store: store,
		users: users,
		ttl:   ttl,
	}
}

// Hash returns the sha256 hex of a plaintext token, the only form in which
// tokens are ever stored.
func Hash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Issue creates a new token for the user: durable row, cache mirror and
// index entry. The plaintext is returned to the caller and never stored.
func (r *Repository) Issue(ctx context.Context, user models.User) (string, error) {
	const op = "tokens.Issue"

	plaintext, err := random.Token()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	hash := Hash(plaintext)
	now := time.Now()
	expiresAt := now.Add(r.ttl)

	err = r.store.SaveToken(ctx, models.Token{
		UserID:    user.ID,
		TokenHash: hash,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	cached := models.CachedToken{
		UserID:    user.ID,
		UserName:  user.Name,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	if err := r.cache.Put(ctx, cachePrefix+hash, cached, r.ttl); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	if err := r.cache.AddToSet(ctx, indexKey(user.ID), hash); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return plaintext, nil
}

// Verify resolves a plaintext token to its cached association. On a cache
// miss the durable store is consulted and a live row re-primes the cache
// with its remaining TTL, so cache eviction does not log the user out.
func (r *Repository) Verify(ctx context.Context, plaintext string) (models.CachedToken, error) {
	const op = "tokens.Verify"

	hash := Hash(plaintext)

	var cached models.CachedToken

	err := r.cache.Get(ctx, cachePrefix+hash, &cached)
	if err == nil {
		if cached.IsExpired() {
			r.evict(ctx, cached.UserID, hash)
			return models.CachedToken{}, storage.ErrTokenNotFound
		}
		return cached, nil
	}
	if !errors.Is(err, storage.ErrCacheMiss) {
		return models.CachedToken{}, fmt.Errorf("%s: %w", op, err)
	}

	token, err := r.store.TokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			return models.CachedToken{}, storage.ErrTokenNotFound
		}
		return models.CachedToken{}, fmt.Errorf("%s: %w", op, err)
	}

	if token.ExpiresAt.Before(time.Now()) {
		if err := r.store.DeleteToken(ctx, hash); err != nil {
			r.log.Error("failed to delete expired token", sl.Err(err))
		}
		return models.CachedToken{}, storage.ErrTokenNotFound
	}

	user, err := r.users.UserByID(ctx, token.UserID)
	if err != nil {
		return models.CachedToken{}, fmt.Errorf("%s: %w", op, err)
	}

	cached = models.CachedToken{
		UserID:    user.ID,
		UserName:  user.Name,
		CreatedAt: token.CreatedAt,
		ExpiresAt: token.ExpiresAt,
	}

	remaining := time.Until(token.ExpiresAt)
	if err := r.cache.Put(ctx, cachePrefix+hash, cached, remaining); err != nil {
		r.log.Error("failed to re-prime token cache", sl.Err(err))
	}
	if err := r.cache.AddToSet(ctx, indexKey(user.ID), hash); err != nil {
		r.log.Error("failed to re-prime token index", sl.Err(err))
	}

	return cached, nil
}

// UserFromToken composes Verify with a user lookup.
func (r *Repository) UserFromToken(ctx context.Context, plaintext string) (models.User, error) {
	const op = "tokens.UserFromToken"

	cached, err := r.Verify(ctx, plaintext)
	if err != nil {
		return models.User{}, err
	}

	user, err := r.users.UserByID(ctx, cached.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, storage.ErrTokenNotFound
		}
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// Revoke deletes the token from cache, index and durable store. Revoking an
// unknown token is a no-op.
func (r *Repository) Revoke(ctx context.Context, plaintext string) error {
	const op = "tokens.Revoke"

	hash := Hash(plaintext)

	var cached models.CachedToken
	if err := r.cache.Get(ctx, cachePrefix+hash, &cached); err == nil {
		r.evict(ctx, cached.UserID, hash)
	} else if !errors.Is(err, storage.ErrCacheMiss) {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := r.store.DeleteToken(ctx, hash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeAllUserTokens deletes every token the user holds, in cache and in
// the durable store.
func (r *Repository) RevokeAllUserTokens(ctx context.Context, userID int64) error {
	const op = "tokens.RevokeAllUserTokens"

	hashes, err := r.cache.SetMembers(ctx, indexKey(userID))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	deleted, err := r.store.DeleteUserTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	keys := make([]string, 0, len(hashes)+len(deleted)+1)
	for _, hash := range hashes {
		keys = append(keys, cachePrefix+hash)
	}
	for _, hash := range deleted {
		keys = append(keys, cachePrefix+hash)
	}
	keys = append(keys, indexKey(userID))

	if err := r.cache.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RevokeOtherUserTokens deletes every token the user holds except the one
// backing currentPlaintext, keeping the caller's session alive.
func (r *Repository) RevokeOtherUserTokens(ctx context.Context, userID int64, currentPlaintext string) error {
	const op = "tokens.RevokeOtherUserTokens"

	keep := Hash(currentPlaintext)

	deleted, err := r.store.DeleteUserTokensExcept(ctx, userID, keep)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	indexed, err := r.cache.SetMembers(ctx, indexKey(userID))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	stale := make(map[string]struct{}, len(deleted)+len(indexed))
	for _, hash := range deleted {
		stale[hash] = struct{}{}
	}
	for _, hash := range indexed {
		if hash != keep {
			stale[hash] = struct{}{}
		}
	}

	for hash := range stale {
		if err := r.cache.Delete(ctx, cachePrefix+hash); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := r.cache.RemoveFromSet(ctx, indexKey(userID), hash); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	return nil
}

// FlushAll clears the entire cache store. Dangerous; maintenance only.
func (r *Repository) FlushAll(ctx context.Context) error {
	const op = "tokens.FlushAll"

	if err := r.cache.FlushAll(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (r *Repository) evict(ctx context.Context, userID int64, hash string) {
	if err := r.cache.Delete(ctx, cachePrefix+hash); err != nil {
		r.log.Error("failed to evict token", sl.Err(err))
	}
	if err := r.cache.RemoveFromSet(ctx, indexKey(userID), hash); err != nil {
		r.log.Error("failed to update token index", sl.Err(err))
	}
}

func indexKey(userID int64) string {
	return fmt.Sprintf("%s%d", indexPrefix, userID)
}
