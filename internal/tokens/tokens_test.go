package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"account_service/internal/models"
	"account_service/internal/storage"
)

const testTTL = 30 * 24 * time.Hour

func newTestRepo() (*Repository, *memCache, *fakeStore) {
	cache := newMemCache()
	store := newFakeStore()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := &fakeUsers{users: map[int64]models.User{
		1: {ID: 1, Name: "John Doe", Email: "john@example.com"},
	}}

	return New(log, cache, store, users, testTTL), cache, store
}

func TestIssueAndVerify(t *testing.T) {
	repo, _, store := newTestRepo()
	ctx := context.Background()

	user := models.User{ID: 1, Name: "John Doe"}

	plaintext, err := repo.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if plaintext == "" {
		t.Fatal("expected a plaintext token")
	}

	cached, err := repo.Verify(ctx, plaintext)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if cached.UserID != 1 {
		t.Errorf("expected user id 1, got %d", cached.UserID)
	}
	if cached.UserName != "John Doe" {
		t.Errorf("expected user name John Doe, got %q", cached.UserName)
	}

	// Only the hash reaches the durable store.
	if _, ok := store.tokens[plaintext]; ok {
		t.Error("plaintext token must never be stored")
	}
	if _, ok := store.tokens[Hash(plaintext)]; !ok {
		t.Error("durable row keyed by token hash is missing")
	}
}

func TestVerify_UnknownToken(t *testing.T) {
	repo, _, _ := newTestRepo()

	_, err := repo.Verify(context.Background(), "never-issued")
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("expected ErrTokenNotFound, got %v", err)
	}
}

func TestVerify_CacheMissFallsBackToDurableStore(t *testing.T) {
	repo, cache, _ := newTestRepo()
	ctx := context.Background()

	plaintext, err := repo.Issue(ctx, models.User{ID: 1, Name: "John Doe"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	// Simulate cache eviction.
	key := cachePrefix + Hash(plaintext)
	delete(cache.items, key)

	cached, err := repo.Verify(ctx, plaintext)
	if err != nil {
		t.Fatalf("Verify after cache eviction failed: %v", err)
	}
	if cached.UserID != 1 {
		t.Errorf("expected user id 1, got %d", cached.UserID)
	}

	// The live durable row re-primes the cache.
	if _, ok := cache.items[key]; !ok {
		t.Error("cache should be re-primed after a durable hit")
	}
}

func TestVerify_ExpiredDurableTokenIsDeleted(t *testing.T) {
	repo, _, store := newTestRepo()
	ctx := context.Background()

	plaintext := "expired-session-token"
	hash := Hash(plaintext)
	store.tokens[hash] = models.Token{
		UserID:    1,
		TokenHash: hash,
		CreatedAt: time.Now().Add(-2 * testTTL),
		ExpiresAt: time.Now().Add(-testTTL),
	}

	_, err := repo.Verify(ctx, plaintext)
	if !errors.Is(err, storage.ErrTokenNotFound) {
		t.Fatalf("expected ErrTokenNotFound, got %v", err)
	}

	if _, ok := store.tokens[hash]; ok {
		t.Error("expired durable row should have been deleted")
	}
}

func TestUserFromToken(t *testing.T) {
	repo, _, _ := newTestRepo()
	ctx := context.Background()

	plaintext, err := repo.Issue(ctx, models.User{ID: 1, Name: "John Doe"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	user, err := repo.UserFromToken(ctx, plaintext)
	if err != nil {
		t.Fatalf("UserFromToken failed: %v", err)
	}
	if user.Email != "john@example.com" {
		t.Errorf("expected john@example.com, got %q", user.Email)
	}
}

func TestRevoke(t *testing.T) {
	repo, _, _ := newTestRepo()
	ctx := context.Background()

	plaintext, err := repo.Issue(ctx, models.User{ID: 1, Name: "John Doe"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := repo.Revoke(ctx, plaintext); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	if _, err := repo.Verify(ctx, plaintext); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("revoked token should not verify, got %v", err)
	}

	// Revoking again is a no-op.
	if err := repo.Revoke(ctx, plaintext); err != nil {
		t.Errorf("second Revoke should be idempotent, got %v", err)
	}
}

func TestRevokeAllUserTokens(t *testing.T) {
	repo, cache, _ := newTestRepo()
	ctx := context.Background()

	user := models.User{ID: 1, Name: "John Doe"}

	first, err := repo.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	second, err := repo.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := repo.RevokeAllUserTokens(ctx, user.ID); err != nil {
		t.Fatalf("RevokeAllUserTokens failed: %v", err)
	}

	for _, plaintext := range []string{first, second} {
		if _, err := repo.Verify(ctx, plaintext); !errors.Is(err, storage.ErrTokenNotFound) {
			t.Errorf("token should be revoked, got %v", err)
		}
	}

	if members := cache.sets[indexKey(user.ID)]; len(members) != 0 {
		t.Errorf("token index should be empty, has %d members", len(members))
	}
}

func TestRevokeOtherUserTokens(t *testing.T) {
	repo, _, _ := newTestRepo()
	ctx := context.Background()

	user := models.User{ID: 1, Name: "John Doe"}

	current, err := repo.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	other, err := repo.Issue(ctx, user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := repo.RevokeOtherUserTokens(ctx, user.ID, current); err != nil {
		t.Fatalf("RevokeOtherUserTokens failed: %v", err)
	}

	if _, err := repo.Verify(ctx, current); err != nil {
		t.Errorf("current session should survive, got %v", err)
	}
	if _, err := repo.Verify(ctx, other); !errors.Is(err, storage.ErrTokenNotFound) {
		t.Errorf("other session should be revoked, got %v", err)
	}
}

func TestFlushAll(t *testing.T) {
	repo, cache, _ := newTestRepo()
	ctx := context.Background()

	if _, err := repo.Issue(ctx, models.User{ID: 1, Name: "John Doe"}); err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if err := repo.FlushAll(ctx); err != nil {
		t.Fatalf("FlushAll failed: %v", err)
	}

	if len(cache.items) != 0 || len(cache.sets) != 0 {
		t.Error("cache should be empty after FlushAll")
	}
}

// ---- test doubles ----

type memCache struct {
	items map[string][]byte
	sets  map[string]map[string]struct{}
}

func newMemCache() *memCache {
	return &memCache{
		items: make(map[string][]byte),
		sets:  make(map[string]map[string]struct{}),
	}
}

func (c *memCache) Get(ctx context.Context, key string, dest any) error {
	data, ok := c.items[key]
	if !ok {
		return storage.ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (c *memCache) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.items[key] = data
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.items, key)
		delete(c.sets, key)
	}
	return nil
}

func (c *memCache) AddToSet(ctx context.Context, key, member string) error {
	if c.sets[key] == nil {
		c.sets[key] = make(map[string]struct{})
	}
	c.sets[key][member] = struct{}{}
	return nil
}

func (c *memCache) SetMembers(ctx context.Context, key string) ([]string, error) {
	members := make([]string, 0, len(c.sets[key]))
	for member := range c.sets[key] {
		members = append(members, member)
	}
	return members, nil
}

func (c *memCache) RemoveFromSet(ctx context.Context, key, member string) error {
	delete(c.sets[key], member)
	return nil
}

func (c *memCache) FlushAll(ctx context.Context) error {
	c.items = make(map[string][]byte)
	c.sets = make(map[string]map[string]struct{})
	return nil
}

type fakeStore struct {
	tokens map[string]models.Token
}

func newFakeStore() *fakeStore {
	return &fakeStore{tokens: make(map[string]models.Token)}
}

func (s *fakeStore) SaveToken(ctx context.Context, t models.Token) error {
	s.tokens[t.TokenHash] = t
	return nil
}

func (s *fakeStore) TokenByHash(ctx context.Context, tokenHash string) (models.Token, error) {
	t, ok := s.tokens[tokenHash]
	if !ok {
		return models.Token{}, storage.ErrTokenNotFound
	}
	return t, nil
}

func (s *fakeStore) DeleteToken(ctx context.Context, tokenHash string) error {
	delete(s.tokens, tokenHash)
	return nil
}

func (s *fakeStore) DeleteUserTokens(ctx context.Context, userID int64) ([]string, error) {
	var deleted []string
	for hash, t := range s.tokens {
		if t.UserID == userID {
			deleted = append(deleted, hash)
			delete(s.tokens, hash)
		}
	}
	return deleted, nil
}

func (s *fakeStore) DeleteUserTokensExcept(ctx context.Context, userID int64, keepHash string) ([]string, error) {
	var deleted []string
	for hash, t := range s.tokens {
		if t.UserID == userID && hash != keepHash {
			deleted = append(deleted, hash)
			delete(s.tokens, hash)
		}
	}
	return deleted, nil
}

type fakeUsers struct {
	users map[int64]models.User
}

func (f *fakeUsers) UserByID(ctx context.Context, id int64) (models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return models.User{}, storage.ErrUserNotFound
	}
	return u, nil
}
