package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"account_service/internal/lib/random"
	"account_service/internal/storage"
)

const (
	codePrefix = "email_verification:"
	ratePrefix = "email_verification_rate:"

	resetCodePrefix = "password_reset:"
	resetRatePrefix = "password_reset_rate:"
)

type Cache interface {
	Get(ctx context.Context, key string, dest any) error
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Has(ctx context.Context, key string) (bool, error)
	Counter(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type codeEntry struct {
	Code      string    `json:"code"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// Handler owns the verification-code lifecycle for an email address,
// independent of whether a user row exists. Codes expire by TTL, allow at
// most MaxAttempts tries, and resends are capped per sliding window.
type Handler struct {
	log          *slog.Logger
	cache        Cache
	codeKey      string
	rateKey      string
	codeTTL      time.Duration
	maxAttempts  int
	resendLimit  int64
	resendWindow time.Duration
}

// New builds the handler for the email verification flow.
func New(
	log *slog.Logger,
	cache Cache,
	codeTTL time.Duration,
	maxAttempts int,
	resendLimit int64,
	resendWindow time.Duration,
) *Handler {
	return newHandler(log, cache, codePrefix, ratePrefix,
		codeTTL, maxAttempts, resendLimit, resendWindow)
}

// NewPasswordReset builds a handler with the same code lifecycle under the
// password-reset key namespace, so reset codes and verification codes for the
// same email never collide.
func NewPasswordReset(
	log *slog.Logger,
	cache Cache,
	codeTTL time.Duration,
	maxAttempts int,
	resendLimit int64,
	resendWindow time.Duration,
) *Handler {
	return newHandler(log, cache, resetCodePrefix, resetRatePrefix,
		codeTTL, maxAttempts, resendLimit, resendWindow)
}

func newHandler(
	log *slog.Logger,
	cache Cache,
	codeKey, rateKey string,
	codeTTL time.Duration,
	maxAttempts int,
	resendLimit int64,
	resendWindow time.Duration,
) *Handler {
	return &Handler{
		log:          log,
		cache:        cache,
		codeKey:      codeKey,
		rateKey:      rateKey,
		codeTTL:      codeTTL,
		maxAttempts:  maxAttempts,
		resendLimit:  resendLimit,
		resendWindow: resendWindow,
	}
}

// GenerateAndStoreCode creates a fresh 6-character code for the email,
// overwriting any previous entry and resetting its attempts. Delivery is the
// caller's concern.
func (h *Handler) GenerateAndStoreCode(ctx context.Context, email string) (string, error) {
	const op = "verification.GenerateAndStoreCode"

	code, err := random.Code()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	entry := codeEntry{
		Code:      code,
		Attempts:  0,
		CreatedAt: time.Now(),
	}

	if err := h.cache.Put(ctx, h.codeKey+email, entry, h.codeTTL); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return code, nil
}

// VerifyCode checks a submitted code. An attempt is consumed before the
// match check, so the limit is "maxAttempts tries consumed", not
// "maxAttempts failures": a 5th try that matches still succeeds. Once the
// entry has consumed all attempts it is deleted and a new code is required.
func (h *Handler) VerifyCode(ctx context.Context, email, code string) (bool, error) {
	const op = "verification.VerifyCode"

	key := h.codeKey + email

	var entry codeEntry

	err := h.cache.Get(ctx, key, &entry)
	if err != nil {
		if errors.Is(err, storage.ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if entry.Attempts >= h.maxAttempts {
		if err := h.cache.Delete(ctx, key); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return false, nil
	}

	entry.Attempts++

	if entry.Code != code {
		// Persist the consumed attempt; the TTL window restarts with it.
		if err := h.cache.Put(ctx, key, entry, h.codeTTL); err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return false, nil
	}

	if err := h.cache.Delete(ctx, key); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// HasValidCode reports whether an unexpired code exists for the email.
func (h *Handler) HasValidCode(ctx context.Context, email string) (bool, error) {
	const op = "verification.HasValidCode"

	ok, err := h.cache.Has(ctx, h.codeKey+email)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return ok, nil
}

// CanResendCode enforces the resend cap. Each allowed resend bumps the
// counter and slides its window forward.
func (h *Handler) CanResendCode(ctx context.Context, email string) (bool, error) {
	const op = "verification.CanResendCode"

	key := h.rateKey + email

	count, err := h.cache.Counter(ctx, key)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if count >= h.resendLimit {
		return false, nil
	}

	if _, err := h.cache.Increment(ctx, key, h.resendWindow); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// Cleanup drops both the code entry and the resend counter for the email.
// Administrative reset; not part of the request flow.
func (h *Handler) Cleanup(ctx context.Context, email string) error {
	const op = "verification.Cleanup"

	if err := h.cache.Delete(ctx, h.codeKey+email, h.rateKey+email); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
