package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"account_service/internal/config"
	sl "account_service/internal/lib/logger"
	"account_service/internal/models"
	"account_service/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAlreadyVerified    = errors.New("email already verified")
	ErrResendLimit        = errors.New("resend limit exceeded")
	ErrInvalidCode        = errors.New("invalid verification code")
)

const (
	verificationSubject = "Your verification code"
	resetSubject        = "Your password reset code"
)

type UserStore interface {
	SaveUser(ctx context.Context, name, username, email string, passHash []byte) (int64, error)
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
	SetEmailVerified(ctx context.Context, userID int64, at time.Time) error
	UpdatePassword(ctx context.Context, userID int64, passHash []byte) error
}

type TokenRepository interface {
	Issue(ctx context.Context, user models.User) (string, error)
	Revoke(ctx context.Context, plaintext string) error
	RevokeAllUserTokens(ctx context.Context, userID int64) error
	RevokeOtherUserTokens(ctx context.Context, userID int64, currentPlaintext string) error
	UserFromToken(ctx context.Context, plaintext string) (models.User, error)
}

type Verifier interface {
	GenerateAndStoreCode(ctx context.Context, email string) (string, error)
	VerifyCode(ctx context.Context, email, code string) (bool, error)
	CanResendCode(ctx context.Context, email string) (bool, error)
}

type Publisher interface {
	SendMessage(ctx context.Context, msg models.EmailMessage) error
}

// Auth orchestrates registration, credential login, session revocation and
// the email verification flow on top of the stores.
type Auth struct {
	log           *slog.Logger
	users         UserStore
	tokens        TokenRepository
	verifier      Verifier
	resetVerifier Verifier
	msgQueue      Publisher
	policy        string
}

func New(
	log *slog.Logger,
	users UserStore,
	tokens TokenRepository,
	verifier Verifier,
	resetVerifier Verifier,
	msgQueue Publisher,
	policy string,
) *Auth {
	return &Auth{
		log:           log,
		users:         users,
		tokens:        tokens,
		verifier:      verifier,
		resetVerifier: resetVerifier,
		msgQueue:      msgQueue,
		policy:        policy,
	}
}

// Register creates the user row. Under the verify_first policy no token is
// issued and a verification code goes out; under immediate_token the
// returned token logs the user straight in.
func (a *Auth) Register(
	ctx context.Context,
	name, username, email, pass string,
) (models.User, string, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	id, err := a.users.SaveUser(ctx, name, username, email, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrEmailTaken) || errors.Is(err, storage.ErrUsernameTaken) {
			log.Warn("duplicate registration", slog.String("email", email))
			return models.User{}, "", err
		}

		log.Error("failed to save user", sl.Err(err))
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.users.UserByID(ctx, id)
	if err != nil {
		log.Error("failed to load created user", sl.Err(err))
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user registered", slog.Int64("uid", user.ID))

	if a.policy == config.PolicyImmediateToken {
		token, err := a.tokens.Issue(ctx, user)
		if err != nil {
			log.Error("failed to issue token", sl.Err(err))
			return models.User{}, "", fmt.Errorf("%s: %w", op, err)
		}
		return user, token, nil
	}

	// Kick off verification. Delivery failures must not fail registration;
	// the client can always resend.
	if _, err := a.sendCode(ctx, log, a.verifier, email, verificationSubject); err != nil {
		log.Error("failed to send verification code", sl.Err(err))
	}

	return user, "", nil
}

// Login validates credentials and issues a fresh token. Single-session
// policy: every previously issued token for the user is revoked first.
func (a *Auth) Login(ctx context.Context, email, pass string) (models.User, string, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return models.User{}, "", ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(pass)); err != nil {
		log.Info("invalid credentials", sl.Err(err))
		return models.User{}, "", ErrInvalidCredentials
	}

	if a.policy == config.PolicyVerifyFirst && user.EmailVerifiedAt == nil {
		return user, "", ErrEmailNotVerified
	}

	if err := a.tokens.RevokeAllUserTokens(ctx, user.ID); err != nil {
		log.Error("failed to revoke previous tokens", sl.Err(err))
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	token, err := a.tokens.Issue(ctx, user)
	if err != nil {
		log.Error("failed to issue token", sl.Err(err))
		return models.User{}, "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in successfully", slog.Int64("uid", user.ID))

	return user, token, nil
}

// Logout revokes the presented token.
func (a *Auth) Logout(ctx context.Context, plaintext string) error {
	const op = "auth.Logout"

	log := a.log.With(slog.String("op", op))

	if err := a.tokens.Revoke(ctx, plaintext); err != nil {
		log.Error("failed to revoke token", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("logout successful")

	return nil
}

// ChangePassword rehashes and stores the new password, then revokes every
// other session so they must re-login. The caller's own token survives.
func (a *Auth) ChangePassword(ctx context.Context, user models.User, newPass, currentPlaintext string) error {
	const op = "auth.ChangePassword"

	log := a.log.With(slog.String("op", op))

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.users.UpdatePassword(ctx, user.ID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.tokens.RevokeOtherUserTokens(ctx, user.ID, currentPlaintext); err != nil {
		log.Error("failed to revoke other sessions", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password changed", slog.Int64("uid", user.ID))

	return nil
}

// SendVerificationCode generates and queues a code for the email. Fails with
// ErrAlreadyVerified when the account no longer needs one and with
// ErrResendLimit when the resend window is exhausted. The code is returned
// so a non-production configuration may echo it.
func (a *Auth) SendVerificationCode(ctx context.Context, email string) (string, error) {
	const op = "auth.SendVerificationCode"

	log := a.log.With(slog.String("op", op))

	user, err := a.users.UserByEmail(ctx, email)
	if err == nil && user.EmailVerifiedAt != nil {
		return "", ErrAlreadyVerified
	}
	if err != nil && !errors.Is(err, storage.ErrUserNotFound) {
		log.Error("failed to look up user", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	ok, err := a.verifier.CanResendCode(ctx, email)
	if err != nil {
		log.Error("failed to check resend limit", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		log.Warn("resend limit exceeded", slog.String("email", email))
		return "", ErrResendLimit
	}

	return a.sendCode(ctx, log, a.verifier, email, verificationSubject)
}

// SendPasswordResetCode generates and queues a reset code. Unlike email
// verification, the account must exist: an unknown email fails with
// storage.ErrUserNotFound.
func (a *Auth) SendPasswordResetCode(ctx context.Context, email string) (string, error) {
	const op = "auth.SendPasswordResetCode"

	log := a.log.With(slog.String("op", op))

	if _, err := a.users.UserByEmail(ctx, email); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return "", storage.ErrUserNotFound
		}

		log.Error("failed to look up user", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	ok, err := a.resetVerifier.CanResendCode(ctx, email)
	if err != nil {
		log.Error("failed to check resend limit", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		log.Warn("resend limit exceeded", slog.String("email", email))
		return "", ErrResendLimit
	}

	return a.sendCode(ctx, log, a.resetVerifier, email, resetSubject)
}

// ResetPassword validates the reset code, stores the new password and revokes
// every session for the account.
func (a *Auth) ResetPassword(ctx context.Context, email, code, newPass string) error {
	const op = "auth.ResetPassword"

	log := a.log.With(slog.String("op", op))

	ok, err := a.resetVerifier.VerifyCode(ctx, email, code)
	if err != nil {
		log.Error("failed to verify reset code", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return ErrInvalidCode
	}

	user, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return storage.ErrUserNotFound
		}

		log.Error("failed to look up user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	passHash, err := bcrypt.GenerateFromPassword([]byte(newPass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.users.UpdatePassword(ctx, user.ID, passHash); err != nil {
		log.Error("failed to update password", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.tokens.RevokeAllUserTokens(ctx, user.ID); err != nil {
		log.Error("failed to revoke sessions", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("password reset", slog.Int64("uid", user.ID))

	return nil
}

func (a *Auth) sendCode(
	ctx context.Context,
	log *slog.Logger,
	verifier Verifier,
	email, subject string,
) (string, error) {
	code, err := verifier.GenerateAndStoreCode(ctx, email)
	if err != nil {
		return "", err
	}

	log.Info("code generated",
		slog.String("email", email),
		slog.String("code", code),
	)

	msg := models.EmailMessage{
		Email:   email,
		Subject: subject,
		Code:    code,
	}

	if err := a.msgQueue.SendMessage(ctx, msg); err != nil {
		// Mail is delivered out of band; the generated code stays valid and
		// the client can resend.
		log.Error("failed to publish verification message", sl.Err(err))
	}

	return code, nil
}

// ConfirmEmail validates the submitted code and stamps email_verified_at.
func (a *Auth) ConfirmEmail(ctx context.Context, email, code string) error {
	const op = "auth.ConfirmEmail"

	log := a.log.With(slog.String("op", op))

	ok, err := a.verifier.VerifyCode(ctx, email, code)
	if err != nil {
		log.Error("failed to verify code", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return ErrInvalidCode
	}

	user, err := a.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return storage.ErrUserNotFound
		}

		log.Error("failed to look up user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.users.SetEmailVerified(ctx, user.ID, time.Now()); err != nil {
		log.Error("failed to mark email verified", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email verified", slog.Int64("uid", user.ID))

	return nil
}

// UserFromToken resolves the request-time identity for the token guard.
func (a *Auth) UserFromToken(ctx context.Context, plaintext string) (models.User, error) {
	return a.tokens.UserFromToken(ctx, plaintext)
}
