package models

import "time"

type User struct {
	ID              int64
	Name            string
	Username        string
	Email           string
	PassHash        []byte
	Role            string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Token is the durable session record. Only the sha256 hex of the plaintext
// token is ever stored.
type Token struct {
	ID        int64
	UserID    int64
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CachedToken is the ephemeral cache mirror of a Token, keyed by
// "token:" + sha256(plaintext).
type CachedToken struct {
	UserID    int64     `json:"user_id"`
	UserName  string    `json:"user_name"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t CachedToken) IsExpired() bool {
	return t.ExpiresAt.Before(time.Now())
}

type AbilityRule struct {
	Action  string `json:"action"`
	Subject string `json:"subject"`
}

func DefaultAbilityRules() []AbilityRule {
	return []AbilityRule{{Action: "manage", Subject: "all"}}
}

// UserData is the user payload shape the SPA consumes.
type UserData struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Username        *string    `json:"username"`
	Email           string     `json:"email"`
	EmailVerifiedAt *time.Time `json:"email_verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func NewUserData(u User) UserData {
	var username *string
	if u.Username != "" {
		username = &u.Username
	}

	return UserData{
		ID:              u.ID,
		Name:            u.Name,
		Username:        username,
		Email:           u.Email,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
		UpdatedAt:       u.UpdatedAt,
	}
}

// EmailMessage is the payload published to the mail queue.
type EmailMessage struct {
	Email   string `json:"to"`
	Subject string `json:"subject"`
	Code    string `json:"code"`
}
