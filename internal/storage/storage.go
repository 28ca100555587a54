package storage

import "errors"

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrUsernameTaken = errors.New("username already taken")
	ErrTokenNotFound = errors.New("token not found")
	ErrCacheMiss     = errors.New("cache miss")
)
