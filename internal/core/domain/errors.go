package domain

import "errors"

// Client side.
var (
	ErrNoRefreshToken = errors.New("no refresh token found")
	ErrEmptyToken     = errors.New("server returned an empty access token")
)

// Reference API side.
var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUserNotFound        = errors.New("user not found")
	ErrUserExists          = errors.New("user already exists")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	ErrForbidden           = errors.New("access forbidden")
)
