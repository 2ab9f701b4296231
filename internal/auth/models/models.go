package models

import "time"

// User is a registered account. Only the bcrypt hash of the password is
// ever stored.
type User struct {
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// LoginResult is returned by the auth service on a successful login.
type LoginResult struct {
	Username string
	Token    string
}
