package models

import "time"

type UserStatus string

const (
	UserStatusActive UserStatus = "ACTIVE"
	UserStatusFreeze UserStatus = "FREEZE"
)

// User is the account record. RefreshToken holds the single currently valid
// refresh token; writing a new value is the revocation mechanism.
type User struct {
	ID              string     `db:"user_id"`
	Phone           string     `db:"phone"`
	PasswordHash    string     `db:"password_hash"`
	Status          UserStatus `db:"status"`
	ErrorLoginCount int        `db:"error_login_count"`
	RefreshToken    string     `db:"refresh_token"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}
