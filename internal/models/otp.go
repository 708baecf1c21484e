package models

import "time"

// OtpChallenge tracks the in-progress one-time-code cycle for a phone number.
// There is exactly one live challenge per phone; registration and password
// reset overwrite the same record. UpdatedAt doubles as the daily-counter
// window anchor and the 30-minute expiry anchor.
type OtpChallenge struct {
	ID            string    `db:"challenge_id"`
	Phone         string    `db:"phone"`
	OTPHash       string    `db:"otp_hash"`
	RememberToken string    `db:"remember_token"`
	VerifyToken   string    `db:"verify_token"`
	RequestCount  int       `db:"request_count"`
	ErrorCount    int       `db:"error_count"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}
