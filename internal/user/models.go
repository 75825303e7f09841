package user

import "time"

// User is a registered, active account joined with its auth-related side
// tables. Lookups never return rows with active = false.
type User struct {
	ID           int64
	Email        string
	FullName     string
	PasswordHash string
	Active       bool
	CreatedAt    time.Time

	Admin               bool
	LoginAttempts       int
	TwoFASecret         string // empty when 2FA is not enabled
	TwoFAAlwaysRequired bool
	TwoFABackupCount    int
}

// TwoFAEnabled reports whether the user has a shared secret on file.
func (u *User) TwoFAEnabled() bool { return u.TwoFASecret != "" }

// BackupCode is one hashed single-use recovery code.
type BackupCode struct {
	ID   int64
	Hash string
}

// PasswordReset is a live (unconsumed, under an hour old) reset row.
type PasswordReset struct {
	ID        int64
	UserID    int64
	Secret    string
	CreatedAt time.Time
}

// LoginHistoryEntry is one row of the append-only signin audit.
type LoginHistoryEntry struct {
	ID          int64
	UserID      int64
	Success     bool
	SessionULID string
	CreatedAt   time.Time
}
