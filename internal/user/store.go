// Package user is the relational store for accounts and their auth side
// tables: login attempts, login history, password resets, two-factor
// secrets and backup codes, and the IP/user-agent registry.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store issues parameterised statements and transactions against Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const userColumns = `
	ru.id, ru.email, ru.full_name, ru.password_hash, ru.active, ru.created_at,
	(au.user_id IS NOT NULL) AS admin,
	COALESCE(la.login_attempt_number, 0) AS login_attempts,
	COALESCE(tfs.secret, '') AS two_fa_secret,
	COALESCE(tfs.always_required, FALSE) AS two_fa_always_required,
	(SELECT COUNT(*) FROM two_fa_backup tfb WHERE tfb.user_id = ru.id) AS two_fa_backup_count`

const userJoins = `
	FROM registered_user ru
	LEFT JOIN admin_user au ON au.user_id = ru.id
	LEFT JOIN login_attempt la ON la.user_id = ru.id
	LEFT JOIN two_fa_secret tfs ON tfs.user_id = ru.id`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.FullName, &u.PasswordHash, &u.Active, &u.CreatedAt,
		&u.Admin, &u.LoginAttempts, &u.TwoFASecret, &u.TwoFAAlwaysRequired,
		&u.TwoFABackupCount,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}

// GetByEmail resolves an active user by case-folded email. Returns nil
// without error when no active user matches.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+userColumns+userJoins+`
		WHERE ru.active = TRUE AND ru.email = $1`,
		strings.ToLower(email))
	return scanUser(row)
}

// GetByID resolves an active user by id. Returns nil when absent.
func (s *Store) GetByID(ctx context.Context, id int64) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT`+userColumns+userJoins+`
		WHERE ru.active = TRUE AND ru.id = $1`, id)
	return scanUser(row)
}

// All returns every active user, newest first. Admin surface only.
func (s *Store) All(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT`+userColumns+userJoins+`
		WHERE ru.active = TRUE ORDER BY ru.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// Insert creates an active user. Email is stored lower-case.
func (s *Store) Insert(ctx context.Context, email, fullName, passwordHash string, ipID int64) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO registered_user (email, full_name, password_hash, active, ip_id)
		VALUES ($1, $2, $3, TRUE, $4)
		RETURNING id`,
		strings.ToLower(email), fullName, passwordHash, ipID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

// UpdatePassword replaces the stored hash.
func (s *Store) UpdatePassword(ctx context.Context, userID int64, hash string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE registered_user SET password_hash = $2 WHERE id = $1`, userID, hash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

// DomainBanned reports whether the email's domain is in the banned table.
func (s *Store) DomainBanned(ctx context.Context, email string) (bool, error) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false, nil
	}
	domain := strings.ToLower(email[at+1:])

	var banned bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM banned_email_domain WHERE domain = $1)`,
		domain).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("banned domain lookup: %w", err)
	}
	return banned, nil
}

// IPID dedupes the address into the ip_address registry and returns its id.
func (s *Store) IPID(ctx context.Context, ip string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO ip_address (ip) VALUES ($1)
		ON CONFLICT (ip) DO UPDATE SET ip = EXCLUDED.ip
		RETURNING id`, ip).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert ip: %w", err)
	}
	return id, nil
}

// UserAgentID dedupes the user-agent string and returns its id.
func (s *Store) UserAgentID(ctx context.Context, ua string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO user_agent (user_agent_string) VALUES ($1)
		ON CONFLICT (user_agent_string) DO UPDATE SET user_agent_string = EXCLUDED.user_agent_string
		RETURNING id`, ua).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert user agent: %w", err)
	}
	return id, nil
}

// RecordLogin appends a history row and adjusts the attempt counter inside
// one transaction. Success zeroes the counter; failure upsert-increments
// it by one. The history row is written first.
func (s *Store) RecordLogin(ctx context.Context, userID int64, success bool, ipID, uaID int64, sessionULID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin login tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var ulid *string
	if sessionULID != "" {
		ulid = &sessionULID
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO login_history (user_id, success, ip_id, user_agent_id, session_ulid)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, success, ipID, uaID, ulid)
	if err != nil {
		return fmt.Errorf("insert login history: %w", err)
	}

	if success {
		_, err = tx.Exec(ctx, `
			INSERT INTO login_attempt (user_id, login_attempt_number)
			VALUES ($1, 0)
			ON CONFLICT (user_id) DO UPDATE SET login_attempt_number = 0`, userID)
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO login_attempt (user_id, login_attempt_number)
			VALUES ($1, 1)
			ON CONFLICT (user_id) DO UPDATE
			SET login_attempt_number = login_attempt.login_attempt_number + 1`, userID)
	}
	if err != nil {
		return fmt.Errorf("adjust login attempts: %w", err)
	}

	return tx.Commit(ctx)
}

// LoginAttempts reads the current counter; absent rows read as 0.
func (s *Store) LoginAttempts(ctx context.Context, userID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(
			(SELECT login_attempt_number FROM login_attempt WHERE user_id = $1), 0)`,
		userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("read login attempts: %w", err)
	}
	return n, nil
}

// --- password resets -------------------------------------------------------

const liveResetWhere = `consumed = FALSE AND created_at > NOW() - INTERVAL '1 hour'`

// CreateReset inserts a fresh reset row for the user.
func (s *Store) CreateReset(ctx context.Context, userID int64, secret string, ipID, uaID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_reset (user_id, secret, ip_id, user_agent_id)
		VALUES ($1, $2, $3, $4)`,
		userID, secret, ipID, uaID)
	if err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

// LiveResetByUser returns the user's live reset, or nil.
func (s *Store) LiveResetByUser(ctx context.Context, userID int64) (*PasswordReset, error) {
	return s.liveReset(ctx, `user_id = $1`, userID)
}

// LiveResetBySecret returns the live reset carrying the secret, or nil.
func (s *Store) LiveResetBySecret(ctx context.Context, secret string) (*PasswordReset, error) {
	return s.liveReset(ctx, `secret = $1`, secret)
}

func (s *Store) liveReset(ctx context.Context, where string, arg any) (*PasswordReset, error) {
	var pr PasswordReset
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, secret, created_at FROM password_reset
		WHERE `+where+` AND `+liveResetWhere, arg).
		Scan(&pr.ID, &pr.UserID, &pr.Secret, &pr.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("live reset lookup: %w", err)
	}
	return &pr, nil
}

// ConsumeReset marks the reset consumed and sets the new password hash in
// one transaction; the consumption is one-shot.
func (s *Store) ConsumeReset(ctx context.Context, resetID, userID int64, newHash string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE password_reset SET consumed = TRUE
		WHERE id = $1 AND consumed = FALSE`, resetID)
	if err != nil {
		return fmt.Errorf("consume reset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.New("reset already consumed")
	}

	_, err = tx.Exec(ctx,
		`UPDATE registered_user SET password_hash = $2 WHERE id = $1`, userID, newHash)
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}

	return tx.Commit(ctx)
}

// --- two factor ------------------------------------------------------------

// InsertTwoFASecret moves a verified setup secret into durable storage.
func (s *Store) InsertTwoFASecret(ctx context.Context, userID int64, secret string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO two_fa_secret (user_id, secret, always_required)
		VALUES ($1, $2, FALSE)`, userID, secret)
	if err != nil {
		return fmt.Errorf("insert two fa secret: %w", err)
	}
	return nil
}

// DeleteTwoFA removes all backup codes and the secret in one transaction.
func (s *Store) DeleteTwoFA(ctx context.Context, userID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin two fa tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM two_fa_backup WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM two_fa_secret WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete two fa secret: %w", err)
	}

	return tx.Commit(ctx)
}

// SetTwoFAAlwaysRequired transitions the always_required flag.
func (s *Store) SetTwoFAAlwaysRequired(ctx context.Context, userID int64, required bool) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE two_fa_secret SET always_required = $2 WHERE user_id = $1`,
		userID, required)
	if err != nil {
		return fmt.Errorf("set always required: %w", err)
	}
	return nil
}

// ReplaceBackupCodes deletes existing codes and inserts the new hashes
// under one transaction.
func (s *Store) ReplaceBackupCodes(ctx context.Context, userID int64, hashes []string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin backup codes tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM two_fa_backup WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}
	for _, h := range hashes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO two_fa_backup (user_id, code_hash) VALUES ($1, $2)`,
			userID, h); err != nil {
			return fmt.Errorf("insert backup code: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// DeleteAllBackupCodes removes every code for the user.
func (s *Store) DeleteAllBackupCodes(ctx context.Context, userID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM two_fa_backup WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}
	return nil
}

// BackupCodes lists the user's hashed codes.
func (s *Store) BackupCodes(ctx context.Context, userID int64) ([]BackupCode, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, code_hash FROM two_fa_backup WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query backup codes: %w", err)
	}
	defer rows.Close()

	var codes []BackupCode
	for rows.Next() {
		var c BackupCode
		if err := rows.Scan(&c.ID, &c.Hash); err != nil {
			return nil, fmt.Errorf("scan backup code: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// DeleteBackupCode removes one consumed code by row id.
func (s *Store) DeleteBackupCode(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM two_fa_backup WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete backup code: %w", err)
	}
	return nil
}
