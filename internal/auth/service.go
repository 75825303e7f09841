package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mealpedant/api/internal/apperror"
	"github.com/mealpedant/api/internal/kv"
	"github.com/mealpedant/api/internal/mailer"
	"github.com/mealpedant/api/internal/session"
	"github.com/mealpedant/api/internal/user"
)

const (
	// lockoutThreshold is the attempt count at which an account soft-locks.
	lockoutThreshold = 19

	pendingTTL  = time.Hour
	setupTTL    = 120 * time.Second
	backupCount = 10
	secretHex   = 128
)

// ReqMeta carries the caller's network identity into the audit tables.
type ReqMeta struct {
	IP        string
	UserAgent string
}

// Service orchestrates registration, signin, password reset and the 2FA
// lifecycle. It is agnostic of HTTP transport.
type Service struct {
	users    *user.Store
	sessions *session.Store
	kv       *kv.Client
	mail     mailer.Enqueuer
	hasher   *Hasher
	hibp     *HIBPClient
	invite   string
	domain   string
}

func NewService(
	users *user.Store,
	sessions *session.Store,
	kvc *kv.Client,
	mail mailer.Enqueuer,
	hasher *Hasher,
	hibp *HIBPClient,
	invite string,
	domain string,
) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		kv:       kvc,
		mail:     mail,
		hasher:   hasher,
		hibp:     hibp,
		invite:   invite,
		domain:   domain,
	}
}

// pendingRegistration is the KV payload held until email verification.
type pendingRegistration struct {
	Email        string `json:"email"`
	FullName     string `json:"full_name"`
	PasswordHash string `json:"password_hash"`
	IPID         int64  `json:"ip_id"`
	UserAgentID  int64  `json:"user_agent_id"`
}

// Register starts a pending registration. Known, pending and banned
// addresses are indistinguishable from success; only bad invites, banned
// domains and breached passwords surface as a 400.
// Calling twice for the same email within the verification window reuses
// the original secret and sends no second email.
func (s *Service) Register(ctx context.Context, meta ReqMeta, fullName, email, password, invite string) error {
	if !SecureCompare(invite, s.invite) {
		return apperror.InvalidValue("invite invalid")
	}
	email = strings.ToLower(strings.TrimSpace(email))

	banned, err := s.users.DomainBanned(ctx, email)
	if err != nil {
		return apperror.Database(err)
	}
	if banned {
		return apperror.InvalidValue("invalid email domain")
	}

	pwned, err := s.hibp.Pwned(ctx, password)
	if err != nil {
		return apperror.Internal(err)
	}
	if pwned {
		return apperror.InvalidValue("unsafe password")
	}

	pending, err := s.kv.Exists(ctx, kv.VerifyEmailKey(email))
	if err != nil {
		return apperror.Internal(err)
	}
	if pending {
		return nil
	}
	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return apperror.Database(err)
	}
	if existing != nil {
		return nil
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return apperror.Internal(err)
	}
	secret, err := GenHex(secretHex)
	if err != nil {
		return apperror.Internal(err)
	}
	ipID, uaID, err := s.registerMeta(ctx, meta)
	if err != nil {
		return err
	}

	reg := pendingRegistration{
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		IPID:         ipID,
		UserAgentID:  uaID,
	}
	if err := s.kv.SetJSON(ctx, kv.VerifyEmailKey(email), secret, pendingTTL); err != nil {
		return apperror.Internal(err)
	}
	if err := s.kv.SetJSON(ctx, kv.VerifySecretKey(secret), reg, pendingTTL); err != nil {
		return apperror.Internal(err)
	}

	s.mail.Enqueue(mailer.Email{
		To:       email,
		Name:     fullName,
		Template: mailer.TemplateVerify,
		Link:     fmt.Sprintf("https://%s/verify/%s", s.domain, secret),
	})
	return nil
}

// Verify promotes a pending registration into an active user and removes
// both KV keys.
func (s *Service) Verify(ctx context.Context, secret string) error {
	if !IsHexOfLen(secret, secretHex) {
		return apperror.InvalidValue("Incorrect verification data")
	}

	var reg pendingRegistration
	ok, err := s.kv.GetJSON(ctx, kv.VerifySecretKey(secret), &reg)
	if err != nil {
		return apperror.Internal(err)
	}
	if !ok {
		return apperror.InvalidValue("Incorrect verification data")
	}

	if _, err := s.users.Insert(ctx, reg.Email, reg.FullName, reg.PasswordHash, reg.IPID); err != nil {
		return apperror.Database(err)
	}
	if err := s.kv.Del(ctx, kv.VerifySecretKey(secret), kv.VerifyEmailKey(reg.Email)); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// SigninResult is either a completed session or a demand for the second
// factor (202 at the boundary).
type SigninResult struct {
	TwoFARequired bool
	TwoFABackup   bool

	SessionULID string
	TTL         time.Duration
}

// Signin runs the credential state machine. Every failure surfaces as the
// one generic Authorization error; the history row is written strictly
// before the attempt counter is adjusted, and the session exists before
// the caller is handed the ULID for the cookie.
func (s *Service) Signin(ctx context.Context, meta ReqMeta, email, password, token string, remember bool, currentSessionULID string) (*SigninResult, error) {
	// A caller presenting a live cookie gets that session revoked first.
	if currentSessionULID != "" {
		if err := s.sessions.Delete(ctx, currentSessionULID); err != nil {
			return nil, apperror.Internal(err)
		}
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperror.Database(err)
	}
	if u == nil {
		// Unknown address: no history, no counter.
		return nil, apperror.Authorization()
	}

	ipID, uaID, err := s.registerMeta(ctx, meta)
	if err != nil {
		return nil, err
	}

	if u.LoginAttempts == lockoutThreshold {
		s.mail.Enqueue(mailer.Email{
			To:       u.Email,
			Name:     u.FullName,
			Template: mailer.TemplateAccountLocked,
		})
	}
	if u.LoginAttempts >= lockoutThreshold {
		if err := s.users.RecordLogin(ctx, u.ID, false, ipID, uaID, ""); err != nil {
			return nil, apperror.Database(err)
		}
		return nil, apperror.Authorization()
	}

	validPassword, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if !validPassword {
		if err := s.users.RecordLogin(ctx, u.ID, false, ipID, uaID, ""); err != nil {
			return nil, apperror.Database(err)
		}
		return nil, apperror.Authorization()
	}

	if u.TwoFAEnabled() {
		if token == "" {
			// Valid password, token still owed: counts as a failure.
			if err := s.users.RecordLogin(ctx, u.ID, false, ipID, uaID, ""); err != nil {
				return nil, apperror.Database(err)
			}
			return &SigninResult{
				TwoFARequired: true,
				TwoFABackup:   u.TwoFABackupCount > 0,
			}, nil
		}

		ok, err := s.AuthenticateToken(ctx, u, token)
		if err != nil {
			return nil, err
		}
		if !ok {
			if err := s.users.RecordLogin(ctx, u.ID, false, ipID, uaID, ""); err != nil {
				return nil, apperror.Database(err)
			}
			return nil, apperror.Authorization()
		}
	}

	sessionULID := ulid.Make().String()
	if err := s.users.RecordLogin(ctx, u.ID, true, ipID, uaID, sessionULID); err != nil {
		return nil, apperror.Database(err)
	}

	ttl := session.DefaultTTL
	if remember {
		ttl = session.RememberTTL
	}
	if err := s.sessions.Create(ctx, u.ID, u.Email, ttl, sessionULID); err != nil {
		return nil, apperror.Internal(err)
	}

	return &SigninResult{SessionULID: sessionULID, TTL: ttl}, nil
}

// Signout revokes the caller's session.
func (s *Service) Signout(ctx context.Context, sessionULID string) error {
	if err := s.sessions.Delete(ctx, sessionULID); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// AuthenticateToken dispatches on the token kind: a TOTP is checked
// against the current 30-second window, a backup code is matched against
// the stored hashes and deleted on first use.
func (s *Service) AuthenticateToken(ctx context.Context, u *user.User, raw string) (bool, error) {
	token, ok := ParseToken(raw)
	if !ok {
		return false, nil
	}

	switch token.Kind() {
	case TokenTotp:
		valid, err := VerifyTOTP(token.String(), u.TwoFASecret)
		if err != nil {
			return false, apperror.Internal(err)
		}
		return valid, nil

	case TokenBackup:
		codes, err := s.users.BackupCodes(ctx, u.ID)
		if err != nil {
			return false, apperror.Database(err)
		}
		for _, code := range codes {
			match, err := s.hasher.Verify(token.String(), code.Hash)
			if err != nil {
				return false, apperror.Internal(err)
			}
			if match {
				if err := s.users.DeleteBackupCode(ctx, code.ID); err != nil {
					return false, apperror.Database(err)
				}
				return true, nil
			}
		}
		return false, nil
	}
	return false, nil
}

// checkPasswordAndToken gates privileged actions: the password is always
// required; a token is required when 2FA is flagged always-required, and
// validated whenever supplied.
func (s *Service) checkPasswordAndToken(ctx context.Context, u *user.User, password, token string) error {
	valid, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return apperror.Internal(err)
	}
	if !valid {
		return apperror.Authorization()
	}

	if u.TwoFAEnabled() {
		if token == "" {
			if u.TwoFAAlwaysRequired {
				return apperror.Authorization()
			}
			return nil
		}
		ok, err := s.AuthenticateToken(ctx, u, token)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Authorization()
		}
	}
	return nil
}

// --- password reset --------------------------------------------------------

// ResetRequest creates a live reset only when the address resolves to a
// user that has none; the response is generic either way, making the call
// idempotent within the one-hour window.
func (s *Service) ResetRequest(ctx context.Context, meta ReqMeta, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return apperror.Database(err)
	}
	if u == nil {
		return nil
	}
	live, err := s.users.LiveResetByUser(ctx, u.ID)
	if err != nil {
		return apperror.Database(err)
	}
	if live != nil {
		return nil
	}

	secret, err := GenHex(secretHex)
	if err != nil {
		return apperror.Internal(err)
	}
	ipID, uaID, err := s.registerMeta(ctx, meta)
	if err != nil {
		return err
	}
	if err := s.users.CreateReset(ctx, u.ID, secret, ipID, uaID); err != nil {
		return apperror.Database(err)
	}

	s.mail.Enqueue(mailer.Email{
		To:       u.Email,
		Name:     u.FullName,
		Template: mailer.TemplateReset,
		Link:     fmt.Sprintf("https://%s/reset/%s", s.domain, secret),
	})
	return nil
}

// ResetInspect reports the second-factor requirements of the reset without
// disclosing whose it is.
func (s *Service) ResetInspect(ctx context.Context, secret string) (twoFAActive, twoFABackup bool, err error) {
	if !IsHexOfLen(secret, secretHex) {
		return false, false, apperror.InvalidValue("Incorrect verification data")
	}
	live, err := s.users.LiveResetBySecret(ctx, secret)
	if err != nil {
		return false, false, apperror.Database(err)
	}
	if live == nil {
		return false, false, apperror.InvalidValue("Incorrect verification data")
	}
	u, err := s.users.GetByID(ctx, live.UserID)
	if err != nil {
		return false, false, apperror.Database(err)
	}
	if u == nil {
		return false, false, apperror.InvalidValue("Incorrect verification data")
	}
	return u.TwoFAEnabled(), u.TwoFABackupCount > 0, nil
}

// ResetConsume finishes a reset: one-shot, honouring the user's second
// factor, and rejecting breached or email-containing passwords.
func (s *Service) ResetConsume(ctx context.Context, secret, password, token string) error {
	if !IsHexOfLen(secret, secretHex) {
		return apperror.InvalidValue("Incorrect verification data")
	}
	live, err := s.users.LiveResetBySecret(ctx, secret)
	if err != nil {
		return apperror.Database(err)
	}
	if live == nil {
		return apperror.InvalidValue("Incorrect verification data")
	}
	u, err := s.users.GetByID(ctx, live.UserID)
	if err != nil {
		return apperror.Database(err)
	}
	if u == nil {
		return apperror.InvalidValue("Incorrect verification data")
	}

	if u.TwoFAEnabled() {
		ok, err := s.AuthenticateToken(ctx, u, token)
		if err != nil {
			return err
		}
		if !ok {
			return apperror.Authorization()
		}
	}

	if err := s.vetNewPassword(ctx, u, password, ""); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return apperror.Internal(err)
	}
	if err := s.users.ConsumeReset(ctx, live.ID, u.ID, hash); err != nil {
		return apperror.Database(err)
	}

	s.mail.Enqueue(mailer.Email{
		To:       u.Email,
		Name:     u.FullName,
		Template: mailer.TemplatePasswordChanged,
	})
	return nil
}

// ChangePassword swaps the password for an authenticated user. Existing
// sessions stay valid.
func (s *Service) ChangePassword(ctx context.Context, u *user.User, currentPassword, token, newPassword string) error {
	if err := s.checkPasswordAndToken(ctx, u, currentPassword, token); err != nil {
		return err
	}
	if err := s.vetNewPassword(ctx, u, newPassword, currentPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperror.Internal(err)
	}
	if err := s.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		return apperror.Database(err)
	}

	s.mail.Enqueue(mailer.Email{
		To:       u.Email,
		Name:     u.FullName,
		Template: mailer.TemplatePasswordChanged,
	})
	return nil
}

// vetNewPassword applies the shared password policy. currentPassword is
// empty for resets, where there is nothing to compare against.
func (s *Service) vetNewPassword(ctx context.Context, u *user.User, candidate, currentPassword string) error {
	lower := strings.ToLower(candidate)
	if strings.Contains(lower, strings.ToLower(u.Email)) {
		return apperror.InvalidValue("password contains email address")
	}
	if currentPassword != "" && strings.Contains(candidate, currentPassword) {
		return apperror.InvalidValue("password unchanged")
	}
	pwned, err := s.hibp.Pwned(ctx, candidate)
	if err != nil {
		return apperror.Internal(err)
	}
	if pwned {
		return apperror.InvalidValue("unsafe password")
	}
	return nil
}

// --- two factor lifecycle --------------------------------------------------

// TwoFASetup holds the pending secret in its client-facing forms.
type TwoFASetup struct {
	Secret  string `json:"secret"`
	OtpAuth string `json:"otpauth"`
}

// SetupTwoFAStart creates a 120-second pending secret for the user and
// returns the authenticator-app form.
func (s *Service) SetupTwoFAStart(ctx context.Context, u *user.User) (*TwoFASetup, error) {
	if u.TwoFAEnabled() {
		return nil, apperror.Conflict("two factor authentication already enabled")
	}
	key := kv.TwoFASetupKey(u.ID)
	exists, err := s.kv.Exists(ctx, key)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if exists {
		return nil, apperror.Conflict("two factor authentication setup already in progress")
	}

	secret, err := GenerateTOTPSecret()
	if err != nil {
		return nil, apperror.Internal(err)
	}
	if err := s.kv.SetJSON(ctx, key, secret, setupTTL); err != nil {
		return nil, apperror.Internal(err)
	}

	b32, err := TOTPBase32(secret)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &TwoFASetup{
		Secret: b32,
		OtpAuth: fmt.Sprintf(
			"otpauth://totp/Meal%%20Pedant:%s?secret=%s&issuer=Meal%%20Pedant&algorithm=SHA1&digits=6&period=30",
			u.Email, b32),
	}, nil
}

// SetupTwoFAConfirm verifies the first token and moves the secret into
// durable storage.
func (s *Service) SetupTwoFAConfirm(ctx context.Context, u *user.User, token string) error {
	key := kv.TwoFASetupKey(u.ID)
	var secret string
	ok, err := s.kv.GetJSON(ctx, key, &secret)
	if err != nil {
		return apperror.Internal(err)
	}
	if !ok {
		return apperror.InvalidValue("no two factor setup in progress")
	}

	valid, err := VerifyTOTP(strings.ReplaceAll(token, " ", ""), secret)
	if err != nil {
		return apperror.Internal(err)
	}
	if !valid {
		return apperror.Authorization()
	}

	if err := s.users.InsertTwoFASecret(ctx, u.ID, secret); err != nil {
		return apperror.Database(err)
	}
	if err := s.kv.Del(ctx, key); err != nil {
		return apperror.Internal(err)
	}

	s.mail.Enqueue(mailer.Email{
		To:       u.Email,
		Name:     u.FullName,
		Template: mailer.TemplateTwoFAEnabled,
	})
	return nil
}

// SetupTwoFACancel drops a pending setup secret.
func (s *Service) SetupTwoFACancel(ctx context.Context, u *user.User) error {
	if err := s.kv.Del(ctx, kv.TwoFASetupKey(u.ID)); err != nil {
		return apperror.Internal(err)
	}
	return nil
}

// SetTwoFAAlwaysRequired transitions the flag. Turning it on needs only
// the flag; turning it off is a privileged action requiring password and
// token.
func (s *Service) SetTwoFAAlwaysRequired(ctx context.Context, u *user.User, required bool, password, token string) error {
	if !u.TwoFAEnabled() {
		return apperror.Conflict("two factor authentication not enabled")
	}
	if !required {
		if err := s.checkPasswordAndToken(ctx, u, password, token); err != nil {
			return err
		}
	}
	if err := s.users.SetTwoFAAlwaysRequired(ctx, u.ID, required); err != nil {
		return apperror.Database(err)
	}
	return nil
}

// DisableTwoFA removes the secret and every backup code atomically.
func (s *Service) DisableTwoFA(ctx context.Context, u *user.User, password, token string) error {
	if !u.TwoFAEnabled() {
		return apperror.Conflict("two factor authentication not enabled")
	}
	valid, err := s.hasher.Verify(password, u.PasswordHash)
	if err != nil {
		return apperror.Internal(err)
	}
	if !valid {
		return apperror.Authorization()
	}
	ok, err := s.AuthenticateToken(ctx, u, token)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.Authorization()
	}

	if err := s.users.DeleteTwoFA(ctx, u.ID); err != nil {
		return apperror.Database(err)
	}

	s.mail.Enqueue(mailer.Email{
		To:       u.Email,
		Name:     u.FullName,
		Template: mailer.TemplateTwoFADisabled,
	})
	return nil
}

// GenerateBackupCodes issues the initial ten codes; only valid while the
// user has none.
func (s *Service) GenerateBackupCodes(ctx context.Context, u *user.User) ([]string, error) {
	if !u.TwoFAEnabled() {
		return nil, apperror.Conflict("two factor authentication not enabled")
	}
	if u.TwoFABackupCount > 0 {
		return nil, apperror.Conflict("backup codes already exist")
	}
	return s.replaceBackupCodes(ctx, u)
}

// RotateBackupCodes replaces any existing codes with ten fresh ones. The
// cookie session is sufficient authority here.
func (s *Service) RotateBackupCodes(ctx context.Context, u *user.User) ([]string, error) {
	if !u.TwoFAEnabled() {
		return nil, apperror.Conflict("two factor authentication not enabled")
	}
	return s.replaceBackupCodes(ctx, u)
}

func (s *Service) replaceBackupCodes(ctx context.Context, u *user.User) ([]string, error) {
	codes, err := GenerateBackupCodes(backupCount)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	hashes := make([]string, len(codes))
	for i, code := range codes {
		h, err := s.hasher.Hash(code)
		if err != nil {
			return nil, apperror.Internal(err)
		}
		hashes[i] = h
	}
	if err := s.users.ReplaceBackupCodes(ctx, u.ID, hashes); err != nil {
		return nil, apperror.Database(err)
	}
	return codes, nil
}

// ClearBackupCodes deletes every code; privileged.
func (s *Service) ClearBackupCodes(ctx context.Context, u *user.User, password, token string) error {
	if err := s.checkPasswordAndToken(ctx, u, password, token); err != nil {
		return err
	}
	if err := s.users.DeleteAllBackupCodes(ctx, u.ID); err != nil {
		return apperror.Database(err)
	}

	s.mail.Enqueue(mailer.Email{
		To:       u.Email,
		Name:     u.FullName,
		Template: mailer.TemplateTwoFABackupOff,
	})
	return nil
}

// registerMeta dedupes the request's IP and user agent into the registry.
func (s *Service) registerMeta(ctx context.Context, meta ReqMeta) (ipID, uaID int64, err error) {
	ipID, err = s.users.IPID(ctx, meta.IP)
	if err != nil {
		return 0, 0, apperror.Database(err)
	}
	uaID, err = s.users.UserAgentID(ctx, meta.UserAgent)
	if err != nil {
		return 0, 0, apperror.Database(err)
	}
	return ipID, uaID, nil
}
