package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mealpedant/api/internal/kv"
	"github.com/mealpedant/api/internal/mailer"
	"github.com/mealpedant/api/internal/session"
	"github.com/mealpedant/api/internal/user"
)

// The state machine tests need a real database with the migrations applied;
// they skip unless TEST_DATABASE_URL points at one.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `
		TRUNCATE registered_user, ip_address, user_agent, banned_email_domain,
			login_attempt, login_history, password_reset,
			two_fa_secret, two_fa_backup, admin_user
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return pool
}

type serviceFixture struct {
	svc   *Service
	users *user.Store
	kv    *kv.Client
	mail  *mailer.Recorder
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	pool := testPool(t)

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	kvc := kv.NewFromClient(rdb)

	// Range endpoint that never matches: every password reads as unbreached.
	hibpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "0000000000000000000000000000000000A:3\r\n")
	}))
	t.Cleanup(hibpSrv.Close)

	users := user.NewStore(pool)
	sessions := session.NewStore(kvc, users)
	rec := &mailer.Recorder{}

	svc := NewService(users, sessions, kvc, rec, NewHasher(false),
		NewHIBPClientForTest(hibpSrv.URL), "test-invite", "example.com")
	return &serviceFixture{svc: svc, users: users, kv: kvc, mail: rec}
}

func testMeta() ReqMeta {
	return ReqMeta{IP: "192.0.2.1", UserAgent: "go-test"}
}

// registerVerified runs the register/verify flow and returns the user.
func (f *serviceFixture) registerVerified(t *testing.T, email, password string) *user.User {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, f.svc.Register(ctx, testMeta(), "Test Person", email, password, "test-invite"))

	var secret string
	ok, err := f.kv.GetJSON(ctx, kv.VerifyEmailKey(email), &secret)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, f.svc.Verify(ctx, secret))

	u, err := f.users.GetByEmail(ctx, email)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func TestRegisterIdempotentWithinWindow(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Register(ctx, testMeta(), "Jack", "jack@example.com", "Nb9!kR2q@x7Lz#Vm", "test-invite"))

	var first string
	ok, err := f.kv.GetJSON(ctx, kv.VerifyEmailKey("jack@example.com"), &first)
	require.NoError(t, err)
	require.True(t, ok)

	// The repeat reuses the pending secret and sends nothing.
	require.NoError(t, f.svc.Register(ctx, testMeta(), "Jack", "jack@example.com", "another-passw0rd!", "test-invite"))

	var second string
	_, err = f.kv.GetJSON(ctx, kv.VerifyEmailKey("jack@example.com"), &second)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, f.mail.Sent, 1)
	assert.Equal(t, mailer.TemplateVerify, f.mail.Sent[0].Template)
}

func TestRegisterEnumerationSafety(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "jack@example.com", "Nb9!kR2q@x7Lz#Vm")

	// Registering an existing address reads exactly like success.
	assert.NoError(t, f.svc.Register(ctx, testMeta(), "Imposter", "jack@example.com", "s0me 0ther pw!", "test-invite"))

	// As does requesting a reset for an unknown one.
	assert.NoError(t, f.svc.ResetRequest(ctx, testMeta(), "nobody@example.com"))

	// The explicit 400 cases still reject.
	err := f.svc.Register(ctx, testMeta(), "X", "x@example.com", "pw", "wrong-invite")
	require.Error(t, err)
	assert.Equal(t, "invite invalid", err.Error())
}

func TestSigninLockout(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u := f.registerVerified(t, "jack@example.com", "Nb9!kR2q@x7Lz#Vm")

	for i := 0; i < 19; i++ {
		_, err := f.svc.Signin(ctx, testMeta(), u.Email, "wrong", "", false, "")
		require.Error(t, err, "attempt %d", i+1)
	}
	attempts, err := f.users.LoginAttempts(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 19, attempts)

	// The transition attempt enqueues the lockout email exactly once and
	// fails even with correct credentials.
	_, err = f.svc.Signin(ctx, testMeta(), u.Email, "Nb9!kR2q@x7Lz#Vm", "", false, "")
	require.Error(t, err)
	_, err = f.svc.Signin(ctx, testMeta(), u.Email, "Nb9!kR2q@x7Lz#Vm", "", false, "")
	require.Error(t, err)

	locked := 0
	for _, e := range f.mail.Sent {
		if e.Template == mailer.TemplateAccountLocked {
			locked++
		}
	}
	assert.Equal(t, 1, locked)
}

func TestSigninSuccessResetsAttempts(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u := f.registerVerified(t, "jack@example.com", "Nb9!kR2q@x7Lz#Vm")

	for i := 0; i < 3; i++ {
		_, err := f.svc.Signin(ctx, testMeta(), u.Email, "wrong", "", false, "")
		require.Error(t, err)
	}

	result, err := f.svc.Signin(ctx, testMeta(), u.Email, "Nb9!kR2q@x7Lz#Vm", "", false, "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionULID)
	assert.Equal(t, session.DefaultTTL, result.TTL)

	attempts, err := f.users.LoginAttempts(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, attempts)
}

func TestBackupCodeSingleUse(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u := f.registerVerified(t, "jack@example.com", "Nb9!kR2q@x7Lz#Vm")

	// Enable 2FA through the setup flow, pulling the raw secret from KV.
	_, err := f.svc.SetupTwoFAStart(ctx, u)
	require.NoError(t, err)
	var rawSecret string
	ok, err := f.kv.GetJSON(ctx, kv.TwoFASetupKey(u.ID), &rawSecret)
	require.NoError(t, err)
	require.True(t, ok)
	token, err := GenerateTOTP(rawSecret)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetupTwoFAConfirm(ctx, u, token))

	u, err = f.users.GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	codes, err := f.svc.GenerateBackupCodes(ctx, u)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	// A password-only signin now demands the second factor.
	result, err := f.svc.Signin(ctx, testMeta(), u.Email, "Nb9!kR2q@x7Lz#Vm", "", false, "")
	require.NoError(t, err)
	assert.True(t, result.TwoFARequired)
	assert.True(t, result.TwoFABackup)

	// The code works once.
	result, err = f.svc.Signin(ctx, testMeta(), u.Email, "Nb9!kR2q@x7Lz#Vm", codes[0], false, "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionULID)

	u, err = f.users.GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, 9, u.TwoFABackupCount)

	// And never again.
	_, err = f.svc.Signin(ctx, testMeta(), u.Email, "Nb9!kR2q@x7Lz#Vm", codes[0], false, "")
	require.Error(t, err)
}

func TestResetConsumeRotatesPassword(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	u := f.registerVerified(t, "jack@example.com", "Nb9!kR2q@x7Lz#Vm")

	require.NoError(t, f.svc.ResetRequest(ctx, testMeta(), u.Email))
	live, err := f.users.LiveResetByUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, live)

	const next = "Qw4$mN8z@r2Ty#Bc"
	require.NoError(t, f.svc.ResetConsume(ctx, live.Secret, next, ""))

	// The secret is one-shot.
	err = f.svc.ResetConsume(ctx, live.Secret, "yet another one 9!", "")
	require.Error(t, err)

	_, err = f.svc.Signin(ctx, testMeta(), u.Email, "Nb9!kR2q@x7Lz#Vm", "", false, "")
	require.Error(t, err)
	result, err := f.svc.Signin(ctx, testMeta(), u.Email, next, "", false, "")
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionULID)
}
