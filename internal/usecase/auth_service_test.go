package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/pkg/apperr"
	pkglog "github.com/example/record-service/pkg/log"
)

type authFixture struct {
	svc      *authService
	store    *memStore
	kv       *memKV
	notifier *captureNotifier
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	cfg := testConfig()
	store := newMemStore()
	kv := newMemKV()
	signer, err := NewJWTSigner(cfg)
	require.NoError(t, err)
	notifier := &captureNotifier{}
	svc := NewAuthService(cfg, pkglog.Nop(), store, NewSessionManager(store), NewTokenCodec(signer, kv, cfg.AccessTTL), plainHasher{}, notifier).(*authService)
	svc.goFn = func(fn func()) { fn() }
	return &authFixture{svc: svc, store: store, kv: kv, notifier: notifier}
}

func (f *authFixture) register(t *testing.T, email string) *domain.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), "trace", RegisterInput{FirstName: "Ann", LastName: "Lee", Email: email, Password: "pw123456"})
	require.NoError(t, err)
	return user
}

func (f *authFixture) login(t *testing.T, deviceID string) *LoginResult {
	t.Helper()
	res, err := f.svc.Login(context.Background(), "trace", "a@x.com", "pw123456", RequestMeta{DeviceID: deviceID, UserAgent: "test", IPAddress: "127.0.0.1"})
	require.NoError(t, err)
	return res
}

func (f *authFixture) sessionsFor(userID string) []domain.RefreshToken {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	var out []domain.RefreshToken
	for _, s := range f.store.sessions {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out
}

func assertStatus(t *testing.T, err error, status int, message string) {
	t.Helper()
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, status, appErr.Status)
	if message != "" {
		assert.Equal(t, message, appErr.Message)
	}
}

func TestRegisterLoginAndMe(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, " A@X.com ")
	assert.Equal(t, "a@x.com", user.Email)
	assert.NotEqual(t, "pw123456", user.PasswordHash)
	require.Len(t, f.notifier.sent, 1)
	assert.Len(t, f.notifier.last().Code, 6)

	res := f.login(t, "")
	assert.True(t, res.NewDevice)
	assert.NotEmpty(t, res.DeviceID)
	assert.NotEmpty(t, res.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), res.RefreshExpiresAt, 5*time.Second)

	me, err := f.svc.Authenticate(context.Background(), res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, me.ID)
	assert.False(t, me.IsVerified)

	sessions := f.sessionsFor(user.ID)
	require.Len(t, sessions, 1)
	assert.NotEqual(t, res.RefreshToken, sessions[0].TokenHash)
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com")

	_, err := f.svc.Register(context.Background(), "trace", RegisterInput{FirstName: "B", LastName: "C", Email: "A@x.com", Password: "pw123456"})
	assertStatus(t, err, http.StatusConflict, "Email is already registered")

	_, err = f.svc.Register(context.Background(), "trace", RegisterInput{FirstName: "B", LastName: "C", Email: "nope", Password: "pw123456"})
	assertStatus(t, err, http.StatusBadRequest, "")

	_, err = f.svc.Register(context.Background(), "trace", RegisterInput{FirstName: "B", LastName: "C", Email: "b@x.com", Password: "short"})
	assertStatus(t, err, http.StatusBadRequest, "")
}

func TestRegisterSucceedsWhenMailFails(t *testing.T) {
	f := newAuthFixture(t)
	f.notifier.err = errBoom
	f.register(t, "a@x.com")
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com")

	_, err := f.svc.Login(context.Background(), "trace", "a@x.com", "wrong-password", RequestMeta{})
	assertStatus(t, err, http.StatusUnauthorized, "Invalid email or password")

	_, err = f.svc.Login(context.Background(), "trace", "b@x.com", "pw123456", RequestMeta{})
	assertStatus(t, err, http.StatusUnauthorized, "Invalid email or password")
}

func TestSingleSessionPerDevice(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com")

	first := f.login(t, "device-a")
	assert.False(t, first.NewDevice)
	second := f.login(t, "device-a")
	f.login(t, "device-b")

	sessions := f.sessionsFor(user.ID)
	require.Len(t, sessions, 2)

	_, err := f.svc.Refresh(context.Background(), "trace", RequestMeta{RefreshToken: first.RefreshToken, DeviceID: "device-a"})
	assertStatus(t, err, http.StatusUnauthorized, "Invalid refresh token")

	_, err = f.svc.Refresh(context.Background(), "trace", RequestMeta{RefreshToken: second.RefreshToken, DeviceID: "device-a"})
	require.NoError(t, err)
}

func TestRefreshRotationRejectsPredecessor(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com")
	login := f.login(t, "device-a")
	before := f.sessionsFor(user.ID)[0]

	rotated, err := f.svc.Refresh(context.Background(), "trace", RequestMeta{RefreshToken: login.RefreshToken, DeviceID: "device-a"})
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	after := f.sessionsFor(user.ID)
	require.Len(t, after, 1)
	assert.NotEqual(t, before.ID, after[0].ID)
	assert.NotEqual(t, before.JTI, after[0].JTI)

	_, err = f.svc.Refresh(context.Background(), "trace", RequestMeta{RefreshToken: login.RefreshToken, DeviceID: "device-a"})
	assertStatus(t, err, http.StatusUnauthorized, "Invalid refresh token")

	_, err = f.svc.Authenticate(context.Background(), rotated.AccessToken)
	require.NoError(t, err)
}

func TestRefreshFailures(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com")
	login := f.login(t, "device-a")
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "trace", RequestMeta{RefreshToken: login.RefreshToken})
	assertStatus(t, err, http.StatusUnauthorized, "No refresh token or device id provided")

	_, err = f.svc.Refresh(ctx, "trace", RequestMeta{RefreshToken: login.AccessToken, DeviceID: "device-a"})
	assertStatus(t, err, http.StatusUnauthorized, "Invalid refresh token")

	_, err = f.svc.Refresh(ctx, "trace", RequestMeta{RefreshToken: "garbage", DeviceID: "device-a"})
	assertStatus(t, err, http.StatusUnauthorized, "Invalid refresh token")

	_, err = f.svc.Refresh(ctx, "trace", RequestMeta{RefreshToken: login.RefreshToken, DeviceID: "device-z"})
	assertStatus(t, err, http.StatusBadRequest, "No session for this device")

	f.svc.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err = f.svc.Refresh(ctx, "trace", RequestMeta{RefreshToken: login.RefreshToken, DeviceID: "device-a"})
	assertStatus(t, err, http.StatusUnauthorized, "Session expired")
}

func TestOTPSingleSlot(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com")
	firstCode := f.notifier.last().Code

	require.NoError(t, f.svc.ResendOTP(context.Background(), "trace", "a@x.com"))
	secondCode := f.notifier.last().Code
	if firstCode == secondCode {
		t.Skip("random codes collided")
	}

	err := f.svc.VerifyEmail(context.Background(), "trace", "a@x.com", firstCode)
	assertStatus(t, err, http.StatusUnauthorized, "Invalid otp")

	require.NoError(t, f.svc.VerifyEmail(context.Background(), "trace", "a@x.com", secondCode))
	user, err := f.store.Users().FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.True(t, user.IsVerified)
	assert.Nil(t, user.OTPHash)
	assert.Nil(t, user.OTPType)
	assert.Nil(t, user.OTPExpiry)

	err = f.svc.VerifyEmail(context.Background(), "trace", "a@x.com", secondCode)
	assertStatus(t, err, http.StatusBadRequest, "Invalid otp")
}

func TestVerifyEmailExpiredAndUnknown(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com")
	code := f.notifier.last().Code

	err := f.svc.VerifyEmail(context.Background(), "trace", "b@x.com", code)
	assertStatus(t, err, http.StatusNotFound, "Email not registered")

	err = f.svc.ResendOTP(context.Background(), "trace", "b@x.com")
	assertStatus(t, err, http.StatusNotFound, "Email has not been registered")

	f.svc.now = func() time.Time { return time.Now().Add(31 * time.Minute) }
	err = f.svc.VerifyEmail(context.Background(), "trace", "a@x.com", code)
	assertStatus(t, err, http.StatusBadRequest, "Otp has expired")
}

func TestLogoutBlacklistsAndRevokes(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com")
	login := f.login(t, "device-a")

	res, err := f.svc.Logout(context.Background(), "trace", user, RequestMeta{AccessToken: login.AccessToken, RefreshToken: login.RefreshToken, DeviceID: "device-a"})
	require.NoError(t, err)
	assert.True(t, res.ClearRefreshCookie)
	assert.False(t, res.ClearDeviceCookie)
	assert.Empty(t, f.sessionsFor(user.ID))

	_, err = f.svc.Authenticate(context.Background(), login.AccessToken)
	assertStatus(t, err, http.StatusUnauthorized, "Invalid token")

	require.Len(t, f.kv.revoked, 1)
	for _, ttl := range f.kv.revoked {
		assert.Greater(t, ttl, 29*time.Minute)
		assert.LessOrEqual(t, ttl, 31*time.Minute)
	}
}

func TestLogoutOrphanedDeviceCookie(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com")
	login := f.login(t, "device-a")

	res, err := f.svc.Logout(context.Background(), "trace", user, RequestMeta{AccessToken: login.AccessToken, DeviceID: "device-gone"})
	require.NoError(t, err)
	assert.False(t, res.ClearRefreshCookie)
	assert.True(t, res.ClearDeviceCookie)
	assert.Len(t, f.sessionsFor(user.ID), 1)

	_, err = f.svc.Logout(context.Background(), "trace", user, RequestMeta{})
	assertStatus(t, err, http.StatusUnauthorized, "Invalid authorization header")
}

func TestSweepExpiredSessions(t *testing.T) {
	f := newAuthFixture(t)
	user := f.register(t, "a@x.com")
	f.login(t, "device-a")

	n, err := f.svc.sessions.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.svc.sessions.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	n, err = f.svc.sessions.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Empty(t, f.sessionsFor(user.ID))
}

func TestAuthenticateRevocationStoreDown(t *testing.T) {
	f := newAuthFixture(t)
	f.register(t, "a@x.com")
	res := f.login(t, "dev-1")

	f.kv.err = errBoom
	_, err := f.svc.Authenticate(context.Background(), res.AccessToken)
	require.ErrorIs(t, err, errBoom)
	var appErr *apperr.Error
	assert.False(t, errors.As(err, &appErr), "store failures must not look like rejected tokens")

	f.kv.err = nil
	_, err = f.svc.Authenticate(context.Background(), "garbage")
	assertStatus(t, err, http.StatusUnauthorized, "Invalid token")
}
