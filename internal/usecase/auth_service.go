package usecase

import (
	"context"
	"crypto/hmac"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/record-service/config"
	repo "github.com/example/record-service/internal/adapters/postgres"
	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/internal/tokenverify"
	"github.com/example/record-service/pkg/apperr"
	pkglog "github.com/example/record-service/pkg/log"
)

// OTPMessage is what the mail pipeline needs to deliver a verification code.
// Code is plaintext and must never be persisted.
type OTPMessage struct {
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	Code          string `json:"code"`
	ExpiryMinutes int    `json:"expiry_minutes"`
}

type OTPNotifier interface {
	NotifyOTP(ctx context.Context, msg OTPMessage) error
}

// RequestMeta carries the cookie, header and connection values of the call.
type RequestMeta struct {
	AccessToken  string
	RefreshToken string
	DeviceID     string
	UserAgent    string
	IPAddress    string
}

type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type LoginResult struct {
	User             *domain.User
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	DeviceID         string
	NewDevice        bool
}

type RefreshResult struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type LogoutResult struct {
	ClearRefreshCookie bool
	ClearDeviceCookie  bool
}

type AuthService interface {
	Register(ctx context.Context, traceID string, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, traceID, email, password string, meta RequestMeta) (*LoginResult, error)
	ResendOTP(ctx context.Context, traceID, email string) error
	VerifyEmail(ctx context.Context, traceID, email, otp string) error
	Logout(ctx context.Context, traceID string, user *domain.User, meta RequestMeta) (*LogoutResult, error)
	Refresh(ctx context.Context, traceID string, meta RequestMeta) (*RefreshResult, error)
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

type authService struct {
	cfg        *config.Config
	logger     pkglog.Logger
	store      repo.Store
	sessions   *SessionManager
	codec      *TokenCodec
	hasher     SecretHasher
	notifier   OTPNotifier
	refreshKey []byte
	now        func() time.Time
	goFn       func(func())
}

func NewAuthService(cfg *config.Config, logger pkglog.Logger, store repo.Store, sessions *SessionManager, codec *TokenCodec, hasher SecretHasher, notifier OTPNotifier) AuthService {
	return &authService{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		sessions:   sessions,
		codec:      codec,
		hasher:     hasher,
		notifier:   notifier,
		refreshKey: []byte(cfg.JWTSecret),
		now:        time.Now,
		goFn:       func(fn func()) { go fn() },
	}
}

func (s *authService) Register(ctx context.Context, traceID string, in RegisterInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	firstName, lastName := strings.TrimSpace(in.FirstName), strings.TrimSpace(in.LastName)
	if firstName == "" || lastName == "" {
		return nil, apperr.BadRequest("First name and last name are required")
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return nil, apperr.Conflict("Email is already registered")
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	passwordHash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	code, otp, err := s.newOTP()
	if err != nil {
		return nil, err
	}
	user := &domain.User{FirstName: firstName, LastName: lastName, Email: email, PasswordHash: passwordHash, IsActive: true}
	user.SetOTP(otp)
	if err := s.store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, apperr.Conflict("Email is already registered")
		}
		return nil, err
	}

	s.dispatchOTP(traceID, user, code)
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

func (s *authService) Login(ctx context.Context, traceID, email, password string, meta RequestMeta) (*LoginResult, error) {
	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.Unauthorized("Invalid email or password")
		}
		return nil, err
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, apperr.Unauthorized("Invalid email or password")
	}

	deviceID, newDevice := meta.DeviceID, false
	if deviceID == "" {
		deviceID, newDevice = uuid.NewString(), true
	}

	access, err := s.codec.Issue(user.ID, AccessToken, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.Issue(user.ID, RefreshToken, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.Start(ctx, NewSession{
		UserID:    user.ID,
		DeviceID:  deviceID,
		TokenHash: hashRefreshToken(s.refreshKey, refresh.Token),
		JTI:       refresh.JTI,
		UserAgent: orUnknown(meta.UserAgent),
		IPAddress: orUnknown(meta.IPAddress),
		ExpiresAt: refresh.ExpiresAt,
	}); err != nil {
		return nil, err
	}

	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Bool("new_device", newDevice).Msg("login")
	return &LoginResult{
		User:             user,
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		RefreshExpiresAt: refresh.ExpiresAt,
		DeviceID:         deviceID,
		NewDevice:        newDevice,
	}, nil
}

func (s *authService) ResendOTP(ctx context.Context, traceID, email string) error {
	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperr.NotFound("Email has not been registered")
		}
		return err
	}
	code, otp, err := s.newOTP()
	if err != nil {
		return err
	}
	if err := s.store.Users().SetOTP(ctx, user.ID, otp); err != nil {
		return err
	}
	s.dispatchOTP(traceID, user, code)
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("otp issued")
	return nil
}

func (s *authService) VerifyEmail(ctx context.Context, traceID, email, code string) error {
	user, err := s.store.Users().FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return apperr.NotFound("Email not registered")
		}
		return err
	}
	pending := user.PendingOTP()
	if pending == nil || pending.Type != domain.OTPEmailVerification {
		return apperr.BadRequest("Invalid otp")
	}
	if !s.now().Before(pending.Expiry) {
		return apperr.BadRequest("Otp has expired")
	}
	if !s.hasher.Verify(code, pending.Hash) {
		return apperr.Unauthorized("Invalid otp")
	}
	if err := s.store.Users().MarkVerified(ctx, user.ID); err != nil {
		return err
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("email verified")
	return nil
}

func (s *authService) Logout(ctx context.Context, traceID string, user *domain.User, meta RequestMeta) (*LogoutResult, error) {
	if meta.AccessToken == "" {
		return nil, apperr.Unauthorized("Invalid authorization header")
	}
	if err := s.codec.Blacklist(ctx, meta.AccessToken); err != nil {
		if isTokenError(err) {
			return nil, apperr.Unauthorized("Invalid token").Wrap(err)
		}
		return nil, err
	}

	result := &LogoutResult{ClearRefreshCookie: meta.RefreshToken != ""}
	if meta.DeviceID != "" {
		session, err := s.sessions.Get(ctx, user.ID, meta.DeviceID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			// The device record is gone already; drop the orphaned cookie too.
			result.ClearDeviceCookie = true
		} else if err := s.sessions.Revoke(ctx, session); err != nil {
			return nil, err
		}
	}
	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("logout")
	return result, nil
}

func (s *authService) Refresh(ctx context.Context, traceID string, meta RequestMeta) (*RefreshResult, error) {
	if meta.RefreshToken == "" || meta.DeviceID == "" {
		return nil, apperr.Unauthorized("No refresh token or device id provided")
	}
	claims, err := s.codec.Verify(ctx, meta.RefreshToken, RefreshToken)
	if err != nil {
		if isTokenError(err) {
			return nil, apperr.Unauthorized("Invalid refresh token").Wrap(err)
		}
		return nil, err
	}
	user, err := s.store.Users().FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.Unauthorized("Could not validate credentials")
		}
		return nil, err
	}

	session, err := s.sessions.Get(ctx, user.ID, meta.DeviceID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apperr.BadRequest("No session for this device")
	}
	presentedHash := hashRefreshToken(s.refreshKey, meta.RefreshToken)
	if session.JTI != claims.JTI || !hmac.Equal([]byte(session.TokenHash), []byte(presentedHash)) {
		s.logger.Warn().Str("trace_id", traceID).Str("user_id", user.ID).Msg("superseded refresh token presented")
		return nil, apperr.Unauthorized("Invalid refresh token")
	}
	if session.Expired(s.now()) {
		return nil, apperr.Unauthorized("Session expired")
	}

	refresh, err := s.codec.Issue(user.ID, RefreshToken, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	if _, err := s.sessions.Rotate(ctx, session, NewSession{
		UserID:    user.ID,
		DeviceID:  meta.DeviceID,
		TokenHash: hashRefreshToken(s.refreshKey, refresh.Token),
		JTI:       refresh.JTI,
		UserAgent: orUnknown(meta.UserAgent),
		IPAddress: orUnknown(meta.IPAddress),
		ExpiresAt: refresh.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	access, err := s.codec.Issue(user.ID, AccessToken, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("trace_id", traceID).Str("user_id", user.ID).Msg("refresh token rotated")
	return &RefreshResult{AccessToken: access.Token, RefreshToken: refresh.Token, RefreshExpiresAt: refresh.ExpiresAt}, nil
}

func (s *authService) Authenticate(ctx context.Context, accessToken string) (*domain.User, error) {
	claims, err := s.codec.Verify(ctx, accessToken, AccessToken)
	if err != nil {
		if isTokenError(err) {
			return nil, apperr.Unauthorized("Invalid token").Wrap(err)
		}
		return nil, err
	}
	user, err := s.store.Users().FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperr.Unauthorized("Invalid token")
		}
		return nil, err
	}
	return user, nil
}

func (s *authService) newOTP() (string, domain.OTP, error) {
	code, err := generateOTP(s.cfg.OTPLength)
	if err != nil {
		return "", domain.OTP{}, err
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return "", domain.OTP{}, err
	}
	return code, domain.OTP{Hash: hash, Type: domain.OTPEmailVerification, Expiry: s.now().UTC().Add(s.cfg.OTPExpiry)}, nil
}

// dispatchOTP hands the plaintext code to the mail pipeline in the
// background. Delivery failures are logged and never reach the caller.
func (s *authService) dispatchOTP(traceID string, user *domain.User, code string) {
	if s.notifier == nil {
		return
	}
	msg := OTPMessage{Email: user.Email, FirstName: user.FirstName, Code: code, ExpiryMinutes: int(s.cfg.OTPExpiry.Minutes())}
	s.goFn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.notifier.NotifyOTP(ctx, msg); err != nil {
			s.logger.Error().Err(err).Str("trace_id", traceID).Str("user_id", user.ID).Msg("otp mail dispatch failed")
		}
	})
}

// isTokenError separates rejected tokens from revocation store failures.
func isTokenError(err error) bool {
	for _, target := range []error{
		tokenverify.ErrInvalidToken,
		tokenverify.ErrTokenExpired,
		tokenverify.ErrSubjectMissing,
		tokenverify.ErrWrongType,
		tokenverify.ErrJTIMissing,
		tokenverify.ErrRevoked,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func validateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 || len(email) > 255 {
		return apperr.BadRequest("Invalid email")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 || len(password) > 64 {
		return apperr.BadRequest("Password must be between 8 and 64 characters")
	}
	return nil
}

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
