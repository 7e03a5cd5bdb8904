package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/example/record-service/internal/adapters/http/middleware"
	"github.com/example/record-service/internal/usecase"
	"github.com/example/record-service/pkg/apperr"
	res "github.com/example/record-service/pkg/http"
)

type AuthHandler struct {
	service usecase.AuthService
	cookies *CookiePolicy
}

func NewAuthHandler(s usecase.AuthService, cookies *CookiePolicy) *AuthHandler {
	return &AuthHandler{service: s, cookies: cookies}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

var errInvalidPayload = apperr.BadRequest("Invalid request payload")

func (h *AuthHandler) CreateUser(c echo.Context) error {
	req := new(usecase.RegisterInput)
	if err := c.Bind(req); err != nil {
		return errInvalidPayload
	}
	user, err := h.service.Register(c.Request().Context(), res.RequestID(c), *req)
	if err != nil {
		return err
	}
	return res.JSON(c, http.StatusCreated, "User created successfully. A verification code has been sent to your email", user)
}

func (h *AuthHandler) Login(c echo.Context) error {
	req := new(loginRequest)
	if err := c.Bind(req); err != nil {
		return errInvalidPayload
	}
	result, err := h.service.Login(c.Request().Context(), res.RequestID(c), req.Email, req.Password, requestMeta(c))
	if err != nil {
		return err
	}
	if result.NewDevice {
		h.cookies.SetDeviceID(c, result.DeviceID)
	}
	h.cookies.SetRefreshToken(c, result.RefreshToken, result.RefreshExpiresAt)
	return res.JSON(c, http.StatusOK, "Login successful", map[string]interface{}{
		"user":         result.User,
		"access_token": result.AccessToken,
		"token_type":   "bearer",
	})
}

func (h *AuthHandler) ResendOTP(c echo.Context) error {
	req := new(emailRequest)
	if err := c.Bind(req); err != nil {
		return errInvalidPayload
	}
	if err := h.service.ResendOTP(c.Request().Context(), res.RequestID(c), req.Email); err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "A new verification code has been sent to your email", nil)
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	req := new(verifyEmailRequest)
	if err := c.Bind(req); err != nil {
		return errInvalidPayload
	}
	if err := h.service.VerifyEmail(c.Request().Context(), res.RequestID(c), req.Email, req.OTP); err != nil {
		return err
	}
	return res.JSON(c, http.StatusOK, "Email verified successfully", nil)
}

func (h *AuthHandler) RefreshToken(c echo.Context) error {
	result, err := h.service.Refresh(c.Request().Context(), res.RequestID(c), requestMeta(c))
	if err != nil {
		return err
	}
	h.cookies.SetRefreshToken(c, result.RefreshToken, result.RefreshExpiresAt)
	return res.JSON(c, http.StatusOK, "Token refreshed", tokenResponse{AccessToken: result.AccessToken, TokenType: "bearer"})
}

// Logout runs behind the auth middleware, which has already resolved the
// bearer token to a user.
func (h *AuthHandler) Logout(c echo.Context) error {
	meta := requestMeta(c)
	meta.AccessToken = middleware.AccessToken(c)
	result, err := h.service.Logout(c.Request().Context(), res.RequestID(c), middleware.CurrentUser(c), meta)
	if err != nil {
		return err
	}
	if result.ClearRefreshCookie {
		h.cookies.ClearRefreshToken(c)
	}
	if result.ClearDeviceCookie {
		h.cookies.ClearDeviceID(c)
	}
	return res.JSON(c, http.StatusOK, "Logged out successfully", nil)
}

func requestMeta(c echo.Context) usecase.RequestMeta {
	return usecase.RequestMeta{
		RefreshToken: cookieValue(c, refreshTokenCookie),
		DeviceID:     cookieValue(c, deviceIDCookie),
		UserAgent:    c.Request().UserAgent(),
		IPAddress:    c.RealIP(),
	}
}
