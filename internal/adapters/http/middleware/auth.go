package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/example/record-service/internal/domain"
	"github.com/example/record-service/pkg/apperr"
)

const (
	userKey        = "current_user"
	accessTokenKey = "access_token"
)

type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.User, error)
}

// AuthMiddleware resolves the bearer access token into the current user.
type AuthMiddleware struct {
	auth Authenticator
}

func NewAuthMiddleware(auth Authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

func (m *AuthMiddleware) Handler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return apperr.Unauthorized("Invalid authorization header")
		}
		user, err := m.auth.Authenticate(c.Request().Context(), token)
		if err != nil {
			return err
		}
		c.Set(userKey, user)
		c.Set(accessTokenKey, token)
		return next(c)
	}
}

// RequireActive rejects users that are deactivated or soft-deleted. It must
// run after Handler.
func RequireActive(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user := CurrentUser(c)
		if user == nil {
			return apperr.Unauthorized("Could not validate credentials")
		}
		if user.Suspended() {
			return apperr.Forbidden("Account has been suspended")
		}
		return next(c)
	}
}

func CurrentUser(c echo.Context) *domain.User {
	user, _ := c.Get(userKey).(*domain.User)
	return user
}

func AccessToken(c echo.Context) string {
	token, _ := c.Get(accessTokenKey).(string)
	return token
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
