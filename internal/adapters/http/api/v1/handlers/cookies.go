package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	deviceIDCookie     = "device_id"
	refreshTokenCookie = "refresh_token"
)

// CookiePolicy sets the session cookies. Production cookies are cross-site
// capable and secure; elsewhere they are lax so plain-http dev setups work.
type CookiePolicy struct {
	Production     bool
	DeviceIDMaxAge time.Duration
	now            func() time.Time
}

func NewCookiePolicy(production bool, deviceMaxAge time.Duration) *CookiePolicy {
	return &CookiePolicy{Production: production, DeviceIDMaxAge: deviceMaxAge, now: time.Now}
}

func (p *CookiePolicy) base(name, value string, maxAge int) *http.Cookie {
	cookie := &http.Cookie{Name: name, Value: value, MaxAge: maxAge, HttpOnly: true, Path: "/"}
	if p.Production {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	} else {
		cookie.SameSite = http.SameSiteLaxMode
	}
	return cookie
}

func (p *CookiePolicy) SetDeviceID(c echo.Context, deviceID string) {
	c.SetCookie(p.base(deviceIDCookie, deviceID, int(p.DeviceIDMaxAge.Seconds())))
}

func (p *CookiePolicy) SetRefreshToken(c echo.Context, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(p.now()).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetCookie(p.base(refreshTokenCookie, token, maxAge))
}

func (p *CookiePolicy) ClearDeviceID(c echo.Context) { c.SetCookie(p.base(deviceIDCookie, "", -1)) }
func (p *CookiePolicy) ClearRefreshToken(c echo.Context) {
	c.SetCookie(p.base(refreshTokenCookie, "", -1))
}

func cookieValue(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
