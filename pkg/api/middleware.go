package api

import (
	echo "github.com/labstack/echo/v5"
)

// securityHeaders returns middleware that sets standard security response headers.
func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			return next(c)
		}
	}
}

// orgFromRequest resolves the acting org for control-plane calls.
// X-Org-ID header (set by the fronting proxy) takes priority over the query
// parameter.
func orgFromRequest(c *echo.Context) string {
	if org := c.Request().Header.Get("X-Org-ID"); org != "" {
		return org
	}
	return c.QueryParam("org_id")
}
