package middleware

import (
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

// RBAC lets the request through when the caller holds any of allowedRoles.
// It must run after Auth.
func RBAC(allowedRoles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles, _ := c.Get(KeyRoles).([]string)
			for _, r := range roles {
				if slices.Contains(allowedRoles, r) {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, map[string]string{"message": "You do not have permission to perform this action."})
		}
	}
}
