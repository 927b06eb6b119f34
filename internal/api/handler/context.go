package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Ferrington/bug-wars-client/internal/api/middleware"
)

// ctxSubject returns the account id injected by the Auth middleware. Its
// absence means the route was mounted without Auth.
func ctxSubject(c echo.Context) (string, error) {
	sub, _ := c.Get(middleware.KeySubject).(string)
	if sub == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "You must be logged in.")
	}
	return sub, nil
}
