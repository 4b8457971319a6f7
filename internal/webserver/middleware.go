package webserver

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/heureca/wppgateway/internal/auth"
	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
)

const accountContextKey = "gateway_account"

// authMiddleware resolves the caller's credentials before any handler runs.
// Unauthenticated requests never reach a route.
func (s *WebServer) authMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			account, err := s.resolver.Resolve(c.Request().Context(), c.Request().Header)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"code": string(err.Kind),
					"msg":  err.Message,
				})
			}
			c.Set(accountContextKey, account)
			return next(c)
		}
	}
}

// adminMiddleware gates the /admin group on the resolved account's kind.
func (s *WebServer) adminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			account := CurrentAccount(c)
			if account == nil {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"code": string(errs.KindCredential), "msg": "missing credentials",
				})
			}
			if err := auth.RequireAdmin(account); err != nil {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"code": string(err.Kind),
					"msg":  err.Message,
				})
			}
			return next(c)
		}
	}
}

// CurrentAccount returns the account the auth middleware resolved, or nil.
func CurrentAccount(c echo.Context) *domain.Account {
	if v, ok := c.Get(accountContextKey).(*domain.Account); ok {
		return v
	}
	return nil
}
