package gatewayapi

import (
	"encoding/base64"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/heureca/wppgateway/internal/domain"
	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/internal/webserver"
)

// resolveOwned is the shared prologue of every session-scoped handler:
// lookup by path param, then ownership check.
func resolveOwned(c echo.Context) (*domain.Session, *errs.Error) {
	account := webserver.CurrentAccount(c)
	sess, err := registry.Get(c.Request().Context(), c.Param("session"))
	if err != nil {
		return nil, err
	}
	if err := registry.AssertOwnership(sess, account); err != nil {
		return nil, err
	}
	return sess, nil
}

// createSession binds a phone number to a provider session. Repeating the
// call for a phone the caller already owns refreshes the token instead of
// failing.
func createSession(c echo.Context) error {
	var payload struct {
		Phone       string `json:"phone"`
		Description string `json:"description"`
	}
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, string(errs.KindValidation), "unable to parse request", nil)
	}

	account := webserver.CurrentAccount(c)
	sess, action, err := registry.ResolveOrCreate(c.Request().Context(), account, payload.Phone, payload.Description)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, map[string]interface{}{
		"session": sess.SessionName,
		"phone":   sess.Phone,
		"status":  sess.LifecycleState,
		"action":  string(action),
	})
}

func startSession(c echo.Context) error {
	sess, err := resolveOwned(c)
	if err != nil {
		return failErr(c, err)
	}
	resp, state, err := registry.Start(c.Request().Context(), sess)
	if err != nil {
		return failErr(c, err)
	}
	resp["session"] = sess.SessionName
	resp["status"] = state
	return ok(c, resp)
}

func statusSession(c echo.Context) error {
	sess, err := resolveOwned(c)
	if err != nil {
		return failErr(c, err)
	}
	resp, err := registry.Status(c.Request().Context(), sess)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, resp)
}

func listSessions(c echo.Context) error {
	account := webserver.CurrentAccount(c)
	sessions, err := registry.ListByOwner(c.Request().Context(), account)
	if err != nil {
		return failErr(c, err)
	}
	items := make([]map[string]interface{}, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, map[string]interface{}{
			"session":     s.SessionName,
			"phone":       s.Phone,
			"status":      s.LifecycleState,
			"description": s.Description,
			"created_at":  s.CreatedAt,
		})
	}
	return ok(c, map[string]interface{}{"sessions": items})
}

// sessionQRCode streams the pairing QR as a PNG.
func sessionQRCode(c echo.Context) error {
	sess, err := resolveOwned(c)
	if err != nil {
		return failErr(c, err)
	}
	png, err := registry.QRCode(c.Request().Context(), sess)
	if err != nil {
		return failErr(c, err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

// sessionQRCodeBase64 returns the same QR wrapped in JSON for clients that
// cannot consume a binary body.
func sessionQRCodeBase64(c echo.Context) error {
	sess, err := resolveOwned(c)
	if err != nil {
		return failErr(c, err)
	}
	png, err := registry.QRCode(c.Request().Context(), sess)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, map[string]interface{}{
		"session": sess.SessionName,
		"qrcode":  base64.StdEncoding.EncodeToString(png),
	})
}

// deleteSession revokes the session and frees its phone number. Provider
// cleanup failures do not block the local removal.
func deleteSession(c echo.Context) error {
	sess, err := resolveOwned(c)
	if err != nil {
		return failErr(c, err)
	}
	result, err := registry.Teardown(c.Request().Context(), sess)
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, result)
}
