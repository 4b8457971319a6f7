package gatewayapi

import (
	"github.com/labstack/echo/v4"

	"github.com/heureca/wppgateway/internal/webserver"
)

// receiveUnread proxies the provider's unread-message dump. Reads run
// through the same admission chain as sends.
func receiveUnread(c echo.Context) error {
	account := webserver.CurrentAccount(c)
	resp, err := pipe.FetchUnread(c.Request().Context(), account, c.Param("session"))
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, resp)
}

// receiveChat proxies the message history of one chat.
func receiveChat(c echo.Context) error {
	account := webserver.CurrentAccount(c)
	resp, err := pipe.FetchChat(c.Request().Context(), account, c.Param("session"), c.Param("phone"))
	if err != nil {
		return failErr(c, err)
	}
	return ok(c, resp)
}
