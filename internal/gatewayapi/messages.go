package gatewayapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/internal/pipeline"
	"github.com/heureca/wppgateway/internal/webserver"
)

// dispatch binds the payload into the given request shape and runs it
// through the pipeline. All send handlers reduce to this.
func dispatch(c echo.Context, req pipeline.SendRequest) error {
	if err := c.Bind(req); err != nil {
		return fail(c, http.StatusBadRequest, string(errs.KindValidation), "unable to parse request", nil)
	}
	account := webserver.CurrentAccount(c)
	resp, err := pipe.Send(c.Request().Context(), account, req)
	if err != nil {
		return failErr(c, err)
	}
	if collector != nil {
		collector.CountMessage()
	}
	return ok(c, resp)
}

func sendText(c echo.Context) error {
	return dispatch(c, &pipeline.TextSend{})
}
