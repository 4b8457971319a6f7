package gatewayapi

import (
	"github.com/labstack/echo/v4"

	"github.com/heureca/wppgateway/internal/pipeline"
)

func sendList(c echo.Context) error {
	return dispatch(c, &pipeline.ListSend{})
}

func sendButtons(c echo.Context) error {
	return dispatch(c, &pipeline.ButtonsSend{})
}

func sendPoll(c echo.Context) error {
	return dispatch(c, &pipeline.PollSend{})
}

func sendReply(c echo.Context) error {
	return dispatch(c, &pipeline.ReplySend{})
}
