package gatewayapi

import (
	"github.com/labstack/echo/v4"

	"github.com/heureca/wppgateway/internal/pipeline"
)

func sendImage(c echo.Context) error {
	return dispatch(c, &pipeline.ImageSend{})
}

func sendFile(c echo.Context) error {
	return dispatch(c, &pipeline.FileSend{})
}

func sendVoice(c echo.Context) error {
	return dispatch(c, &pipeline.VoiceSend{})
}

func sendSticker(c echo.Context) error {
	return dispatch(c, &pipeline.StickerSend{})
}
