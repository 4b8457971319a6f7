package gatewayapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/heureca/wppgateway/internal/auth"
	"github.com/heureca/wppgateway/internal/errs"
	"github.com/heureca/wppgateway/internal/pipeline"
	"github.com/heureca/wppgateway/internal/quota"
	"github.com/heureca/wppgateway/internal/session"
	"github.com/heureca/wppgateway/internal/webserver"
	"github.com/heureca/wppgateway/pkg/metrics"
)

var (
	registry  *session.Registry
	pipe      *pipeline.Pipeline
	ledger    *quota.Ledger
	accounts  auth.AccountRepository
	collector *metrics.Collector
)

// InitRouter wires the handler dependencies and registers every route.
// webserver.Init must have run first.
func InitRouter(reg *session.Registry, p *pipeline.Pipeline, l *quota.Ledger,
	repo auth.AccountRepository, m *metrics.Collector) {
	registry = reg
	pipe = p
	ledger = l
	accounts = repo
	collector = m

	webserver.ApiPOST("/create-session", createSession)
	webserver.ApiPOST("/start-session/:session", startSession)
	webserver.ApiGET("/sessions", listSessions)
	webserver.ApiGET("/:session/status-session", statusSession)
	webserver.ApiGET("/:session/qrcode", sessionQRCode)
	webserver.ApiGET("/:session/qrcode/base64", sessionQRCodeBase64)
	webserver.ApiDELETE("/session/:session", deleteSession)

	webserver.ApiPOST("/messages/send", sendText)

	webserver.ApiPOST("/media/send-image", sendImage)
	webserver.ApiPOST("/media/send-file", sendFile)
	webserver.ApiPOST("/media/send-voice", sendVoice)
	webserver.ApiPOST("/media/send-sticker", sendSticker)

	webserver.ApiPOST("/interactive/send-list", sendList)
	webserver.ApiPOST("/interactive/send-buttons", sendButtons)
	webserver.ApiPOST("/interactive/send-poll", sendPoll)
	webserver.ApiPOST("/interactive/send-reply", sendReply)

	webserver.ApiGET("/receive/:session/all-unread-messages", receiveUnread)
	webserver.ApiGET("/receive/:session/all-messages-in-chat/:phone", receiveChat)

	webserver.AdminPOST("/create-client", createClient)
	webserver.AdminGET("/clients", listClients)
	webserver.AdminGET("/usage", usageReport)
	webserver.AdminGET("/usage/export", usageExport)
	webserver.AdminGET("/metrics", metricsSnapshot)
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, data)
}

func fail(c echo.Context, status int, code, msg string, detail interface{}) error {
	body := map[string]interface{}{"code": code, "msg": msg}
	if detail != nil {
		body["detail"] = detail
	}
	return c.JSON(status, body)
}

// failErr maps an error kind to its HTTP status in one place. Provider
// rejections pass through with the upstream status and body untouched;
// internal faults are logged in full and returned opaquely.
func failErr(c echo.Context, e *errs.Error) error {
	switch e.Kind {
	case errs.KindProviderRejected:
		status := e.ProviderStatus
		if status < 400 || status > 499 {
			status = http.StatusBadRequest
		}
		return c.Blob(status, echo.MIMEApplicationJSON, e.ProviderBody)
	case errs.KindInternal:
		zap.L().Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(e))
		return fail(c, http.StatusInternalServerError, string(e.Kind), "internal server error", nil)
	}
	return fail(c, statusOf(e.Kind), string(e.Kind), e.Message, e.Fields())
}

func statusOf(kind errs.Kind) int {
	switch kind {
	case errs.KindCredential:
		return http.StatusUnauthorized
	case errs.KindAuthorization:
		return http.StatusForbidden
	case errs.KindSessionNotFound:
		return http.StatusNotFound
	case errs.KindSessionNotReady:
		return http.StatusConflict
	case errs.KindQuotaExceeded:
		return http.StatusTooManyRequests
	case errs.KindValidation:
		return http.StatusBadRequest
	case errs.KindProviderUnavailable:
		return http.StatusFailedDependency
	default:
		return http.StatusInternalServerError
	}
}
