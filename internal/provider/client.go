package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/heureca/wppgateway/config"
	"github.com/heureca/wppgateway/internal/errs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client is the narrow outbound contract to the WhatsApp automation provider
// (WPPConnect-compatible HTTP API). Every session-scoped call authenticates
// with the session's provider token as a bearer credential. The provider is
// inconsistent about response shapes, so bodies are returned as loose maps and
// forwarded verbatim; interpretation happens at the caller.
type Client struct {
	baseURL   string
	secretKey string
	timeout   time.Duration
}

func NewClient(cfg config.ProviderConfig) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		secretKey: cfg.SecretKey,
		timeout:   timeout,
	}
}

func (c *Client) sessionURL(sessionName, path string) string {
	return fmt.Sprintf("%s/api/%s/%s", c.baseURL, sessionName, path)
}

func bearer(token string) gout.H {
	h := gout.H{"Content-Type": "application/json"}
	if token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}

// postJSON dispatches a POST and classifies the outcome: network errors and
// 5xx become ProviderUnavailable, 4xx becomes ProviderRejected with the
// provider body kept verbatim.
func (c *Client) postJSON(ctx context.Context, url, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.roundTrip(ctx, "POST", url, token, body)
}

func (c *Client) getJSON(ctx context.Context, url, token string) (map[string]interface{}, *errs.Error) {
	return c.roundTrip(ctx, "GET", url, token, nil)
}

func (c *Client) roundTrip(ctx context.Context, method, url, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	var (
		raw  []byte
		code int
	)
	var df *dataflow.DataFlow
	if method == "GET" {
		df = gout.GET(url)
	} else {
		df = gout.POST(url)
	}
	df = df.WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(bearer(token)).
		Code(&code).
		BindBody(&raw)
	if body != nil {
		df = df.SetJSON(body)
	}
	zap.L().Debug("provider request", zap.String("method", method), zap.String("url", url))
	if err := df.Do(); err != nil {
		zap.L().Warn("provider unreachable", zap.String("url", url), zap.Error(err))
		return nil, errs.ProviderUnavailable("provider unreachable", err)
	}
	switch {
	case code >= 500:
		zap.L().Warn("provider server error",
			zap.String("url", url), zap.Int("status", code), zap.ByteString("body", truncate(raw)))
		e := errs.ProviderUnavailable("provider returned a server error", nil)
		e.ProviderStatus = code
		e.ProviderBody = raw
		return nil, e
	case code >= 400:
		zap.L().Warn("provider rejected request",
			zap.String("url", url), zap.Int("status", code), zap.ByteString("body", truncate(raw)))
		e := errs.New(errs.KindProviderRejected, "provider rejected request")
		e.ProviderStatus = code
		e.ProviderBody = raw
		return nil, e
	}

	resp := map[string]interface{}{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			// Non-JSON success body; forward it under a single key.
			resp = map[string]interface{}{"raw": string(raw)}
		}
	}
	return resp, nil
}

func truncate(b []byte) []byte {
	const max = 2048
	if len(b) > max {
		return b[:max]
	}
	return b
}

// GenerateToken mints a session-scoped bearer token using the gateway's
// provider secret key. A 4xx here means the secret key is misconfigured on
// our side, not the caller's fault, so it surfaces as provider-unavailable.
func (c *Client) GenerateToken(ctx context.Context, sessionName string) (string, *errs.Error) {
	url := fmt.Sprintf("%s/api/%s/%s/generate-token", c.baseURL, sessionName, c.secretKey)
	resp, err := c.postJSON(ctx, url, "", nil)
	if err != nil {
		if err.Kind == errs.KindProviderRejected {
			return "", errs.ProviderUnavailable(
				"failed to authenticate with the provider; verify the provider secret key", nil)
		}
		return "", err
	}
	token := cast.ToString(resp["token"])
	if token == "" {
		return "", errs.ProviderUnavailable("provider returned no token", nil)
	}
	return token, nil
}

// StartSession asks the provider to start (or resume) the session.
func (c *Client) StartSession(ctx context.Context, sessionName, token string) (map[string]interface{}, *errs.Error) {
	body := gout.H{"session": sessionName, "waitQrCode": false, "webhook": ""}
	return c.postJSON(ctx, c.sessionURL(sessionName, "start-session"), token, body)
}

// SendMessage forwards a plain text message.
func (c *Client) SendMessage(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.postJSON(ctx, c.sessionURL(sessionName, "send-message"), token, body)
}

// SendImage forwards a base64 image.
func (c *Client) SendImage(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.postJSON(ctx, c.sessionURL(sessionName, "send-image"), token, body)
}

// SendFile forwards a base64 document.
func (c *Client) SendFile(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.postJSON(ctx, c.sessionURL(sessionName, "send-file"), token, body)
}

// SendVoice forwards a base64 voice note.
func (c *Client) SendVoice(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.postJSON(ctx, c.sessionURL(sessionName, "send-voice-base64"), token, body)
}

// SendSticker forwards a base64 sticker image.
func (c *Client) SendSticker(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.postJSON(ctx, c.sessionURL(sessionName, "send-sticker"), token, body)
}

// SendList forwards an interactive list message.
func (c *Client) SendList(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.postJSON(ctx, c.sessionURL(sessionName, "send-list-message"), token, body)
}

// SendButtons forwards an interactive buttons message.
func (c *Client) SendButtons(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.postJSON(ctx, c.sessionURL(sessionName, "send-buttons"), token, body)
}

// SendPoll forwards an interactive poll message.
func (c *Client) SendPoll(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.postJSON(ctx, c.sessionURL(sessionName, "send-poll-message"), token, body)
}

// SendReply forwards a quick-reply buttons message.
func (c *Client) SendReply(ctx context.Context, sessionName, token string, body interface{}) (map[string]interface{}, *errs.Error) {
	return c.postJSON(ctx, c.sessionURL(sessionName, "send-reply"), token, body)
}

// UnreadMessages fetches every unread message of the session.
func (c *Client) UnreadMessages(ctx context.Context, sessionName, token string) (map[string]interface{}, *errs.Error) {
	return c.getJSON(ctx, c.sessionURL(sessionName, "all-unread-messages"), token)
}

// ChatMessages fetches the full history with one phone number.
func (c *Client) ChatMessages(ctx context.Context, sessionName, token, phone string) (map[string]interface{}, *errs.Error) {
	return c.getJSON(ctx, c.sessionURL(sessionName, "all-messages-in-chat/"+phone), token)
}

// Status queries the provider's view of the session state.
func (c *Client) Status(ctx context.Context, sessionName, token string) (map[string]interface{}, *errs.Error) {
	return c.getJSON(ctx, c.sessionURL(sessionName, "status-session"), token)
}

// IsConnected reports whether the provider considers the session connected.
// Failures are treated as not connected; this is only used for best-effort
// teardown ordering.
func (c *Client) IsConnected(ctx context.Context, sessionName, token string) bool {
	resp, err := c.getJSON(ctx, c.sessionURL(sessionName, "check-connection-session"), token)
	if err != nil {
		zap.L().Warn("provider connection check failed",
			zap.String("session", sessionName), zap.Error(err))
		return false
	}
	return cast.ToBool(resp["status"])
}

// QRCodeImage fetches the pairing QR code as a PNG.
func (c *Client) QRCodeImage(ctx context.Context, sessionName, token string) ([]byte, *errs.Error) {
	var (
		raw  []byte
		code int
	)
	err := gout.GET(c.sessionURL(sessionName, "qrcode-session")).
		WithContext(ctx).
		SetTimeout(c.timeout).
		SetHeader(bearer(token)).
		Code(&code).
		BindBody(&raw).
		Do()
	if err != nil {
		return nil, errs.ProviderUnavailable("provider unreachable", err)
	}
	if code >= 400 || len(raw) == 0 {
		e := errs.ProviderUnavailable("failed to fetch qrcode from provider", nil)
		e.ProviderStatus = code
		return nil, e
	}
	return raw, nil
}

// Logout asks the provider to log the device out.
func (c *Client) Logout(ctx context.Context, sessionName, token string) *errs.Error {
	_, err := c.postJSON(ctx, c.sessionURL(sessionName, "logout-session"), token, nil)
	return err
}

// Close asks the provider to close the session.
func (c *Client) Close(ctx context.Context, sessionName, token string) *errs.Error {
	_, err := c.postJSON(ctx, c.sessionURL(sessionName, "close-session"), token, nil)
	return err
}

// SafeLogoutAndClose is the best-effort cleanup used by session teardown:
// logout first when the device is still connected, then close.
func (c *Client) SafeLogoutAndClose(ctx context.Context, sessionName, token string) *errs.Error {
	if c.IsConnected(ctx, sessionName, token) {
		if err := c.Logout(ctx, sessionName, token); err != nil {
			return err
		}
	}
	return c.Close(ctx, sessionName, token)
}
