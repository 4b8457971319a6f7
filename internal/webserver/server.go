package webserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/heureca/wppgateway/config"
	"github.com/heureca/wppgateway/internal/auth"
)

var server *WebServer

// RequestObserver, when set, receives every finished request. The metrics
// collector hooks in here.
var RequestObserver func(status int, latency time.Duration)

// WebServer wraps the echo instance and the route groups the API handlers
// register against.
type WebServer struct {
	root     *echo.Echo
	config   *config.AppConfig
	resolver *auth.Resolver
	api      *echo.Group
	admin    *echo.Group
}

// Init builds the global server instance. It must be called before any
// route registration.
func Init(cfg *config.AppConfig, resolver *auth.Resolver) *WebServer {
	server = NewWebServer(cfg, resolver)
	return server
}

func NewWebServer(cfg *config.AppConfig, resolver *auth.Resolver) *WebServer {
	s := &WebServer{config: cfg, resolver: resolver}
	s.root = echo.New()
	s.root.Pre(middleware.RemoveTrailingSlash())
	s.root.Use(middleware.Recover())
	s.root.Use(requestLogger())
	s.root.HideBanner = true
	s.root.HidePort = true
	s.root.Debug = cfg.System.Debug
	s.root.JSONSerializer = jsonSerializer{}

	s.api = s.root.Group("/api", s.authMiddleware())
	s.admin = s.root.Group("/admin", s.authMiddleware(), s.adminMiddleware())

	s.root.GET("/status", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "time": time.Now()})
	})
	return s
}

// Listen starts serving and blocks until the listener stops.
func (s *WebServer) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Web.Host, s.config.Web.Port)
	zap.S().Infof("starting web server %s", addr)
	return s.root.Start(addr)
}

func (s *WebServer) Shutdown(ctx context.Context) error {
	return s.root.Shutdown(ctx)
}

// Echo exposes the underlying instance for tests.
func (s *WebServer) Echo() *echo.Echo {
	return s.root
}

func ApiGET(path string, h echo.HandlerFunc)    { server.api.GET(path, h) }
func ApiPOST(path string, h echo.HandlerFunc)   { server.api.POST(path, h) }
func ApiDELETE(path string, h echo.HandlerFunc) { server.api.DELETE(path, h) }

func AdminGET(path string, h echo.HandlerFunc)  { server.admin.GET(path, h) }
func AdminPOST(path string, h echo.HandlerFunc) { server.admin.POST(path, h) }

// requestLogger emits one structured line per request.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if RequestObserver != nil {
				RequestObserver(v.Status, v.Latency)
			}
			zap.L().Info("http request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			)
			return nil
		},
	})
}

// jsonSerializer swaps echo's JSON codec for jsoniter.
type jsonSerializer struct{}

func (jsonSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := jsoniter.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (jsonSerializer) Deserialize(c echo.Context, i interface{}) error {
	if err := jsoniter.NewDecoder(c.Request().Body).Decode(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return nil
}
