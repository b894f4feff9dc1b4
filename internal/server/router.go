package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MediaHandler describes the component that serves media requests under the
// configured prefix. It allows injecting fake handlers during tests.
type MediaHandler interface {
	ServeMedia(fiber.Ctx) error
}

// MediaHandlerFunc adapts a function to the MediaHandler interface.
type MediaHandlerFunc func(fiber.Ctx) error

// ServeMedia makes MediaHandlerFunc satisfy MediaHandler.
func (f MediaHandlerFunc) ServeMedia(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger      *logrus.Logger
	Media       MediaHandler
	MediaPrefix string
	ListenPort  int
}

const contextKeyRequestID = "_tunecache_request_id"

// NewApp builds a Fiber application with request-id middleware, the media
// route and structured 404 handling. Diagnostics routes under /-/ are
// registered afterwards by the routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Media == nil {
		return nil, errors.New("media handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	prefix := "/" + strings.Trim(opts.MediaPrefix, "/")
	if prefix == "/" || isDiagnosticsPath(prefix+"/") {
		return nil, fmt.Errorf("invalid media prefix: %q", opts.MediaPrefix)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	app.Add([]string{fiber.MethodGet, fiber.MethodHead}, prefix+"/*", opts.Media.ServeMedia)

	app.All("/*", func(c fiber.Ctx) error {
		if isDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return renderNotFound(c, opts.Logger, prefix)
	})

	return app, nil
}

// requestIDMiddleware 为每个请求生成 ID，写入 Locals 与响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func renderNotFound(c fiber.Ctx, logger *logrus.Logger, prefix string) error {
	logger.WithFields(logrus.Fields{
		"action":     "route_lookup",
		"path":       string(c.Request().URI().Path()),
		"prefix":     prefix,
		"request_id": RequestID(c),
	}).Debug("route unmapped")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "not_found",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
