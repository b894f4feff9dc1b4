package routes

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/tunecache/internal/control"
	"github.com/any-hub/tunecache/internal/server"
)

// Dispatcher 执行控制消息，由 control.Dispatcher 实现。
type Dispatcher interface {
	Dispatch(ctx context.Context, req control.Request) control.Response
}

// RegisterControlRoutes 暴露 POST /-/control。deleteCache 携带 ?async=1 时立即返回 202，
// 删除在后台执行。
func RegisterControlRoutes(app *fiber.App, dispatcher Dispatcher, logger *logrus.Logger) {
	if app == nil || dispatcher == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Post("/-/control", func(c fiber.Ctx) error {
		var req control.Request
		if err := c.Bind().JSON(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(control.Response{
				Success: false,
				Error:   "malformed control message",
			})
		}

		if req.Action == control.ActionDeleteCache && fiber.Query[bool](c, "async") {
			requestID := server.RequestID(c)
			go func() {
				resp := dispatcher.Dispatch(context.Background(), req)
				logger.WithFields(logrus.Fields{
					"action":     "control_async",
					"url":        req.URL,
					"success":    resp.Success,
					"request_id": requestID,
				}).Info("control_async_complete")
			}()
			return c.Status(fiber.StatusAccepted).JSON(control.Response{Success: true})
		}

		return c.JSON(dispatcher.Dispatch(c.Context(), req))
	})
}
