package routes

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/tunecache/internal/notify"
	"github.com/any-hub/tunecache/internal/server"
)

const eventKeepAlive = 15 * time.Second

// RegisterEventRoutes 以 Server-Sent Events 形式暴露 GET /-/events，
// 每个连接对应一个总线订阅，连接断开时注销。
func RegisterEventRoutes(app *fiber.App, bus *notify.Bus, logger *logrus.Logger) {
	if app == nil || bus == nil {
		return
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	app.Get("/-/events", func(c fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		sub := bus.Subscribe()
		fields := logrus.Fields{
			"action":          "events",
			"subscription_id": sub.ID,
			"request_id":      server.RequestID(c),
		}
		logger.WithFields(fields).Info("events_subscribed")

		return c.SendStreamWriter(func(w *bufio.Writer) {
			defer func() {
				sub.Close()
				logger.WithFields(fields).Info("events_unsubscribed")
			}()

			fmt.Fprintf(w, ": subscribed %s\n\n", sub.ID)
			if err := w.Flush(); err != nil {
				return
			}

			ticker := time.NewTicker(eventKeepAlive)
			defer ticker.Stop()
			for {
				select {
				case evt, ok := <-sub.Events():
					if !ok {
						return
					}
					if err := writeEvent(w, evt); err != nil {
						return
					}
				case <-ticker.C:
					fmt.Fprint(w, ": ping\n\n")
					if err := w.Flush(); err != nil {
						return
					}
				}
			}
		})
	})
}

// writeEvent 按 SSE 格式写出一条事件并立即 flush。
func writeEvent(w *bufio.Writer, evt notify.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
		return err
	}
	return w.Flush()
}
