package routes

import (
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/tunecache/internal/cache"
	"github.com/any-hub/tunecache/internal/notify"
	"github.com/any-hub/tunecache/internal/policy"
	"github.com/any-hub/tunecache/internal/version"
)

// StatusOptions 汇总 /-/status 需要读取的运行时组件，均可为空。
type StatusOptions struct {
	Store  cache.Store
	Policy *policy.State
	Bus    *notify.Bus
}

type statusPayload struct {
	Version        string `json:"version"`
	StoreFormat    string `json:"store_format"`
	StoreVersion   string `json:"store_version"`
	MediaBytes     int64  `json:"media_bytes"`
	MediaSize      string `json:"media_size"`
	MediaEntries   int    `json:"media_entries"`
	AutoCache      bool   `json:"auto_cache_enabled"`
	UserInteracted bool   `json:"user_interacted"`
	Subscribers    int    `json:"subscribers"`
	StoreError     string `json:"store_error,omitempty"`
}

// RegisterStatusRoutes 暴露 GET /-/status 诊断接口。
func RegisterStatusRoutes(app *fiber.App, opts StatusOptions) {
	if app == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		payload := statusPayload{
			Version:     version.Full(),
			StoreFormat: version.StoreFormat,
		}
		if opts.Store != nil {
			payload.StoreVersion = opts.Store.Version()
			entries, err := opts.Store.List(c.Context(), cache.NamespaceMedia)
			if err != nil {
				payload.StoreError = err.Error()
			}
			for _, entry := range entries {
				payload.MediaBytes += entry.SizeBytes
			}
			payload.MediaEntries = len(entries)
		}
		payload.MediaSize = humanize.IBytes(uint64(payload.MediaBytes))
		if opts.Policy != nil {
			payload.AutoCache = opts.Policy.AutoCacheEnabled()
			payload.UserInteracted = opts.Policy.UserInteracted()
		}
		if opts.Bus != nil {
			payload.Subscribers = opts.Bus.Len()
		}
		return c.JSON(payload)
	})
}
