package proxy

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/tunecache/internal/byterange"
	"github.com/any-hub/tunecache/internal/server"
)

// HeaderSource 标记响应数据来自缓存、网络还是降级的旧缓存。
const HeaderSource = "X-Tunecache-Source"

// ServeMedia 把 <MediaPrefix>/<path> 映射为 <Upstream><MediaPrefix>/<path> 并交给 Fetch。
func (h *Handler) ServeMedia(c fiber.Ctx) error {
	if h.upstream == nil {
		return h.writeError(c, fiber.StatusInternalServerError, "upstream_unconfigured")
	}
	target, ok := h.upstreamTarget(c)
	if !ok {
		return h.writeError(c, fiber.StatusNotFound, "not_found")
	}
	res, err := h.Fetch(c.Context(), Request{
		URL:       target,
		Range:     c.Get(fiber.HeaderRange),
		Referrer:  c.Get(fiber.HeaderReferer),
		Header:    fiberHeadersAsHTTP(c),
		RequestID: server.RequestID(c),
	})
	if err != nil {
		return h.writeFetchError(c, err)
	}
	return writeResult(c, res)
}

// upstreamTarget 保留请求路径的原始编码与查询串，路径不在媒体前缀下时返回 false。
func (h *Handler) upstreamTarget(c fiber.Ctx) (string, bool) {
	uri := c.Request().URI()
	rel := string(uri.PathOriginal())
	if idx := strings.IndexByte(rel, '?'); idx >= 0 {
		rel = rel[:idx]
	}
	if !strings.HasPrefix(rel, "/") {
		rel = "/" + rel
	}
	if h.mediaPrefix != "" && !strings.HasPrefix(rel, h.mediaPrefix+"/") {
		return "", false
	}
	target := strings.TrimRight(h.upstream.String(), "/") + rel
	if query := uri.QueryString(); len(query) > 0 {
		target += "?" + string(query)
	}
	return target, true
}

func writeResult(c fiber.Ctx, res *Result) error {
	c.Set(fiber.HeaderAcceptRanges, "bytes")
	c.Set(HeaderSource, string(res.Source))
	switch res.Kind {
	case byterange.Unsatisfiable:
		c.Set(fiber.HeaderContentRange, res.ContentRange())
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return nil
	case byterange.Partial:
		c.Set(fiber.HeaderContentRange, res.ContentRange())
	}
	if res.ContentType != "" {
		c.Set(fiber.HeaderContentType, res.ContentType)
	}
	c.Set(fiber.HeaderContentLength, strconv.FormatInt(res.ContentLength(), 10))
	c.Status(res.Status())
	return c.Send(res.Body)
}

func (h *Handler) writeFetchError(c fiber.Ctx, err error) error {
	var statusErr *StatusError
	switch {
	case errors.Is(err, ErrInvalidURL):
		return h.writeError(c, fiber.StatusBadRequest, "invalid_url")
	case errors.As(err, &statusErr):
		return h.writeError(c, statusErr.Status, "upstream_status")
	default:
		return h.writeError(c, fiber.StatusServiceUnavailable, "unavailable")
	}
}

func (h *Handler) writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}
