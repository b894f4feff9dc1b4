package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/any-hub/tunecache/internal/server"
)

// stripRequestHeaders 会让上游返回分片或条件响应，回源一律拉取完整文件。
var stripRequestHeaders = []string{
	"Range",
	"If-Range",
	"If-None-Match",
	"If-Modified-Since",
	"Accept-Encoding",
	"Host",
	"Content-Length",
}

// fetchUpstream 在独立超时内拉取完整正文。5xx 与传输错误视为网络失败，
// 其余非 200 状态包装为 *StatusError。
func (h *Handler) fetchUpstream(ctx context.Context, req Request, timeout time.Duration) ([]byte, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	upstreamReq, err := h.buildUpstreamRequest(attemptCtx, req)
	if err != nil {
		return nil, "", err
	}

	resp, err := h.client.Do(upstreamReq)
	if err != nil {
		h.metrics.UpstreamFetch(fetchErrorResult(attemptCtx, err))
		return nil, "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= http.StatusInternalServerError:
		h.metrics.UpstreamFetch("server_error")
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", fmt.Errorf("upstream %s returned status %d", upstreamReq.URL.Redacted(), resp.StatusCode)
	default:
		h.metrics.UpstreamFetch("status")
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &StatusError{Status: resp.StatusCode, URL: upstreamReq.URL.Redacted()}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.metrics.UpstreamFetch(fetchErrorResult(attemptCtx, err))
		return nil, "", fmt.Errorf("read upstream body: %w", err)
	}
	if resp.ContentLength >= 0 && int64(len(body)) != resp.ContentLength {
		h.metrics.UpstreamFetch("short_body")
		return nil, "", fmt.Errorf("upstream body truncated: got %d of %d bytes", len(body), resp.ContentLength)
	}
	h.metrics.UpstreamFetch("ok")
	return body, strings.TrimSpace(resp.Header.Get("Content-Type")), nil
}

func (h *Handler) buildUpstreamRequest(ctx context.Context, req Request) (*http.Request, error) {
	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, http.NoBody)
	if err != nil {
		return nil, err
	}
	if req.Header != nil {
		server.CopyHeaders(upstreamReq.Header, req.Header)
	}
	for _, key := range stripRequestHeaders {
		upstreamReq.Header.Del(key)
	}
	upstreamReq.Host = upstreamReq.URL.Host
	return upstreamReq, nil
}

func fetchErrorResult(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "timeout"
	}
	return "error"
}
