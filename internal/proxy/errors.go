package proxy

import (
	"errors"
	"fmt"

	"github.com/any-hub/tunecache/internal/cache"
)

// ErrInvalidURL 表示媒体地址不是合法的绝对网络地址，请求不会触达缓存。
var ErrInvalidURL = cache.ErrInvalidURL

// ErrUnavailable 表示上游与缓存均无法提供资源。
var ErrUnavailable = errors.New("media unavailable")

// StatusError 表示上游返回了明确的非成功状态（4xx 等），原样转交给调用方。
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned status %d", e.URL, e.Status)
}
