package cache

import (
	"bytes"
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable 表示当前未注入缓存存储实例。
var ErrStoreUnavailable = errors.New("cache store unavailable")

// Writer 封装“完整文件”写入：补全内容类型并统一写入时间。
type Writer struct {
	store Store
	now   func() time.Time
}

// NewWriter 构造写入器，默认使用 time.Now 作为时钟。
func NewWriter(store Store) Writer {
	return Writer{
		store: store,
		now:   time.Now,
	}
}

// Enabled 返回当前是否具备缓存写入能力。
func (w Writer) Enabled() bool {
	return w.store != nil
}

// PutMedia 将完整音频正文写入 media 命名空间；内容类型缺失时按扩展名推断。
func (w Writer) PutMedia(ctx context.Context, key string, body []byte, contentType string) (*Entry, error) {
	if w.store == nil {
		return nil, ErrStoreUnavailable
	}
	if !IsAudioContentType(contentType) {
		if inferred := InferContentType(key); inferred != "" {
			contentType = inferred
		}
	}
	return w.store.Put(ctx, MediaLocator(key), bytes.NewReader(body), PutOptions{
		ContentType: contentType,
		ModTime:     w.now().UTC(),
	})
}
