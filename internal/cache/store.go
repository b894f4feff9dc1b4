package cache

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// Store 负责管理磁盘缓存的读写。磁盘布局遵循：
//
//	<StoragePath>/VERSION                       # 缓存格式版本
//	<StoragePath>/<namespace>/<sha1(key)>.body  # 实际正文
//	<StoragePath>/<namespace>/<sha1(key)>.meta  # key/content-type/长度
type Store interface {
	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(ctx context.Context, locator Locator) (*ReadResult, error)

	// Put 将完整正文写入缓存，同 key 覆盖（last write wins）。
	Put(ctx context.Context, locator Locator, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除条目；条目不存在时返回 nil。
	Remove(ctx context.Context, locator Locator) error

	// RemoveInvalid 在条目锁内复核，仅当条目仍不可用时删除，返回是否删除。
	RemoveInvalid(ctx context.Context, locator Locator) (bool, error)

	// List 枚举命名空间下的全部条目，不打开正文。
	List(ctx context.Context, namespace string) ([]Entry, error)

	// TotalSize 汇总命名空间下所有正文的字节数。
	TotalSize(ctx context.Context, namespace string) (int64, error)

	// Version 返回磁盘上记录的格式版本，从未写入时为空串。
	Version() string

	// Reset 清空缓存自有的命名空间与版本文件，再写入新的版本标记；目录中的其他文件保留。
	Reset(ctx context.Context, version string) error
}

const (
	// NamespaceMedia 存放音频正文，淘汰与列表只作用于该命名空间。
	NamespaceMedia = "media"
	// NamespaceSettings 存放保留的伪资源（例如自动缓存开关）。
	NamespaceSettings = "settings"
)

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ContentType string
	ModTime     time.Time
}

// Locator 唯一定位一个缓存条目（命名空间 + 规范化 key）。
type Locator struct {
	Namespace string
	Key       string
}

// MediaLocator 是 media 命名空间下的便捷构造。
func MediaLocator(key string) Locator {
	return Locator{Namespace: NamespaceMedia, Key: key}
}

// Entry 描述一个缓存条目及其磁盘信息。
type Entry struct {
	Locator     Locator   `json:"locator"`
	FilePath    string    `json:"file_path"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	ModTime     time.Time `json:"mod_time"`

	// recordedSize 是写入时记录的长度，用于检测被截断的正文。
	recordedSize int64
}

// Valid 报告条目在结构上是否可直接用于回放：长度与记录一致且内容类型可识别。
func (e Entry) Valid() bool {
	if e.SizeBytes <= 0 || e.SizeBytes != e.recordedSize {
		return false
	}
	return IsAudioContentType(e.ContentType)
}

// ReadResult 组合 Entry 与正文 Reader。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

// ReadAll 读取完整正文并关闭 Reader。
func (r *ReadResult) ReadAll() ([]byte, error) {
	defer r.Reader.Close()
	return io.ReadAll(r.Reader)
}

// ErrNotFound 表示缓存不存在。
var ErrNotFound = errors.New("cache entry not found")

// IsAudioContentType 判断内容类型是否属于可缓存的媒体。
func IsAudioContentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if idx := strings.Index(ct, ";"); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}
	switch {
	case strings.HasPrefix(ct, "audio/"):
		return true
	case ct == "application/ogg", ct == "application/octet-stream":
		return true
	}
	return false
}
