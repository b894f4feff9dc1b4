package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/tunecache/internal/byterange"
	"github.com/any-hub/tunecache/internal/cache"
	"github.com/any-hub/tunecache/internal/logging"
	"github.com/any-hub/tunecache/internal/metrics"
	"github.com/any-hub/tunecache/internal/notify"
	"github.com/any-hub/tunecache/internal/policy"
	"github.com/any-hub/tunecache/internal/track"
)

const (
	defaultFetchTimeout = 20 * time.Second
	defaultRetryTimeout = 15 * time.Second
)

// Source 标记一次响应的数据来源。
type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
	SourceStale   Source = "stale"
)

// Request 是一次媒体请求的传输无关描述。
type Request struct {
	URL       string
	Range     string
	Referrer  string
	Header    http.Header
	RequestID string
}

// Result 是按 Range 重建后的响应。Unsatisfiable 也以 Result 返回，由边界层映射为 416。
type Result struct {
	byterange.Result
	Key         string
	ContentType string
	Source      Source
}

// Options 汇总 Handler 的依赖；Store/Policy/Bus 可为空以便测试裁剪。
type Options struct {
	Client       *http.Client
	Logger       *logrus.Logger
	Store        cache.Store
	Policy       *policy.State
	Gate         policy.Gate
	Bus          *notify.Bus
	Correlator   *track.Correlator
	Metrics      *metrics.Metrics
	FetchTimeout time.Duration
	RetryTimeout time.Duration
	// Upstream/MediaPrefix 仅供 ServeMedia 把本地路径映射到上游地址。
	Upstream    *url.URL
	MediaPrefix string
}

// Handler 负责 orchestrate “缓存命中 → Range 重建 / 整文件回源 → 策略落盘 → 通知” 的全流程。
// 同一 key 的并发未命中不做合并，各自回源，写入以最后一次为准。
type Handler struct {
	client       *http.Client
	logger       *logrus.Logger
	store        cache.Store
	writer       cache.Writer
	policy       *policy.State
	gate         policy.Gate
	bus          *notify.Bus
	correlator   *track.Correlator
	metrics      *metrics.Metrics
	fetchTimeout time.Duration
	retryTimeout time.Duration
	upstream     *url.URL
	mediaPrefix  string
}

// NewHandler constructs a media handler with shared HTTP client/logger/store.
func NewHandler(opts Options) *Handler {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	correlator := opts.Correlator
	if correlator == nil {
		correlator = track.Default()
	}
	gate := opts.Gate
	if len(gate.PlaybackReferrers) == 0 {
		gate = policy.NewGate(nil)
	}
	fetchTimeout := opts.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	retryTimeout := opts.RetryTimeout
	if retryTimeout <= 0 {
		retryTimeout = defaultRetryTimeout
	}
	return &Handler{
		client:       client,
		logger:       logger,
		store:        opts.Store,
		writer:       cache.NewWriter(opts.Store),
		policy:       opts.Policy,
		gate:         gate,
		bus:          opts.Bus,
		correlator:   correlator,
		metrics:      opts.Metrics,
		fetchTimeout: fetchTimeout,
		retryTimeout: retryTimeout,
		upstream:     opts.Upstream,
		mediaPrefix:  strings.TrimRight(opts.MediaPrefix, "/"),
	}
}

// Fetch 执行缓存查找、整文件回源与降级逻辑。仅 ErrInvalidURL、ErrUnavailable
// 与 *StatusError 会返回给调用方；写缓存失败只记录日志。
func (h *Handler) Fetch(ctx context.Context, req Request) (*Result, error) {
	started := time.Now()
	key, err := cache.Canonicalize(req.URL)
	if err != nil {
		return nil, ErrInvalidURL
	}
	if h.policy != nil {
		if err := h.policy.Wait(ctx); err != nil {
			return nil, err
		}
	}

	if blob, contentType, ok := h.lookup(ctx, key, true); ok {
		res := h.reconstruct(key, blob, contentType, req.Range, SourceCache)
		h.logResult(req, res, started, nil)
		return res, nil
	}

	body, contentType, err := h.fetchUpstream(ctx, req, h.fetchTimeout)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			h.logFailure(req, key, started, err)
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// 回源期间可能已有并发请求写入缓存，优先用它降级。
		if blob, cachedType, ok := h.lookup(ctx, key, false); ok {
			res := h.reconstruct(key, blob, cachedType, req.Range, SourceStale)
			h.logResult(req, res, started, err)
			return res, nil
		}
		h.logRetry(req, key, err)
		body, contentType, err = h.fetchUpstream(ctx, req, h.retryTimeout)
		if err != nil {
			h.logFailure(req, key, started, err)
			if errors.As(err, &statusErr) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}

	if h.gate.ShouldPersist(h.policy, req.Range, req.Referrer) {
		h.persist(ctx, key, body, contentType, req.RequestID)
	}

	res := h.reconstruct(key, body, contentType, req.Range, SourceNetwork)
	h.logResult(req, res, started, nil)
	return res, nil
}

// Preload 拉取完整资源并无条件写入缓存，绕过自动缓存开关与交互判定。
func (h *Handler) Preload(ctx context.Context, rawURL string) error {
	key, err := cache.Canonicalize(rawURL)
	if err != nil {
		return ErrInvalidURL
	}
	if !h.writer.Enabled() {
		return cache.ErrStoreUnavailable
	}
	req := Request{URL: rawURL}
	body, contentType, err := h.fetchUpstream(ctx, req, h.fetchTimeout)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return err
		}
		h.logRetry(req, key, err)
		body, contentType, err = h.fetchUpstream(ctx, req, h.retryTimeout)
		if err != nil {
			if errors.As(err, &statusErr) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if _, err := h.writer.PutMedia(ctx, key, body, contentType); err != nil {
		return fmt.Errorf("preload store: %w", err)
	}
	h.afterStore(key, int64(len(body)), "preload", "")
	return nil
}

// lookup 读取缓存正文；strict 模式下结构无效的条目经持锁复核后删除并视为未命中，
// 非 strict 模式用于回源失败后的降级。
func (h *Handler) lookup(ctx context.Context, key string, strict bool) ([]byte, string, bool) {
	if h.store == nil {
		return nil, "", false
	}
	match, err := cache.Find(ctx, h.store, cache.NamespaceMedia, key, cache.IdentityMatchers)
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			h.logger.WithError(err).WithFields(logrus.Fields{"action": "cache_get", "key": key}).
				Warn("cache_get_failed")
		}
		return nil, "", false
	}
	result, err := h.store.Get(ctx, match.Entry.Locator)
	if err != nil {
		return nil, "", false
	}
	entry := result.Entry
	if strict && !entry.Valid() {
		result.Reader.Close()
		removed, err := h.store.RemoveInvalid(ctx, entry.Locator)
		if err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{"action": "cache_remove", "key": key}).
				Warn("cache_remove_failed")
		}
		if err == nil && !removed {
			// 读取期间条目已被并发写入补全，保留它。
			h.logger.WithFields(logrus.Fields{"action": "cache_get", "key": key}).Debug("cache_entry_rewritten")
			return nil, "", false
		}
		h.logger.WithFields(logrus.Fields{
			"action":       "cache_get",
			"key":          key,
			"size":         entry.SizeBytes,
			"content_type": entry.ContentType,
		}).Warn("cache_entry_invalid")
		return nil, "", false
	}
	// 降级路径接受结构不完整的条目，只要还能读出内容。
	blob, err := result.ReadAll()
	if err != nil || len(blob) == 0 {
		return nil, "", false
	}
	if strict && int64(len(blob)) != entry.SizeBytes {
		return nil, "", false
	}
	return blob, entry.ContentType, true
}

func (h *Handler) persist(ctx context.Context, key string, body []byte, contentType, requestID string) {
	if !h.writer.Enabled() {
		return
	}
	if _, err := h.writer.PutMedia(ctx, key, body, contentType); err != nil {
		fields := logrus.Fields{"action": "cache_put", "key": key}
		if requestID != "" {
			fields["request_id"] = requestID
		}
		h.logger.WithError(err).WithFields(fields).Warn("cache_write_failed")
		return
	}
	h.afterStore(key, int64(len(body)), "playback", requestID)
}

// afterStore 记录写入并在解析出曲目 ID 时广播 trackCached。
func (h *Handler) afterStore(key string, size int64, reason, requestID string) {
	h.metrics.Stored(size)
	fields := logrus.Fields{
		"action": "cache_put",
		"key":    key,
		"reason": reason,
		"size":   humanize.IBytes(uint64(size)),
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if id, ok := h.correlator.Correlate(key); ok {
		fields["track_id"] = id
		fields["subscribers"] = h.bus.Publish(notify.Event{Type: notify.EventTrackCached, TrackID: id, URL: key})
	}
	h.logger.WithFields(fields).Info("cache_stored")
}

func (h *Handler) reconstruct(key string, blob []byte, contentType, rangeHeader string, source Source) *Result {
	if contentType == "" {
		contentType = cache.InferContentType(key)
	}
	return &Result{
		Result:      byterange.Reconstruct(blob, rangeHeader),
		Key:         key,
		ContentType: contentType,
		Source:      source,
	}
}

func (h *Handler) logResult(req Request, res *Result, started time.Time, fetchErr error) {
	h.metrics.MediaRequest(string(res.Source))
	fields := logging.MediaFields(res.Key, string(res.Source), req.Range, res.Source == SourceCache)
	fields["action"] = "media"
	fields["status"] = res.Status()
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if req.RequestID != "" {
		fields["request_id"] = req.RequestID
	}
	if fetchErr != nil {
		fields["error"] = fetchErr.Error()
		h.logger.WithFields(fields).Warn("media_degraded")
		return
	}
	h.logger.WithFields(fields).Info("media_complete")
}

func (h *Handler) logRetry(req Request, key string, err error) {
	fields := logging.MediaFields(key, string(SourceNetwork), req.Range, false)
	fields["action"] = "media_retry"
	fields["error"] = err.Error()
	fields["timeout"] = h.retryTimeout.String()
	if req.RequestID != "" {
		fields["request_id"] = req.RequestID
	}
	h.logger.WithFields(fields).Warn("upstream_retry")
}

func (h *Handler) logFailure(req Request, key string, started time.Time, err error) {
	h.metrics.MediaRequest("error")
	fields := logging.MediaFields(key, "", req.Range, false)
	fields["action"] = "media"
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	fields["error"] = err.Error()
	if req.RequestID != "" {
		fields["request_id"] = req.RequestID
	}
	h.logger.WithFields(fields).Error("media_failed")
}
