// Package control 实现面向播放器页面的控制协议：查询/清理缓存、预加载曲目以及
// 切换自动缓存策略。所有失败都以 Response{Success:false} 表达，不向调用方抛错。
package control

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/tunecache/internal/cache"
	"github.com/any-hub/tunecache/internal/policy"
	"github.com/any-hub/tunecache/internal/track"
)

// 控制动作名称，与播放器端保持一致。
const (
	ActionGetCacheSize         = "getCacheSize"
	ActionGetCachedTracks      = "getCachedTracks"
	ActionClearCache           = "clearCache"
	ActionDeleteCache          = "deleteCache"
	ActionCleanupRangeRequests = "cleanupRangeRequests"
	ActionPreloadTrack         = "preloadTrack"
	ActionSetAutoCacheEnabled  = "setAutoCacheEnabled"
	ActionGetAutoCacheEnabled  = "getAutoCacheEnabled"
	ActionUserInteracted       = "userInteracted"
)

// Request 是一条控制消息。
type Request struct {
	Action  string `json:"action"`
	URL     string `json:"url,omitempty"`
	Enabled *bool  `json:"enabled,omitempty"`
}

// Response 是控制消息的应答；未使用的字段不会序列化。
type Response struct {
	Success bool        `json:"success"`
	Size    *int64      `json:"size,omitempty"`
	Tracks  []TrackInfo `json:"tracks,omitempty"`
	Deleted *bool       `json:"deleted,omitempty"`
	Enabled *bool       `json:"enabled,omitempty"`
	Removed *int        `json:"removed,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Preloader 拉取并无条件缓存资源，由 proxy.Handler 实现。
type Preloader interface {
	Preload(ctx context.Context, rawURL string) error
}

// Purger 按大小阈值清理残留分片，由 eviction.Engine 实现。
type Purger interface {
	PurgeUndersized(ctx context.Context) (int, error)
}

// Options 描述 Dispatcher 的依赖。
type Options struct {
	Store      cache.Store
	Policy     *policy.State
	Preloader  Preloader
	Purger     Purger
	Correlator *track.Correlator
	Threshold  int64
	Logger     *logrus.Logger
}

// Dispatcher 是无状态的动作分发器，可被多个连接并发调用。
type Dispatcher struct {
	store      cache.Store
	policy     *policy.State
	preloader  Preloader
	purger     Purger
	correlator *track.Correlator
	threshold  int64
	logger     *logrus.Logger
}

var (
	errMissingURL     = errors.New("url is required")
	errMissingEnabled = errors.New("enabled is required")
	errNoStore        = errors.New("cache store unavailable")
)

// NewDispatcher 构造 Dispatcher，缺省阈值取 policy.DefaultFullFileThreshold。
func NewDispatcher(opts Options) *Dispatcher {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = policy.DefaultFullFileThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	correlator := opts.Correlator
	if correlator == nil {
		correlator = track.Default()
	}
	return &Dispatcher{
		store:      opts.Store,
		policy:     opts.Policy,
		preloader:  opts.Preloader,
		purger:     opts.Purger,
		correlator: correlator,
		threshold:  threshold,
		logger:     logger,
	}
}

// Dispatch 执行一条控制消息。未知动作或缺失参数返回 Success=false。
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	action := strings.TrimSpace(req.Action)
	resp, err := d.dispatch(ctx, action, req)
	fields := logrus.Fields{"action": "control", "control_action": action}
	if req.URL != "" {
		fields["url"] = req.URL
	}
	if err != nil {
		d.logger.WithError(err).WithFields(fields).Warn("control_failed")
		return Response{Success: false, Error: err.Error()}
	}
	d.logger.WithFields(fields).Debug("control_complete")
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, action string, req Request) (Response, error) {
	switch action {
	case ActionGetCacheSize:
		size, err := d.cacheSize(ctx)
		if err != nil {
			return Response{}, err
		}
		return Response{Success: true, Size: &size}, nil

	case ActionGetCachedTracks:
		if d.store == nil {
			return Response{}, errNoStore
		}
		tracks, err := ListTracks(ctx, d.store, d.threshold, d.correlator)
		if err != nil {
			return Response{}, err
		}
		if tracks == nil {
			tracks = []TrackInfo{}
		}
		return Response{Success: true, Tracks: tracks}, nil

	case ActionClearCache, ActionDeleteCache:
		if strings.TrimSpace(req.URL) == "" {
			return Response{}, errMissingURL
		}
		if d.store == nil {
			return Response{}, errNoStore
		}
		deleted, err := cache.Delete(ctx, d.store, cache.NamespaceMedia, req.URL)
		if err != nil {
			return Response{}, err
		}
		return Response{Success: deleted, Deleted: &deleted}, nil

	case ActionCleanupRangeRequests:
		if d.purger == nil {
			return Response{}, errors.New("eviction engine unavailable")
		}
		removed, err := d.purger.PurgeUndersized(ctx)
		if err != nil {
			return Response{}, err
		}
		return Response{Success: true, Removed: &removed}, nil

	case ActionPreloadTrack:
		if strings.TrimSpace(req.URL) == "" {
			return Response{}, errMissingURL
		}
		if d.preloader == nil {
			return Response{}, errors.New("preloader unavailable")
		}
		if err := d.preloader.Preload(ctx, req.URL); err != nil {
			return Response{}, err
		}
		return Response{Success: true}, nil

	case ActionSetAutoCacheEnabled:
		if req.Enabled == nil {
			return Response{}, errMissingEnabled
		}
		if d.policy == nil {
			return Response{}, errors.New("policy unavailable")
		}
		if err := d.policy.SetAutoCacheEnabled(ctx, *req.Enabled); err != nil {
			return Response{}, err
		}
		enabled := d.policy.AutoCacheEnabled()
		return Response{Success: true, Enabled: &enabled}, nil

	case ActionGetAutoCacheEnabled:
		if d.policy == nil {
			return Response{}, errors.New("policy unavailable")
		}
		if err := d.policy.Wait(ctx); err != nil {
			return Response{}, err
		}
		enabled := d.policy.AutoCacheEnabled()
		return Response{Success: true, Enabled: &enabled}, nil

	case ActionUserInteracted:
		if d.policy == nil {
			return Response{}, errors.New("policy unavailable")
		}
		d.policy.MarkInteracted()
		return Response{Success: true}, nil

	case "":
		return Response{}, errors.New("action is required")
	default:
		return Response{}, errors.New("unknown action: " + action)
	}
}

// cacheSize 统计 media 与 settings 两个命名空间的总字节数。
func (d *Dispatcher) cacheSize(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errNoStore
	}
	var total int64
	for _, ns := range []string{cache.NamespaceMedia, cache.NamespaceSettings} {
		size, err := d.store.TotalSize(ctx, ns)
		if err != nil {
			return 0, err
		}
		total += size
	}
	return total, nil
}
