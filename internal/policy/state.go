// Package policy 持有缓存写入策略的运行时状态，并决定一次回源结果是否值得落盘。
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/any-hub/tunecache/internal/cache"
)

// SettingsKey 是自动缓存开关在 settings 命名空间中的保留 key。
const SettingsKey = "auto-cache"

// settingsRecord 是持久化到缓存存储中的设置记录。
type settingsRecord struct {
	Enabled bool `json:"enabled"`
}

// State 汇总 autoCacheEnabled（持久化）与 userInteracted（仅本次进程）。
// Init 只会真正执行一次；Ready 在加载完成后关闭，所有消费者在服务前等待它。
type State struct {
	store cache.Store

	autoCache  atomic.Bool
	interacted atomic.Bool

	persistMu sync.Mutex
	once      sync.Once
	ready     chan struct{}
	initErr   error
}

// NewState 创建尚未加载的状态，默认开启自动缓存。
func NewState(store cache.Store) *State {
	s := &State{
		store: store,
		ready: make(chan struct{}),
	}
	s.autoCache.Store(true)
	return s
}

// Init 从缓存存储读取持久化的开关；记录缺失或损坏时保持默认 true。
// 重复或并发调用安全，只有第一次生效。
func (s *State) Init(ctx context.Context) error {
	s.once.Do(func() {
		defer close(s.ready)
		enabled, err := s.load(ctx)
		if err != nil {
			s.initErr = err
			return
		}
		s.autoCache.Store(enabled)
	})
	return s.initErr
}

// Ready 返回加载完成信号。
func (s *State) Ready() <-chan struct{} {
	return s.ready
}

// Wait 阻塞直到 Init 完成或 ctx 结束。
func (s *State) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AutoCacheEnabled 返回当前自动缓存开关。
func (s *State) AutoCacheEnabled() bool {
	return s.autoCache.Load()
}

// UserInteracted 返回本次进程内是否收到过播放器交互信号。
func (s *State) UserInteracted() bool {
	return s.interacted.Load()
}

// MarkInteracted 标记用户已与播放器交互，直到进程重启才会复位。
func (s *State) MarkInteracted() {
	s.interacted.Store(true)
}

// SetAutoCacheEnabled 先写回 settings 槽位，成功后再修改开关。
func (s *State) SetAutoCacheEnabled(ctx context.Context, enabled bool) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if s.store == nil {
		return cache.ErrStoreUnavailable
	}
	raw, err := json.Marshal(settingsRecord{Enabled: enabled})
	if err != nil {
		return err
	}
	// 持久化成功后才切换内存中的开关，失败时两者保持一致。
	if _, err := s.store.Put(ctx, settingsLocator(), bytes.NewReader(raw), cache.PutOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("persist auto-cache setting: %w", err)
	}
	s.autoCache.Store(enabled)
	return nil
}

func (s *State) load(ctx context.Context) (bool, error) {
	if s.store == nil {
		return true, nil
	}
	result, err := s.store.Get(ctx, settingsLocator())
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return true, nil
		}
		return true, fmt.Errorf("load auto-cache setting: %w", err)
	}
	raw, err := result.ReadAll()
	if err != nil {
		return true, fmt.Errorf("read auto-cache setting: %w", err)
	}
	var record settingsRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return true, nil
	}
	return record.Enabled, nil
}

func settingsLocator() cache.Locator {
	return cache.Locator{Namespace: cache.NamespaceSettings, Key: SettingsKey}
}
