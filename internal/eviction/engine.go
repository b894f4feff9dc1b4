// Package eviction 在启动时清理缓存：格式版本变化时整体清空，随后删除所有
// 小于完整文件阈值的 media 条目（残留的分片请求产物）。
package eviction

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/tunecache/internal/cache"
	"github.com/any-hub/tunecache/internal/metrics"
	"github.com/any-hub/tunecache/internal/policy"
)

// Options 描述 Engine 的依赖。
type Options struct {
	Store     cache.Store
	Version   string
	Threshold int64
	Logger    *logrus.Logger
	Metrics   *metrics.Metrics
}

// Engine 执行版本重置与按大小淘汰。
type Engine struct {
	store     cache.Store
	version   string
	threshold int64
	logger    *logrus.Logger
	metrics   *metrics.Metrics
}

// Report 汇总一次 Run 的结果。
type Report struct {
	VersionReset bool
	Removed      int
	FreedBytes   int64
}

// New 创建 Engine；Threshold 缺省时使用 policy.DefaultFullFileThreshold。
func New(opts Options) *Engine {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = policy.DefaultFullFileThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		store:     opts.Store,
		version:   opts.Version,
		threshold: threshold,
		logger:    logger,
		metrics:   opts.Metrics,
	}
}

// Threshold 返回当前完整文件阈值。
func (e *Engine) Threshold() int64 {
	return e.threshold
}

// Run 先比较版本标记（不一致则清空缓存自有数据），再执行按大小淘汰。
func (e *Engine) Run(ctx context.Context) (Report, error) {
	var report Report
	if e.store == nil {
		return report, cache.ErrStoreUnavailable
	}

	if e.version != "" {
		if current := e.store.Version(); current != e.version {
			if err := e.store.Reset(ctx, e.version); err != nil {
				return report, fmt.Errorf("reset cache store: %w", err)
			}
			report.VersionReset = true
			e.metrics.Evicted("version_reset", 1)
			e.logger.WithFields(logrus.Fields{
				"action":   "evict",
				"reason":   "version_reset",
				"previous": current,
				"version":  e.version,
			}).Info("cache_store_reset")
		}
	}

	removed, freed, err := e.purge(ctx)
	report.Removed = removed
	report.FreedBytes = freed
	return report, err
}

// PurgeUndersized 删除所有小于阈值的 media 条目，返回删除数量。
func (e *Engine) PurgeUndersized(ctx context.Context) (int, error) {
	removed, _, err := e.purge(ctx)
	return removed, err
}

func (e *Engine) purge(ctx context.Context) (int, int64, error) {
	if e.store == nil {
		return 0, 0, cache.ErrStoreUnavailable
	}
	entries, err := e.store.List(ctx, cache.NamespaceMedia)
	if err != nil {
		return 0, 0, fmt.Errorf("list media entries: %w", err)
	}

	removed := 0
	var freed int64
	for _, entry := range entries {
		if entry.SizeBytes >= e.threshold {
			continue
		}
		if err := e.store.Remove(ctx, entry.Locator); err != nil {
			e.logger.WithError(err).WithFields(logrus.Fields{
				"action": "evict",
				"key":    entry.Locator.Key,
			}).Warn("cache_evict_failed")
			continue
		}
		removed++
		freed += entry.SizeBytes
	}

	e.metrics.Evicted("undersized", removed)
	e.logger.WithFields(logrus.Fields{
		"action":    "evict",
		"reason":    "undersized",
		"scanned":   len(entries),
		"removed":   removed,
		"freed":     humanize.IBytes(uint64(freed)),
		"threshold": humanize.IBytes(uint64(e.threshold)),
	}).Info("cache_evict_complete")
	return removed, freed, nil
}
