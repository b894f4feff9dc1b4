package control

import (
	"context"
	"math"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/any-hub/tunecache/internal/cache"
	"github.com/any-hub/tunecache/internal/track"
)

// TrackInfo 描述一个已缓存的完整曲目，按需由存储枚举得出，不落盘。
type TrackInfo struct {
	URL       string  `json:"url"`
	Filename  string  `json:"filename"`
	Size      int64   `json:"size"`
	SizeMB    float64 `json:"sizeMB"`
	SizeLabel string  `json:"sizeLabel"`
	TrackID   *int    `json:"trackId,omitempty"`
}

// ListTracks 枚举 media 命名空间中不小于 threshold 的条目，按规范化 key 去重
// （保留最新写入的一份），并按文件名排序。
func ListTracks(ctx context.Context, store cache.Store, threshold int64, correlator *track.Correlator) ([]TrackInfo, error) {
	entries, err := store.List(ctx, cache.NamespaceMedia)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]cache.Entry, len(entries))
	for _, entry := range entries {
		if entry.SizeBytes < threshold {
			continue
		}
		key := entry.Locator.Key
		if canonical, err := cache.Canonicalize(key); err == nil {
			key = canonical
		}
		if prev, ok := latest[key]; ok && !entry.ModTime.After(prev.ModTime) {
			continue
		}
		latest[key] = entry
	}

	tracks := make([]TrackInfo, 0, len(latest))
	for key, entry := range latest {
		info := TrackInfo{
			URL:       key,
			Filename:  cache.Filename(key),
			Size:      entry.SizeBytes,
			SizeMB:    sizeMB(entry.SizeBytes),
			SizeLabel: humanize.IBytes(uint64(entry.SizeBytes)),
		}
		if id, ok := correlator.Correlate(key); ok {
			info.TrackID = &id
		}
		tracks = append(tracks, info)
	}
	sort.Slice(tracks, func(i, j int) bool {
		if tracks[i].Filename != tracks[j].Filename {
			return tracks[i].Filename < tracks[j].Filename
		}
		return tracks[i].URL < tracks[j].URL
	})
	return tracks, nil
}

func sizeMB(size int64) float64 {
	return math.Round(float64(size)/(1024*1024)*100) / 100
}
