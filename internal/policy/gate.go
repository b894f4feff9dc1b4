package policy

import "strings"

// DefaultFullFileThreshold 是判定“完整文件”的最小字节数，低于该值的条目视为残留分片。
const DefaultFullFileThreshold int64 = 500 * 1024

// DefaultPlaybackReferrers 是表明请求来自播放上下文的 Referer 路径片段。
var DefaultPlaybackReferrers = []string{"/player", "/play", "/listen"}

// Gate 区分真实播放/拖动与被动预取：只有前者才允许写入缓存。
type Gate struct {
	PlaybackReferrers []string
}

// NewGate 创建 Gate，referrers 为空时使用默认值。
func NewGate(referrers []string) Gate {
	if len(referrers) == 0 {
		referrers = DefaultPlaybackReferrers
	}
	return Gate{PlaybackReferrers: append([]string(nil), referrers...)}
}

// IsPlayback 判断请求是否带有 Range 头或来自播放页面。
func (g Gate) IsPlayback(rangeHeader, referrer string) bool {
	if strings.TrimSpace(rangeHeader) != "" {
		return true
	}
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return false
	}
	for _, marker := range g.PlaybackReferrers {
		if marker != "" && strings.Contains(referrer, marker) {
			return true
		}
	}
	return false
}

// ShouldPersist 综合开关、交互信号与播放判定给出是否落盘。
func (g Gate) ShouldPersist(state *State, rangeHeader, referrer string) bool {
	if state == nil || !state.AutoCacheEnabled() || !state.UserInteracted() {
		return false
	}
	return g.IsPlayback(rangeHeader, referrer)
}
