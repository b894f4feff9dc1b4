// Package track 将缓存资源的 URL 映射为应用侧的曲目 ID。
package track

import (
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// Matcher 是一条命名的匹配规则；Pattern 的第一个捕获组必须是数字 ID。
// OnPath 为 true 时匹配完整路径，否则只匹配最后一个路径段。
type Matcher struct {
	Name    string
	Pattern *regexp.Regexp
	OnPath  bool
}

// Correlator 按顺序应用 matchers，返回第一个命中的 ID。
type Correlator struct {
	matchers []Matcher
}

// DefaultMatchers 覆盖常见的曲目 URL 形态。
var DefaultMatchers = []Matcher{
	{Name: "numbered-file", Pattern: regexp.MustCompile(`^(\d{3})[-_. ]`)},
	{Name: "track-segment", Pattern: regexp.MustCompile(`/tracks?/(\d+)(?:/|$)`), OnPath: true},
	{Name: "id-segment", Pattern: regexp.MustCompile(`/id/(\d+)(?:/|$)`), OnPath: true},
	{Name: "track-file", Pattern: regexp.MustCompile(`(?i)^track[-_](\d+)\b`)},
}

var defaultCorrelator = New(DefaultMatchers)

// New 构造自定义规则的 Correlator。
func New(matchers []Matcher) *Correlator {
	return &Correlator{matchers: append([]Matcher(nil), matchers...)}
}

// Default 返回使用 DefaultMatchers 的共享实例。
func Default() *Correlator {
	return defaultCorrelator
}

// Correlate 是 Default().Correlate 的简写。
func Correlate(raw string) (int, bool) {
	return defaultCorrelator.Correlate(raw)
}

// Correlate 从 URL 中提取曲目 ID；输入畸形或无规则命中时返回 false。
func (c *Correlator) Correlate(raw string) (int, bool) {
	if c == nil {
		return 0, false
	}
	fullPath, segment := splitPath(raw)
	if fullPath == "" {
		return 0, false
	}
	for _, m := range c.matchers {
		if m.Pattern == nil {
			continue
		}
		subject := segment
		if m.OnPath {
			subject = fullPath
		}
		match := m.Pattern.FindStringSubmatch(subject)
		if len(match) < 2 {
			continue
		}
		id, err := strconv.Atoi(match[1])
		if err != nil {
			continue
		}
		return id, true
	}
	return 0, false
}

func splitPath(raw string) (string, string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ""
	}
	p := raw
	if parsed, err := url.Parse(raw); err == nil {
		p = parsed.Path
	} else if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
		p = raw[:idx]
	}
	if decoded, err := url.PathUnescape(p); err == nil {
		p = decoded
	}
	if p == "" {
		return "", ""
	}
	base := path.Base(p)
	if base == "/" || base == "." {
		base = ""
	}
	return p, base
}
