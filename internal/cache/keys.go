package cache

import (
	"errors"
	"net/url"
	"path"
	"strings"
)

// ErrInvalidURL 表示请求地址不是合法的绝对 http/https 地址。
var ErrInvalidURL = errors.New("invalid media url")

// Canonicalize 去掉 query 与 fragment，返回唯一的缓存 key。
func Canonicalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidURL
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", ErrInvalidURL
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return "", ErrInvalidURL
	}
	parsed.Scheme = scheme
	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String(), nil
}

// Filename 返回 key 最后一个路径段（已解码），用于展示与文件名匹配。
func Filename(key string) string {
	p := key
	if parsed, err := url.Parse(key); err == nil && parsed.Path != "" {
		p = parsed.Path
	} else if decoded, err := url.PathUnescape(key); err == nil {
		p = decoded
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// Matcher 是一种宽松 key 匹配策略，按优先级依次尝试。
type Matcher struct {
	Name  string
	Match func(query, stored string) bool
}

// DefaultMatchers 在精确匹配失败后依次使用：解码、编码、子串、文件名。
var DefaultMatchers = []Matcher{
	{Name: "decoded", Match: matchDecoded},
	{Name: "encoded", Match: matchEncoded},
	{Name: "substring", Match: matchSubstring},
	{Name: "filename", Match: matchFilename},
}

// IdentityMatchers 只包含不改变资源身份的编码变体，媒体请求路径使用它，
// 避免子串/文件名匹配把同名不同专辑的文件串用。
var IdentityMatchers = []Matcher{
	{Name: "decoded", Match: matchDecoded},
	{Name: "encoded", Match: matchEncoded},
}

func matchDecoded(query, stored string) bool {
	decoded, err := url.PathUnescape(query)
	if err != nil || decoded == query {
		return false
	}
	return stored == decoded
}

func matchEncoded(query, stored string) bool {
	encoded := encodeKey(query)
	if encoded == "" || encoded == query {
		return false
	}
	return stored == encoded
}

func matchSubstring(query, stored string) bool {
	if query == "" {
		return false
	}
	if strings.Contains(stored, query) {
		return true
	}
	decodedQuery, err1 := url.PathUnescape(query)
	decodedStored, err2 := url.PathUnescape(stored)
	if err1 != nil || err2 != nil || decodedQuery == "" {
		return false
	}
	return strings.Contains(decodedStored, decodedQuery)
}

func matchFilename(query, stored string) bool {
	name := Filename(query)
	if name == "" {
		return false
	}
	return Filename(stored) == name
}

// encodeKey 对路径部分做百分号编码，保留 scheme/host 等保留字符。
func encodeKey(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return parsed.String()
}
