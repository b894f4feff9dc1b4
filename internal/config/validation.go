package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("StoragePath", "不能为空")
	}
	if strings.TrimSpace(g.StoreVersion) == "" {
		return newFieldError("StoreVersion", "不能为空")
	}

	m := c.Media
	if err := validateUpstream(m.Upstream); err != nil {
		return fmt.Errorf("Upstream: %w", err)
	}
	if !strings.HasPrefix(m.MediaPrefix, "/") || m.MediaPrefix == "/" {
		return newFieldError("MediaPrefix", "必须是非根路径，例如 /media")
	}
	if strings.HasPrefix(m.MediaPrefix, "/-") {
		return newFieldError("MediaPrefix", "不能与 /-/ 控制路径冲突")
	}
	if m.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("FetchTimeout", "必须大于 0")
	}
	if m.RetryTimeout.DurationValue() <= 0 {
		return newFieldError("RetryTimeout", "必须大于 0")
	}
	if m.FullFileThreshold <= 0 {
		return newFieldError("FullFileThreshold", "必须大于 0")
	}
	if m.EventBuffer < 0 {
		return newFieldError("EventBuffer", "不能为负数")
	}
	return nil
}

func validateUpstream(raw string) error {
	if raw == "" {
		return errors.New("缺少上游地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，上游: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("上游缺少 Host: %s", raw)
	}
	return nil
}
