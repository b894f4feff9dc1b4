package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "20s"、"1m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述运行时行为：监听、日志、缓存目录以及回源/落盘策略。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	StoragePath   string `mapstructure:"StoragePath"`
	StoreVersion  string `mapstructure:"StoreVersion"`
}

// MediaConfig 决定媒体请求如何映射到上游以及何时落盘。
type MediaConfig struct {
	Upstream          string   `mapstructure:"Upstream"`
	MediaPrefix       string   `mapstructure:"MediaPrefix"`
	FetchTimeout      Duration `mapstructure:"FetchTimeout"`
	RetryTimeout      Duration `mapstructure:"RetryTimeout"`
	FullFileThreshold int64    `mapstructure:"FullFileThreshold"`
	PlaybackReferrers []string `mapstructure:"PlaybackReferrers"`
	EventBuffer       int      `mapstructure:"EventBuffer"`
}

// Config 是 TOML 文件映射的整体结构，所有键位于顶层。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Media  MediaConfig  `mapstructure:",squash"`
}
