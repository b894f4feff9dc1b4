package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/any-hub/tunecache/internal/policy"
	"github.com/any-hub/tunecache/internal/version"
)

const (
	defaultFetchTimeout = 20 * time.Second
	defaultRetryTimeout = 15 * time.Second
	defaultMediaPrefix  = "/media"
	defaultEventBuffer  = 16
)

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyMediaDefaults(&cfg.Media)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("StoreVersion", version.StoreFormat)
	v.SetDefault("MediaPrefix", defaultMediaPrefix)
	v.SetDefault("FetchTimeout", "20s")
	v.SetDefault("RetryTimeout", "15s")
	v.SetDefault("FullFileThreshold", policy.DefaultFullFileThreshold)
	v.SetDefault("EventBuffer", defaultEventBuffer)
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if strings.TrimSpace(g.LogLevel) == "" {
		g.LogLevel = "info"
	}
	if strings.TrimSpace(g.StoreVersion) == "" {
		g.StoreVersion = version.StoreFormat
	}
}

func applyMediaDefaults(m *MediaConfig) {
	m.Upstream = strings.TrimRight(strings.TrimSpace(m.Upstream), "/")
	prefix := strings.TrimSpace(m.MediaPrefix)
	if prefix == "" {
		prefix = defaultMediaPrefix
	}
	m.MediaPrefix = "/" + strings.Trim(prefix, "/")
	if m.FetchTimeout.DurationValue() == 0 {
		m.FetchTimeout = Duration(defaultFetchTimeout)
	}
	if m.RetryTimeout.DurationValue() == 0 {
		m.RetryTimeout = Duration(defaultRetryTimeout)
	}
	if m.FullFileThreshold == 0 {
		m.FullFileThreshold = policy.DefaultFullFileThreshold
	}
	if len(m.PlaybackReferrers) == 0 {
		m.PlaybackReferrers = append([]string(nil), policy.DefaultPlaybackReferrers...)
	}
	if m.EventBuffer == 0 {
		m.EventBuffer = defaultEventBuffer
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
