package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// MediaFields 提供缓存 key/命中来源/Range 字段，供媒体请求日志复用。
func MediaFields(key, source, rangeHeader string, cacheHit bool) logrus.Fields {
	fields := logrus.Fields{
		"key":       key,
		"source":    source,
		"cache_hit": cacheHit,
	}
	if rangeHeader != "" {
		fields["range"] = rangeHeader
	}
	return fields
}
