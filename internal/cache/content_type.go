package cache

import "strings"

// InferContentType 根据文件扩展名推断音频内容类型，无法识别时返回空串。
func InferContentType(key string) string {
	name := strings.ToLower(Filename(key))
	switch {
	case strings.HasSuffix(name, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(name, ".m4a"), strings.HasSuffix(name, ".mp4"), strings.HasSuffix(name, ".aac"):
		return "audio/mp4"
	case strings.HasSuffix(name, ".ogg"), strings.HasSuffix(name, ".oga"), strings.HasSuffix(name, ".opus"):
		return "audio/ogg"
	case strings.HasSuffix(name, ".flac"):
		return "audio/flac"
	case strings.HasSuffix(name, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(name, ".webm"):
		return "audio/webm"
	}
	return ""
}
