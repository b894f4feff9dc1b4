package version

import "fmt"

// Version/Commit 可在构建时通过 -ldflags 注入，默认使用开发占位符。
var (
	Version = "0.1.0"
	Commit  = "dev"
)

// StoreFormat 标记磁盘缓存的格式版本；与 VERSION 文件不一致时启动会整体清空旧缓存。
const StoreFormat = "tunecache-store-v1"

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("tunecache %s (%s)", Version, Commit)
}
