package main

import (
	"fmt"

	"github.com/any-hub/tunecache/internal/version"
)

// printVersion 输出注入的版本、提交信息与缓存格式。
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
	fmt.Fprintf(stdOut, "store format: %s\n", version.StoreFormat)
}
