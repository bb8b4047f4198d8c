package version

import "runtime/debug"

// 构建时通过 -ldflags 设置的参数

// Version 存储应用程序的版本号
// 默认值为 "devel"，会在构建时通过 -ldflags 覆盖
var Version = "devel"

// 当用户使用 `go install` 安装且没有 -ldflags 参数时，
// 回退到嵌入式构建信息中的模块版本号
func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	mainVersion := info.Main.Version
	if mainVersion != "" && mainVersion != "(devel)" {
		Version = mainVersion
	}
}
