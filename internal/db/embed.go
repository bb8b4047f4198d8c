// Package db 提供数据库相关的功能
// 本文件使用 embed 指令将数据库迁移 SQL 文件嵌入到二进制文件中
package db

import "embed"

// 将 migrations 目录下的所有 .sql 迁移脚本嵌入到程序中
//
//go:embed migrations/*.sql
var FS embed.FS
