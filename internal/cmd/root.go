// Package cmd 定义命令行入口与各子命令。
package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/purpose168/gemchat-cn/internal/app"
	"github.com/purpose168/gemchat-cn/internal/config"
	"github.com/purpose168/gemchat-cn/internal/db"
	"github.com/purpose168/gemchat-cn/internal/event"
	"github.com/purpose168/gemchat-cn/internal/log"
	"github.com/purpose168/gemchat-cn/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringP("data-dir", "D", "", "自定义 gemchat 数据目录")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "调试")
	rootCmd.Flags().BoolP("help", "h", false, "帮助")

	rootCmd.AddCommand(
		runCmd,
		sessionsCmd,
	)
}

var rootCmd = &cobra.Command{
	Use:   "gemchat",
	Short: "Gemini 聊天会话协调器",
	Long:  "管理 Gemini 对话会话：发送提示、流式接收响应、编辑重试与自动命名",
	Example: `
# 运行单个提示
gemchat run "用一句话解释 Go 的 context"

# 启用调试日志运行
gemchat -d run "hello"

# 使用自定义数据目录
gemchat -D /path/to/custom/.gemchat run "hello"

# 列出所有会话
gemchat sessions

# 打印版本
gemchat -v
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute 运行命令行入口
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// setupApp 处理各子命令共用的初始化逻辑。
// 加载配置、初始化日志、连接数据库并组装应用实例。
func setupApp(cmd *cobra.Command) (*app.App, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	ctx := cmd.Context()

	cfg, err := config.Load(dataDir, debug)
	if err != nil {
		return nil, err
	}

	log.Setup(filepath.Join(cfg.DataDir(), "logs", "gemchat.log"), cfg.Options.Debug)

	// 连接到数据库；这也会运行迁移。
	conn, err := db.Connect(ctx, cfg.DataDir())
	if err != nil {
		return nil, err
	}

	appInstance, err := app.New(ctx, conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}

	if metricsEnabled() {
		event.Init()
	}

	return appInstance, nil
}

// metricsEnabled 检查是否启用匿名使用统计
func metricsEnabled() bool {
	if v, _ := strconv.ParseBool(os.Getenv("GEMCHAT_DISABLE_METRICS")); v {
		return false
	}
	if v, _ := strconv.ParseBool(os.Getenv("DO_NOT_TRACK")); v {
		return false
	}
	return true
}

// MaybePrependStdin 当标准输入来自管道或文件时，将其内容前置到提示词
func MaybePrependStdin(prompt string) (string, error) {
	if term.IsTerminal(os.Stdin.Fd()) {
		return prompt, nil
	}
	fi, err := os.Stdin.Stat()
	if err != nil {
		return prompt, err
	}
	// 检查标准输入是否为命名管道（|）或常规文件（<）。
	if fi.Mode()&os.ModeNamedPipe == 0 && !fi.Mode().IsRegular() {
		return prompt, nil
	}
	bts, err := io.ReadAll(os.Stdin)
	if err != nil {
		return prompt, err
	}
	if len(bts) == 0 {
		return prompt, nil
	}
	return string(bts) + "\n\n" + prompt, nil
}
