package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/purpose168/gemchat-cn/internal/event"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "运行单个非交互式提示",
	Long: `在非交互模式下运行单个提示并退出。
提示可以作为参数提供或从标准输入管道传输。`,
	Example: `
# 运行简单提示
gemchat run Explain the use of context in Go

# 从标准输入管道输入
curl https://example.com | gemchat run "Summarize this website"

# 从文件读取
gemchat run "What is this code doing?" < main.go

# 指定模型运行
gemchat run -m gemini-2.5-pro "Write a haiku about channels"
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		model, _ := cmd.Flags().GetString("model")

		// 在 SIGINT 或 SIGTERM 信号时取消。
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer cancel()
		cmd.SetContext(ctx)

		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		if len(app.Config().KeyList()) == 0 {
			return fmt.Errorf("未配置 API 密钥 - 请设置 GEMINI_API_KEY 或在配置文件中填写 api_keys")
		}

		if model != "" {
			app.Config().Defaults.Model = model
		}

		prompt := strings.Join(args, " ")

		prompt, err = MaybePrependStdin(prompt)
		if err != nil {
			slog.Error("从标准输入读取失败", "error", err)
			return err
		}

		if prompt == "" {
			return fmt.Errorf("未提供提示")
		}

		event.AppInitialized()

		return app.RunPrompt(ctx, os.Stdout, prompt)
	},
}

func init() {
	runCmd.Flags().StringP("model", "m", "", "要使用的模型 ID，覆盖配置文件中的默认模型")
}
