package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "列出所有会话",
	Long:  "按最后活动时间倒序列出所有会话及其令牌用量。",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer app.Shutdown()

		sessions, err := app.Sessions.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("获取会话列表失败: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Println("暂无会话")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
		fmt.Fprintln(w, "ID\t标题\t模型\t消息\t令牌\t最后活动")
		for _, sess := range sessions {
			model := sess.Settings.Model
			if model == "" {
				model = app.Config().Model()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
				sess.ID,
				sess.Title,
				model,
				sess.MessageCount,
				sess.TotalTokens,
				humanize.Time(time.Unix(sess.UpdatedAt, 0)),
			)
		}
		return w.Flush()
	},
}
