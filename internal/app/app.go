// Package app 负责连接服务、协调生成并管理应用程序生命周期。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/purpose168/gemchat-cn/internal/config"
	"github.com/purpose168/gemchat-cn/internal/csync"
	"github.com/purpose168/gemchat-cn/internal/db"
	"github.com/purpose168/gemchat-cn/internal/event"
	"github.com/purpose168/gemchat-cn/internal/gemini"
	"github.com/purpose168/gemchat-cn/internal/generation"
	"github.com/purpose168/gemchat-cn/internal/keyring"
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/pubsub"
	"github.com/purpose168/gemchat-cn/internal/session"
	"github.com/purpose168/gemchat-cn/internal/upload"
)

const (
	// defaultMaxStreams 全局并发流式请求的默认上限
	defaultMaxStreams = 4
	// defaultStreamTimeout 单个流式请求的默认硬超时
	defaultStreamTimeout = 5 * time.Minute
)

// Notifier 在后台会话的生成完成时收到通知
// 客户端可据此发送系统通知
type Notifier func(sessionID, title string)

// App 聚合全部服务并管理它们的生命周期
type App struct {
	Sessions    session.Service
	Messages    message.Service
	Uploads     *upload.Service
	Coordinator *generation.Coordinator
	Titler      *generation.Titler
	Keys        *keyring.Rotator

	config *config.Config

	serviceEventsWG *sync.WaitGroup
	events          chan any
	notifier        *csync.Value[Notifier]

	// 全局上下文与清理函数
	globalCtx    context.Context
	cleanupFuncs *csync.Slice[func(context.Context) error]
}

// New 初始化一个新的应用程序实例。
func New(ctx context.Context, conn *sql.DB, cfg *config.Config) (*App, error) {
	q := db.New(conn)
	sessions := session.NewService(q)
	messages := message.NewService(q)
	keys := keyring.NewRotator(cfg.KeyList(), q)
	transport := gemini.NewTransport()
	uploads := upload.NewService(transport, keys)

	maxStreams := int64(cfg.Options.MaxConcurrentStreams)
	if maxStreams <= 0 {
		maxStreams = defaultMaxStreams
	}
	timeout := time.Duration(cfg.Options.StreamTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultStreamTimeout
	}
	scheduler := generation.NewScheduler(maxStreams, timeout, cfg.Options.StreamRetries)
	registry := generation.NewRegistry()
	registry.StartGC(ctx)

	coordinator := generation.NewCoordinator(cfg, registry, scheduler, transport, keys, sessions, messages, uploads)
	titler := generation.NewTitler(cfg, transport, keys, sessions, messages)
	titler.Start(ctx)

	app := &App{
		Sessions:    sessions,
		Messages:    messages,
		Uploads:     uploads,
		Coordinator: coordinator,
		Titler:      titler,
		Keys:        keys,

		globalCtx: ctx,

		config: cfg,

		events:          make(chan any, 100),
		serviceEventsWG: &sync.WaitGroup{},
		notifier:        csync.NewValue[Notifier](nil),
		cleanupFuncs:    csync.NewSlice[func(context.Context) error](),
	}

	app.setupEvents()

	// 应用关闭时清理数据库连接
	app.cleanupFuncs.Append(func(context.Context) error { return conn.Close() })

	return app, nil
}

// Config 返回应用程序配置。
func (app *App) Config() *config.Config {
	return app.config
}

// Events 返回聚合后的服务事件通道。
func (app *App) Events() <-chan any {
	return app.events
}

// SetNotifier 设置后台生成完成时的通知回调。
func (app *App) SetNotifier(n Notifier) {
	app.notifier.Set(n)
}

// RunPrompt 以一次性模式发送提示词并将响应流式输出到 output。
// 为本次运行创建新会话，生成结束后返回。
func (app *App) RunPrompt(ctx context.Context, output io.Writer, prompt string) error {
	slog.Info("以一次性模式运行")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	const maxPromptLengthForTitle = 100
	title := prompt
	if len(title) > maxPromptLengthForTitle {
		title = title[:maxPromptLengthForTitle] + "..."
	}

	sess, err := app.Sessions.Create(ctx, title)
	if err != nil {
		return fmt.Errorf("为一次性运行创建会话失败: %w", err)
	}
	slog.Info("为一次性运行创建会话", "session_id", sess.ID)

	messageEvents := app.Messages.Subscribe(ctx)
	registryEvents := app.Coordinator.Registry().Subscribe(ctx)

	genID, err := app.Coordinator.Send(ctx, sess.ID, prompt, nil)
	if err != nil {
		return fmt.Errorf("发起生成失败: %w", err)
	}
	event.PromptSent("模式", "一次性")

	messageReadBytes := make(map[string]int)
	var printed bool

	defer func() {
		// 结尾补一个换行，避免终端提示符覆盖最后一行输出
		_, _ = fmt.Fprintln(output)
	}()

	for {
		select {
		case ev := <-registryEvents:
			if ev.Type == pubsub.DeletedEvent && ev.Payload.ID == genID {
				// 任务收尾后可能还有最后一次消息更新事件在途，稍作排空
				app.drainFinalOutput(ctx, messageEvents, sess.ID, messageReadBytes, output, &printed)
				return nil
			}

		case ev := <-messageEvents:
			writeDelta(ev.Payload, sess.ID, messageReadBytes, output, &printed)

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drainFinalOutput 在生成结束后短暂排空剩余的消息事件
func (app *App) drainFinalOutput(ctx context.Context, events <-chan pubsub.Event[message.Message], sessionID string, readBytes map[string]int, output io.Writer, printed *bool) {
	timer := time.NewTimer(200 * time.Millisecond)
	defer timer.Stop()
	for {
		select {
		case ev := <-events:
			writeDelta(ev.Payload, sessionID, readBytes, output, printed)
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

// writeDelta 将模型消息的未输出部分写到 output
func writeDelta(msg message.Message, sessionID string, readBytes map[string]int, output io.Writer, printed *bool) {
	if msg.SessionID != sessionID || msg.Role != message.Model || len(msg.Parts) == 0 {
		return
	}
	content := msg.Content().String()
	read := readBytes[msg.ID]
	if len(content) <= read {
		return
	}
	part := content[read:]
	// 去掉开头的空白，模型偶尔会以缩进开头
	if read == 0 {
		part = strings.TrimLeft(part, " \t\n")
	}
	if *printed || strings.TrimSpace(part) != "" {
		*printed = true
		fmt.Fprint(output, part)
	}
	readBytes[msg.ID] = len(content)
}

// setupEvents 将各服务的事件汇聚到统一通道
func (app *App) setupEvents() {
	ctx, cancel := context.WithCancel(app.globalCtx)
	setupSubscriber(ctx, app.serviceEventsWG, "sessions", app.Sessions.Subscribe, app.events)
	setupSubscriber(ctx, app.serviceEventsWG, "messages", app.Messages.Subscribe, app.events)
	setupSubscriber(ctx, app.serviceEventsWG, "uploads", app.Uploads.Subscribe, app.events)
	setupSubscriber(ctx, app.serviceEventsWG, "generations", app.Coordinator.Registry().Subscribe, app.events)
	go app.watchCompletions(ctx)
	cleanupFunc := func(context.Context) error {
		cancel()
		app.serviceEventsWG.Wait()
		return nil
	}
	app.cleanupFuncs.Append(cleanupFunc)
}

// watchCompletions 监听生成结束事件并触发后台完成通知
func (app *App) watchCompletions(ctx context.Context) {
	if !app.config.NotificationsEnabled() {
		return
	}
	for ev := range app.Coordinator.Registry().Subscribe(ctx) {
		if ev.Type != pubsub.DeletedEvent {
			continue
		}
		notifier := app.notifier.Get()
		if notifier == nil {
			continue
		}
		active, err := app.Sessions.GetActive(ctx)
		if err != nil || active == ev.Payload.SessionID {
			continue
		}
		sess, err := app.Sessions.Get(ctx, ev.Payload.SessionID)
		if err != nil {
			continue
		}
		notifier(sess.ID, sess.Title)
	}
}

const subscriberSendTimeout = 2 * time.Second

func setupSubscriber[T any](
	ctx context.Context,
	wg *sync.WaitGroup,
	name string,
	subscriber func(context.Context) <-chan pubsub.Event[T],
	outputCh chan<- any,
) {
	wg.Go(func() {
		subCh := subscriber(ctx)
		sendTimer := time.NewTimer(0)
		<-sendTimer.C
		defer sendTimer.Stop()

		for {
			select {
			case event, ok := <-subCh:
				if !ok {
					slog.Debug("订阅通道已关闭", "name", name)
					return
				}
				var msg any = event
				if !sendTimer.Stop() {
					select {
					case <-sendTimer.C:
					default:
					}
				}
				sendTimer.Reset(subscriberSendTimeout)

				select {
				case outputCh <- msg:
				case <-sendTimer.C:
					slog.Debug("消息因消费者缓慢而丢弃", "name", name)
				case <-ctx.Done():
					slog.Debug("订阅已取消", "name", name)
					return
				}
			case <-ctx.Done():
				slog.Debug("订阅已取消", "name", name)
				return
			}
		}
	})
}

// Shutdown 执行应用程序的优雅关闭。
func (app *App) Shutdown() {
	start := time.Now()
	defer func() { slog.Debug("关闭耗时 " + time.Since(start).String()) }()

	// 先取消所有生成任务并等待收尾写入完成，再关闭数据库
	app.Coordinator.CancelAll()
	app.Coordinator.Drain(2 * time.Second)

	var wg sync.WaitGroup

	// 所有有超时限制的清理任务共享的关闭上下文。
	shutdownCtx, cancel := context.WithTimeout(app.globalCtx, 5*time.Second)
	defer cancel()

	// 发送退出事件
	wg.Go(func() {
		event.AppExited()
	})

	// 调用所有清理函数。
	for cleanup := range app.cleanupFuncs.Seq() {
		if cleanup != nil {
			wg.Go(func() {
				if err := cleanup(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
					slog.Error("应用程序关闭时清理失败", "error", err)
				}
			})
		}
	}
	wg.Wait()
}
