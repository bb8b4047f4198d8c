package generation

import (
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/purpose168/gemchat-cn/internal/config"
	"github.com/purpose168/gemchat-cn/internal/db"
	"github.com/purpose168/gemchat-cn/internal/gemini"
	"github.com/purpose168/gemchat-cn/internal/keyring"
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/session"
	"github.com/purpose168/gemchat-cn/internal/upload"
	"github.com/stretchr/testify/require"
)

// fakeStore 内存版数据访问实现，供协调器测试使用
// 生成流程的落库都经过真实的消息与会话服务，只有底层存储被替换
type fakeStore struct {
	db.Querier

	mu       sync.Mutex
	sessions map[string]db.Session
	messages map[string]db.Message
	state    map[string]string
	usage    map[string]int64
	clock    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]db.Session),
		messages: make(map[string]db.Message),
		state:    make(map[string]string),
		usage:    make(map[string]int64),
		clock:    1000,
	}
}

// tick 单调递增的假时钟（秒），模拟 SQL 中的 strftime('%s','now')
func (f *fakeStore) tick() int64 {
	f.clock++
	return f.clock
}

func (f *fakeStore) CreateSession(ctx context.Context, arg db.CreateSessionParams) (db.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.tick()
	item := db.Session{
		ID:        arg.ID,
		Title:     arg.Title,
		Settings:  arg.Settings,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.sessions[arg.ID] = item
	return item, nil
}

func (f *fakeStore) GetSessionByID(ctx context.Context, id string) (db.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.sessions[id]
	if !ok {
		return db.Session{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) UpdateSession(ctx context.Context, arg db.UpdateSessionParams) (db.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.sessions[arg.ID]
	if !ok {
		return db.Session{}, sql.ErrNoRows
	}
	item.Title = arg.Title
	item.Settings = arg.Settings
	item.PromptTokens = arg.PromptTokens
	item.CompletionTokens = arg.CompletionTokens
	item.TotalTokens = arg.TotalTokens
	item.UpdatedAt = arg.UpdatedAt
	f.sessions[arg.ID] = item
	return item, nil
}

func (f *fakeStore) DeleteSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

func (f *fakeStore) CreateMessage(ctx context.Context, arg db.CreateMessageParams) (db.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := db.Message{
		ID:           arg.ID,
		SessionID:    arg.SessionID,
		Role:         arg.Role,
		Parts:        arg.Parts,
		GenerationID: arg.GenerationID,
		StartedAt:    arg.StartedAt,
		CreatedAt:    arg.CreatedAt,
		UpdatedAt:    arg.UpdatedAt,
	}
	f.messages[arg.ID] = item
	if sess, ok := f.sessions[arg.SessionID]; ok {
		sess.MessageCount++
		f.sessions[arg.SessionID] = sess
	}
	return item, nil
}

func (f *fakeStore) GetMessage(ctx context.Context, id string) (db.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.messages[id]
	if !ok {
		return db.Message{}, sql.ErrNoRows
	}
	return item, nil
}

func (f *fakeStore) ListMessagesBySession(ctx context.Context, sessionID string) ([]db.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items := []db.Message{}
	for _, item := range f.messages {
		if item.SessionID == sessionID {
			items = append(items, item)
		}
	}
	slices.SortFunc(items, func(a, b db.Message) int {
		if a.CreatedAt != b.CreatedAt {
			return int(a.CreatedAt - b.CreatedAt)
		}
		return strings.Compare(a.ID, b.ID)
	})
	return items, nil
}

func (f *fakeStore) UpdateMessage(ctx context.Context, arg db.UpdateMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.messages[arg.ID]
	if !ok {
		return sql.ErrNoRows
	}
	item.Role = arg.Role
	item.Parts = arg.Parts
	item.FinishedAt = arg.FinishedAt
	item.ThinkingMs = arg.ThinkingMs
	item.PromptTokens = arg.PromptTokens
	item.CompletionTokens = arg.CompletionTokens
	item.TotalTokens = arg.TotalTokens
	item.CumulativeTokens = arg.CumulativeTokens
	item.Versions = arg.Versions
	item.ActiveVersion = arg.ActiveVersion
	item.UpdatedAt = arg.UpdatedAt
	f.messages[arg.ID] = item
	return nil
}

func (f *fakeStore) DeleteMessage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.messages[id]; ok {
		if sess, sok := f.sessions[item.SessionID]; sok {
			sess.MessageCount--
			f.sessions[item.SessionID] = sess
		}
	}
	delete(f.messages, id)
	return nil
}

func (f *fakeStore) DeleteSessionMessages(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, item := range f.messages {
		if item.SessionID == sessionID {
			delete(f.messages, id)
		}
	}
	return nil
}

func (f *fakeStore) GetAppState(ctx context.Context, key string) (db.AppState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.state[key]
	if !ok {
		return db.AppState{}, sql.ErrNoRows
	}
	return db.AppState{Key: key, Value: value}, nil
}

func (f *fakeStore) SetAppState(ctx context.Context, arg db.SetAppStateParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state[arg.Key] = arg.Value
	return nil
}

func (f *fakeStore) IncrementKeyUsage(ctx context.Context, digest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage[digest]++
	return nil
}

// 编译时检查 fakeTransport 实现了 gemini.Transport 接口
var _ gemini.Transport = (*fakeTransport)(nil)

// fakeTransport 可编程的传输层替身
// 未设置的函数返回无害的默认值
type fakeTransport struct {
	sendStream     func(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error)
	generateImages func(ctx context.Context, apiKey, model, prompt string, count int) ([]message.ImageContent, error)
	editImage      func(ctx context.Context, apiKey, model, prompt string, sources []message.FileContent) ([]message.ImageContent, error)
	generateSpeech func(ctx context.Context, apiKey, model, text, voice string) (message.AudioContent, error)
	generateTitle  func(ctx context.Context, apiKey, model, userText, modelText string) (string, error)
	uploadFile     func(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error)
}

func (f *fakeTransport) SendStream(ctx context.Context, req gemini.Request, handler gemini.StreamHandler) (string, error) {
	if f.sendStream != nil {
		return f.sendStream(ctx, req, handler)
	}
	handler.HandleTextDelta("ok")
	return "STOP", nil
}

func (f *fakeTransport) SendOnce(ctx context.Context, req gemini.Request) (gemini.Result, error) {
	return gemini.Result{Parts: []message.ContentPart{message.TextContent{Text: "ok"}}}, nil
}

func (f *fakeTransport) GenerateImages(ctx context.Context, apiKey, model, prompt string, count int) ([]message.ImageContent, error) {
	if f.generateImages != nil {
		return f.generateImages(ctx, apiKey, model, prompt, count)
	}
	images := make([]message.ImageContent, count)
	for i := range images {
		images[i] = message.ImageContent{MIMEType: "image/png", Data: []byte{0x89}}
	}
	return images, nil
}

func (f *fakeTransport) EditImage(ctx context.Context, apiKey, model, prompt string, sources []message.FileContent) ([]message.ImageContent, error) {
	if f.editImage != nil {
		return f.editImage(ctx, apiKey, model, prompt, sources)
	}
	return []message.ImageContent{{MIMEType: "image/png", Data: []byte{0x89}}}, nil
}

func (f *fakeTransport) GenerateSpeech(ctx context.Context, apiKey, model, text, voice string) (message.AudioContent, error) {
	if f.generateSpeech != nil {
		return f.generateSpeech(ctx, apiKey, model, text, voice)
	}
	return message.AudioContent{MIMEType: "audio/pcm", Data: []byte{1}, Voice: voice}, nil
}

func (f *fakeTransport) GenerateTitle(ctx context.Context, apiKey, model, userText, modelText string) (string, error) {
	if f.generateTitle != nil {
		return f.generateTitle(ctx, apiKey, model, userText, modelText)
	}
	return "Generated title", nil
}

func (f *fakeTransport) GenerateSuggestions(ctx context.Context, apiKey, model string, history []message.Message) ([]string, error) {
	return []string{"What about X?", "How does Y work?", "Why Z?"}, nil
}

func (f *fakeTransport) TranscribeAudio(ctx context.Context, apiKey, model string, audio message.Attachment) (string, error) {
	return "transcribed", nil
}

func (f *fakeTransport) TranslateText(ctx context.Context, apiKey, model, text, targetLanguage string) (string, error) {
	return "translated", nil
}

func (f *fakeTransport) UploadFile(ctx context.Context, apiKey string, attachment message.Attachment, onState func(message.FileContent)) (message.FileContent, error) {
	if f.uploadFile != nil {
		return f.uploadFile(ctx, apiKey, attachment, onState)
	}
	file := message.FileContent{
		Name:     "files/fake",
		FileName: attachment.FileName,
		MIMEType: attachment.MimeType,
		URI:      "https://files.example/fake",
		Size:     int64(len(attachment.Content)),
		State:    message.UploadActive,
	}
	onState(file)
	return file, nil
}

// testEnv 协调器测试环境
type testEnv struct {
	cfg         *config.Config
	store       *fakeStore
	transport   *fakeTransport
	registry    *Registry
	sessions    session.Service
	messages    message.Service
	coordinator *Coordinator
	titler      *Titler
}

func newTestEnv(t *testing.T, transport *fakeTransport) *testEnv {
	t.Helper()
	return newTestEnvWithKeys(t, transport, []string{"test-key-1", "test-key-2"})
}

func newTestEnvWithKeys(t *testing.T, transport *fakeTransport, apiKeys []string) *testEnv {
	t.Helper()

	store := newFakeStore()
	cfg := &config.Config{}
	sessions := session.NewService(store)
	messages := message.NewService(store)
	keys := keyring.NewRotator(apiKeys, store)
	uploads := upload.NewService(transport, keys)
	registry := NewRegistry()
	t.Cleanup(registry.Shutdown)
	scheduler := NewScheduler(4, 0, 0)

	return &testEnv{
		cfg:         cfg,
		store:       store,
		transport:   transport,
		registry:    registry,
		sessions:    sessions,
		messages:    messages,
		coordinator: NewCoordinator(cfg, registry, scheduler, transport, keys, sessions, messages, uploads),
		titler:      NewTitler(cfg, transport, keys, sessions, messages),
	}
}

// sessionSettingsWithModel 构造只指定模型的会话配置
func sessionSettingsWithModel(model string) session.Settings {
	return session.Settings{Model: model}
}

// waitGeneration 等待生成任务结束并返回对应的模型消息
func (e *testEnv) waitGeneration(t *testing.T, sessionID, genID string) message.Message {
	t.Helper()
	var got message.Message
	require.Eventually(t, func() bool {
		if e.registry.IsSessionLoading(sessionID) {
			return false
		}
		msgs, err := e.messages.List(context.Background(), sessionID)
		if err != nil {
			return false
		}
		for _, msg := range msgs {
			if msg.GenerationID == genID && msg.IsFinished() {
				got = msg
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
	return got
}
