// Package session 提供会话管理服务，包括会话的创建、保存、查询和删除功能
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/purpose168/gemchat-cn/internal/db"
	"github.com/purpose168/gemchat-cn/internal/event"
	"github.com/purpose168/gemchat-cn/internal/pubsub"
)

// activeSessionKey 应用状态表中记录当前激活会话的键
const activeSessionKey = "active_session"

// DefaultTitle 新会话的默认标题，自动命名在首个往返完成后替换它
const DefaultTitle = "New chat"

// Settings 表示会话级的生成配置
// 所有字段均可为空，为空时使用应用级默认值
type Settings struct {
	// Model 包含会话使用的模型名称
	Model string `json:"model,omitempty"`
	// SystemInstruction 包含系统指令
	SystemInstruction string `json:"system_instruction,omitempty"`
	// Temperature 包含采样温度
	Temperature *float64 `json:"temperature,omitempty"`
	// TopP 包含核采样参数
	TopP *float64 `json:"top_p,omitempty"`
	// ThinkingBudget 包含思考令牌预算，nil 表示由模型自行决定
	ThinkingBudget *int32 `json:"thinking_budget,omitempty"`
	// MaxOutputTokens 包含最大输出令牌数
	MaxOutputTokens *int32 `json:"max_output_tokens,omitempty"`
	// UseGoogleSearch 表示是否启用搜索溯源工具
	UseGoogleSearch bool `json:"use_google_search,omitempty"`
	// UseCodeExecution 表示是否启用代码执行工具
	UseCodeExecution bool `json:"use_code_execution,omitempty"`
	// UseURLContext 表示是否启用 URL 上下文工具
	UseURLContext bool `json:"use_url_context,omitempty"`
	// Voice 包含语音合成所用的语音名称
	Voice string `json:"voice,omitempty"`
	// LockedAPIKey 包含会话锁定的 API 密钥，首次生成时写入且不再更改
	LockedAPIKey string `json:"locked_api_key,omitempty"`
}

// Session 表示一个对话会话
type Session struct {
	// ID 包含会话的唯一标识符
	ID string
	// Title 包含会话标题
	Title string
	// Settings 包含会话级生成配置
	Settings Settings
	// MessageCount 包含会话内的消息数量
	MessageCount int64
	// PromptTokens 包含会话累计的提示词令牌数
	PromptTokens int64
	// CompletionTokens 包含会话累计的完成令牌数
	CompletionTokens int64
	// TotalTokens 包含会话累计的总令牌数
	TotalTokens int64
	// CreatedAt 包含会话创建时间戳（Unix秒）
	CreatedAt int64
	// UpdatedAt 包含会话最后活动时间戳（Unix秒），作为列表排序键
	UpdatedAt int64
}

// Service 会话服务接口，定义了会话管理的核心操作
type Service interface {
	pubsub.Subscriber[Session]
	// Create 创建新会话
	Create(ctx context.Context, title string) (Session, error)
	// CreateWithSettings 以指定配置创建新会话
	CreateWithSettings(ctx context.Context, title string, settings Settings) (Session, error)
	// Get 根据ID获取会话
	Get(ctx context.Context, id string) (Session, error)
	// List 按最后活动时间倒序列出所有会话
	List(ctx context.Context) ([]Session, error)
	// Save 保存会话并刷新最后活动时间
	Save(ctx context.Context, session Session) (Session, error)
	// SaveSettings 保存会话但保留最后活动时间
	// 用于不构成会话活动的配置修改，不影响列表排序
	SaveSettings(ctx context.Context, session Session) (Session, error)
	// LockAPIKey 锁定会话使用的 API 密钥，仅首次调用生效
	LockAPIKey(ctx context.Context, id string, key string) (Session, error)
	// NotifyMilestone 发布会话完成首个往返的里程碑事件
	NotifyMilestone(session Session)
	// Delete 删除会话及其全部消息
	Delete(ctx context.Context, id string) error
	// GetActive 获取当前激活的会话ID，未设置时返回空字符串
	GetActive(ctx context.Context) (string, error)
	// SetActive 设置当前激活的会话ID
	SetActive(ctx context.Context, id string) error
}

// service 会话服务的具体实现
type service struct {
	*pubsub.Broker[Session]
	q db.Querier
}

// NewService 创建新的会话服务实例
func NewService(q db.Querier) Service {
	return &service{
		Broker: pubsub.NewBroker[Session](),
		q:      q,
	}
}

// Create 创建新会话
func (s *service) Create(ctx context.Context, title string) (Session, error) {
	return s.CreateWithSettings(ctx, title, Settings{})
}

// CreateWithSettings 以指定配置创建新会话
func (s *service) CreateWithSettings(ctx context.Context, title string, settings Settings) (Session, error) {
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return Session{}, err
	}
	dbSession, err := s.q.CreateSession(ctx, db.CreateSessionParams{
		ID:       uuid.New().String(),
		Title:    title,
		Settings: string(settingsJSON),
	})
	if err != nil {
		return Session{}, err
	}
	session, err := s.fromDBItem(dbSession)
	if err != nil {
		return Session{}, err
	}
	s.Publish(pubsub.CreatedEvent, session)
	event.SessionCreated()
	return session, nil
}

// Get 根据ID获取会话
func (s *service) Get(ctx context.Context, id string) (Session, error) {
	dbSession, err := s.q.GetSessionByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	return s.fromDBItem(dbSession)
}

// List 按最后活动时间倒序列出所有会话
func (s *service) List(ctx context.Context) ([]Session, error) {
	dbSessions, err := s.q.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, len(dbSessions))
	for i, dbSession := range dbSessions {
		sessions[i], err = s.fromDBItem(dbSession)
		if err != nil {
			return nil, err
		}
	}
	return sessions, nil
}

// Save 保存会话并刷新最后活动时间
func (s *service) Save(ctx context.Context, session Session) (Session, error) {
	return s.save(ctx, session, true)
}

// SaveSettings 保存会话但保留最后活动时间
func (s *service) SaveSettings(ctx context.Context, session Session) (Session, error) {
	return s.save(ctx, session, false)
}

// save 会话的唯一写入入口
// touch 为 true 时刷新最后活动时间，否则保留现有时间戳
func (s *service) save(ctx context.Context, session Session, touch bool) (Session, error) {
	// 锁定的密钥只写入一次，后续写入保留既有值
	existing, err := s.Get(ctx, session.ID)
	if err != nil {
		return Session{}, err
	}
	if existing.Settings.LockedAPIKey != "" {
		session.Settings.LockedAPIKey = existing.Settings.LockedAPIKey
	}
	settingsJSON, err := json.Marshal(session.Settings)
	if err != nil {
		return Session{}, err
	}
	updatedAt := existing.UpdatedAt
	if touch {
		updatedAt = time.Now().Unix()
	}
	dbSession, err := s.q.UpdateSession(ctx, db.UpdateSessionParams{
		Title:            session.Title,
		Settings:         string(settingsJSON),
		PromptTokens:     session.PromptTokens,
		CompletionTokens: session.CompletionTokens,
		TotalTokens:      session.TotalTokens,
		UpdatedAt:        updatedAt,
		ID:               session.ID,
	})
	if err != nil {
		return Session{}, err
	}
	saved, err := s.fromDBItem(dbSession)
	if err != nil {
		return Session{}, err
	}
	s.Publish(pubsub.UpdatedEvent, saved)
	return saved, nil
}

// LockAPIKey 锁定会话使用的 API 密钥，仅首次调用生效
func (s *service) LockAPIKey(ctx context.Context, id string, key string) (Session, error) {
	session, err := s.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if session.Settings.LockedAPIKey != "" {
		return session, nil
	}
	session.Settings.LockedAPIKey = key
	return s.SaveSettings(ctx, session)
}

// NotifyMilestone 发布会话完成首个往返的里程碑事件
// 由生成收尾流程在首个往返落库后调用，自动命名器消费该事件
func (s *service) NotifyMilestone(session Session) {
	s.Publish(pubsub.MilestoneEvent, session)
}

// Delete 删除会话及其全部消息
func (s *service) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	// 先显式清理消息再删除会话，不依赖外键级联配置
	if err := s.q.DeleteSessionMessages(ctx, id); err != nil {
		return err
	}
	if err := s.q.DeleteSession(ctx, session.ID); err != nil {
		return err
	}
	s.Publish(pubsub.DeletedEvent, session)
	event.SessionDeleted()
	return nil
}

// GetActive 获取当前激活的会话ID，未设置时返回空字符串
func (s *service) GetActive(ctx context.Context) (string, error) {
	state, err := s.q.GetAppState(ctx, activeSessionKey)
	if err != nil {
		// 从未设置过激活会话属于正常情况
		return "", nil
	}
	return state.Value, nil
}

// SetActive 设置当前激活的会话ID
func (s *service) SetActive(ctx context.Context, id string) error {
	return s.q.SetAppState(ctx, db.SetAppStateParams{
		Key:   activeSessionKey,
		Value: id,
	})
}

// fromDBItem 将数据库记录转换为会话对象
func (s *service) fromDBItem(item db.Session) (Session, error) {
	settings := Settings{}
	if item.Settings != "" {
		if err := json.Unmarshal([]byte(item.Settings), &settings); err != nil {
			return Session{}, err
		}
	}
	return Session{
		ID:               item.ID,
		Title:            item.Title,
		Settings:         settings,
		MessageCount:     item.MessageCount,
		PromptTokens:     item.PromptTokens,
		CompletionTokens: item.CompletionTokens,
		TotalTokens:      item.TotalTokens,
		CreatedAt:        item.CreatedAt,
		UpdatedAt:        item.UpdatedAt,
	}, nil
}
