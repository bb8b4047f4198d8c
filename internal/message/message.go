// Package message 提供消息管理服务，包括消息的创建、更新、查询和删除功能
package message

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/purpose168/gemchat-cn/internal/db"
	"github.com/purpose168/gemchat-cn/internal/pubsub"
)

// CreateMessageParams 创建消息的参数结构体
type CreateMessageParams struct {
	Role         MessageRole   // 消息角色
	Parts        []ContentPart // 消息内容部分
	GenerationID string        // 生成任务标识符（模型消息）
	StartedAt    int64         // 生成开始时间戳（Unix毫秒）
}

// Service 消息服务接口，定义了消息管理的核心操作
type Service interface {
	pubsub.Subscriber[Message]
	// Create 创建新消息
	Create(ctx context.Context, sessionID string, params CreateMessageParams) (Message, error)
	// Update 更新消息内容
	Update(ctx context.Context, message Message) error
	// Get 根据ID获取消息
	Get(ctx context.Context, id string) (Message, error)
	// List 列出指定会话的所有消息
	List(ctx context.Context, sessionID string) ([]Message, error)
	// Delete 删除指定消息
	Delete(ctx context.Context, id string) error
	// DeleteAfter 删除指定会话中排在某条消息之后的所有消息
	DeleteAfter(ctx context.Context, sessionID string, messageID string) error
	// DeleteSessionMessages 删除指定会话的所有消息
	DeleteSessionMessages(ctx context.Context, sessionID string) error
}

// service 消息服务的具体实现
type service struct {
	*pubsub.Broker[Message]
	q db.Querier
}

// NewService 创建新的消息服务实例
func NewService(q db.Querier) Service {
	return &service{
		Broker: pubsub.NewBroker[Message](),
		q:      q,
	}
}

// Create 创建新消息并保存到数据库
func (s *service) Create(ctx context.Context, sessionID string, params CreateMessageParams) (Message, error) {
	// 用户消息创建即完成，添加完成标记
	if params.Role == User && !hasFinishPart(params.Parts) {
		params.Parts = append(params.Parts, Finish{
			Reason: FinishReasonStop,
			Time:   time.Now().UnixMilli(),
		})
	}
	// 序列化消息内容部分
	partsJSON, err := marshalParts(params.Parts)
	if err != nil {
		return Message{}, err
	}
	now := time.Now().UnixMilli()
	startedAt := params.StartedAt
	if startedAt == 0 {
		startedAt = now
	}
	// 消息按 (created_at, id) 排序，同一毫秒内创建的消息靠 id 决定先后
	// UUIDv7 在进程内单调递增，保证对话顺序与创建顺序一致
	dbMessage, err := s.q.CreateMessage(ctx, db.CreateMessageParams{
		ID:           uuid.Must(uuid.NewV7()).String(),
		SessionID:    sessionID,
		Role:         string(params.Role),
		Parts:        string(partsJSON),
		GenerationID: sql.NullString{String: params.GenerationID, Valid: params.GenerationID != ""},
		StartedAt:    startedAt,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return Message{}, err
	}
	// 将数据库记录转换为消息对象
	message, err := s.fromDBItem(dbMessage)
	if err != nil {
		return Message{}, err
	}
	// 在发布前克隆消息，以避免与 Parts 切片的并发修改产生竞态条件
	s.Publish(pubsub.CreatedEvent, message.Clone())
	return message, nil
}

// Update 更新消息内容
func (s *service) Update(ctx context.Context, message Message) error {
	// 序列化消息内容部分
	parts, err := marshalParts(message.Parts)
	if err != nil {
		return err
	}
	// 序列化备选响应
	versions, err := marshalVersions(message.Versions)
	if err != nil {
		return err
	}
	// 从完成标记同步结束时间
	finishedAt := message.FinishedAt
	if f := message.FinishPart(); f != nil && finishedAt == 0 {
		finishedAt = f.Time
	}
	message.UpdatedAt = time.Now().UnixMilli()
	// 更新数据库中的消息记录
	err = s.q.UpdateMessage(ctx, db.UpdateMessageParams{
		Role:             string(message.Role),
		Parts:            string(parts),
		FinishedAt:       finishedAt,
		ThinkingMs:       message.ThinkingMs,
		PromptTokens:     message.Usage.Prompt,
		CompletionTokens: message.Usage.Completion,
		TotalTokens:      message.Usage.Total,
		CumulativeTokens: message.Usage.Cumulative,
		Versions:         sql.NullString{String: string(versions), Valid: len(message.Versions) > 0},
		ActiveVersion:    message.ActiveVersion,
		UpdatedAt:        message.UpdatedAt,
		ID:               message.ID,
	})
	if err != nil {
		return err
	}
	message.FinishedAt = finishedAt
	// 在发布前克隆消息，以避免与 Parts 切片的并发修改产生竞态条件
	s.Publish(pubsub.UpdatedEvent, message.Clone())
	return nil
}

// Get 根据ID获取消息
func (s *service) Get(ctx context.Context, id string) (Message, error) {
	dbMessage, err := s.q.GetMessage(ctx, id)
	if err != nil {
		return Message{}, err
	}
	return s.fromDBItem(dbMessage)
}

// List 列出指定会话的所有消息
func (s *service) List(ctx context.Context, sessionID string) ([]Message, error) {
	dbMessages, err := s.q.ListMessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	// 将数据库记录列表转换为消息对象列表
	messages := make([]Message, len(dbMessages))
	for i, dbMessage := range dbMessages {
		messages[i], err = s.fromDBItem(dbMessage)
		if err != nil {
			return nil, err
		}
	}
	return messages, nil
}

// Delete 删除指定消息
func (s *service) Delete(ctx context.Context, id string) error {
	message, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.q.DeleteMessage(ctx, message.ID)
	if err != nil {
		return err
	}
	// 在发布前克隆消息，以避免与 Parts 切片的并发修改产生竞态条件
	s.Publish(pubsub.DeletedEvent, message.Clone())
	return nil
}

// DeleteAfter 删除指定会话中排在某条消息之后的所有消息
// 用于编辑消息时截断其后的对话历史；按列表顺序比较，不依赖时间戳的毫秒精度
func (s *service) DeleteAfter(ctx context.Context, sessionID string, messageID string) error {
	messages, err := s.List(ctx, sessionID)
	if err != nil {
		return err
	}
	found := false
	for _, message := range messages {
		if found {
			if err := s.Delete(ctx, message.ID); err != nil {
				return err
			}
			continue
		}
		if message.ID == messageID {
			found = true
		}
	}
	return nil
}

// DeleteSessionMessages 删除指定会话的所有消息
func (s *service) DeleteSessionMessages(ctx context.Context, sessionID string) error {
	messages, err := s.List(ctx, sessionID)
	if err != nil {
		return err
	}
	// 遍历并删除该会话的所有消息
	for _, message := range messages {
		if message.SessionID == sessionID {
			err = s.Delete(ctx, message.ID)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// fromDBItem 将数据库记录转换为消息对象
func (s *service) fromDBItem(item db.Message) (Message, error) {
	// 反序列化消息内容部分
	parts, err := unmarshalParts([]byte(item.Parts))
	if err != nil {
		return Message{}, err
	}
	// 反序列化备选响应
	var versions []Version
	if item.Versions.Valid && item.Versions.String != "" {
		versions, err = unmarshalVersions([]byte(item.Versions.String))
		if err != nil {
			return Message{}, err
		}
	}
	return Message{
		ID:           item.ID,
		SessionID:    item.SessionID,
		Role:         MessageRole(item.Role),
		Parts:        parts,
		GenerationID: item.GenerationID.String,
		StartedAt:    item.StartedAt,
		FinishedAt:   item.FinishedAt,
		ThinkingMs:   item.ThinkingMs,
		Usage: TokenUsage{
			Prompt:     item.PromptTokens,
			Completion: item.CompletionTokens,
			Total:      item.TotalTokens,
			Cumulative: item.CumulativeTokens,
		},
		Versions:      versions,
		ActiveVersion: item.ActiveVersion,
		CreatedAt:     item.CreatedAt,
		UpdatedAt:     item.UpdatedAt,
	}, nil
}

// hasFinishPart 检查内容部分列表中是否已包含完成标记
func hasFinishPart(parts []ContentPart) bool {
	for _, part := range parts {
		if _, ok := part.(Finish); ok {
			return true
		}
	}
	return false
}

// partType 内容部分的类型标识
type partType string

// 定义各种内容部分的类型常量
const (
	textType          partType = "text"              // 文本内容类型
	reasoningType     partType = "reasoning"         // 推理内容类型
	fileType          partType = "file"              // 文件内容类型
	imageType         partType = "image"             // 图片内容类型
	audioType         partType = "audio"             // 音频内容类型
	execCodeType      partType = "executable_code"   // 可执行代码类型
	codeResultType    partType = "code_exec_result"  // 代码执行结果类型
	groundingType     partType = "grounding"         // 检索溯源类型
	finishType        partType = "finish"            // 完成标记类型
)

// partWrapper 用于JSON序列化的内容部分包装器
type partWrapper struct {
	Type partType    `json:"type"` // 内容类型
	Data ContentPart `json:"data"` // 内容数据
}

// marshalParts 将内容部分列表序列化为JSON字节切片
func marshalParts(parts []ContentPart) ([]byte, error) {
	wrappedParts := make([]partWrapper, len(parts))

	for i, part := range parts {
		var typ partType

		// 根据内容部分的实际类型确定类型标识
		switch part.(type) {
		case TextContent:
			typ = textType
		case ReasoningContent:
			typ = reasoningType
		case FileContent:
			typ = fileType
		case ImageContent:
			typ = imageType
		case AudioContent:
			typ = audioType
		case ExecutableCodeContent:
			typ = execCodeType
		case CodeExecutionResultContent:
			typ = codeResultType
		case GroundingContent:
			typ = groundingType
		case Finish:
			typ = finishType
		default:
			return nil, fmt.Errorf("未知的内容部分类型: %T", part)
		}

		wrappedParts[i] = partWrapper{
			Type: typ,
			Data: part,
		}
	}
	return json.Marshal(wrappedParts)
}

// unmarshalParts 将JSON字节切片反序列化为内容部分列表
func unmarshalParts(data []byte) ([]ContentPart, error) {
	temp := []json.RawMessage{}

	if err := json.Unmarshal(data, &temp); err != nil {
		return nil, err
	}

	parts := make([]ContentPart, 0)

	for _, rawPart := range temp {
		var wrapper struct {
			Type partType        `json:"type"` // 内容类型
			Data json.RawMessage `json:"data"` // 原始JSON数据
		}

		if err := json.Unmarshal(rawPart, &wrapper); err != nil {
			return nil, err
		}

		// 根据类型标识反序列化为对应的内容部分
		switch wrapper.Type {
		case textType:
			part := TextContent{}
			if err := json.Unmarshal(wrapper.Data, &part); err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case reasoningType:
			part := ReasoningContent{}
			if err := json.Unmarshal(wrapper.Data, &part); err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case fileType:
			part := FileContent{}
			if err := json.Unmarshal(wrapper.Data, &part); err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case imageType:
			part := ImageContent{}
			if err := json.Unmarshal(wrapper.Data, &part); err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case audioType:
			part := AudioContent{}
			if err := json.Unmarshal(wrapper.Data, &part); err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case execCodeType:
			part := ExecutableCodeContent{}
			if err := json.Unmarshal(wrapper.Data, &part); err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case codeResultType:
			part := CodeExecutionResultContent{}
			if err := json.Unmarshal(wrapper.Data, &part); err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case groundingType:
			part := GroundingContent{}
			if err := json.Unmarshal(wrapper.Data, &part); err != nil {
				return nil, err
			}
			parts = append(parts, part)
		case finishType:
			part := Finish{}
			if err := json.Unmarshal(wrapper.Data, &part); err != nil {
				return nil, err
			}
			parts = append(parts, part)
		default:
			return nil, fmt.Errorf("未知的内容部分类型: %s", wrapper.Type)
		}
	}

	return parts, nil
}

// versionWrapper 用于JSON序列化的备选响应包装器
type versionWrapper struct {
	Parts      json.RawMessage `json:"parts"`       // 序列化后的内容部分
	Usage      TokenUsage      `json:"usage"`       // 令牌使用统计
	ThinkingMs int64           `json:"thinking_ms"` // 思考耗时（毫秒）
	FinishedAt int64           `json:"finished_at"` // 结束时间戳（Unix毫秒）
}

// marshalVersions 将备选响应列表序列化为JSON字节切片
func marshalVersions(versions []Version) ([]byte, error) {
	wrapped := make([]versionWrapper, len(versions))
	for i, v := range versions {
		parts, err := marshalParts(v.Parts)
		if err != nil {
			return nil, err
		}
		wrapped[i] = versionWrapper{
			Parts:      parts,
			Usage:      v.Usage,
			ThinkingMs: v.ThinkingMs,
			FinishedAt: v.FinishedAt,
		}
	}
	return json.Marshal(wrapped)
}

// unmarshalVersions 将JSON字节切片反序列化为备选响应列表
func unmarshalVersions(data []byte) ([]Version, error) {
	wrapped := []versionWrapper{}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	versions := make([]Version, len(wrapped))
	for i, w := range wrapped {
		parts, err := unmarshalParts(w.Parts)
		if err != nil {
			return nil, err
		}
		versions[i] = Version{
			Parts:      parts,
			Usage:      w.Usage,
			ThinkingMs: w.ThinkingMs,
			FinishedAt: w.FinishedAt,
		}
	}
	return versions, nil
}
