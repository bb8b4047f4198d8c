package generation

import (
	"context"
	"fmt"

	"github.com/purpose168/gemchat-cn/internal/message"
)

// SwitchVersion 切换模型消息当前显示的备选响应
// version 为 -1 时显示主响应，否则显示对应索引的备选响应
// 消息仍在生成中时返回 ErrVersionConflict
func (c *Coordinator) SwitchVersion(ctx context.Context, sessionID, messageID string, version int64) (message.Message, error) {
	lock := c.messageLock(messageID)
	lock.Lock()
	defer lock.Unlock()

	target, err := c.messages.Get(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if target.Role != message.Model || target.SessionID != sessionID {
		return message.Message{}, ErrMessageNotEditable
	}
	if target.IsLoading() {
		return message.Message{}, ErrVersionConflict
	}
	if version < -1 || version >= int64(len(target.Versions)) {
		return message.Message{}, fmt.Errorf("备选响应索引越界: %d", version)
	}

	target.ActiveVersion = version
	if err := c.messages.Update(ctx, target); err != nil {
		return message.Message{}, err
	}
	return target, nil
}
