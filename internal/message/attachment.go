package message

import (
	"slices"
	"strings"
)

// Attachment 表示待发送的消息附件
// 附件先由上传服务送入文件服务，进入可用状态后才参与生成请求
type Attachment struct {
	FilePath string // 文件路径，附件在文件系统中的完整路径
	FileName string // 文件名，附件的原始文件名
	MimeType string // MIME类型，用于标识文件的媒体类型（如 text/plain, image/png）
	Content  []byte // 文件内容，附件的二进制数据
}

// IsText 判断附件是否为文本类型
func (a Attachment) IsText() bool { return strings.HasPrefix(a.MimeType, "text/") }

// IsImage 判断附件是否为图片类型
func (a Attachment) IsImage() bool { return strings.HasPrefix(a.MimeType, "image/") }

// IsAudio 判断附件是否为音频类型
func (a Attachment) IsAudio() bool { return strings.HasPrefix(a.MimeType, "audio/") }

// ContainsAudioAttachment 检查附件列表中是否包含音频类型的附件
func ContainsAudioAttachment(attachments []Attachment) bool {
	return slices.ContainsFunc(attachments, func(a Attachment) bool {
		return a.IsAudio()
	})
}
