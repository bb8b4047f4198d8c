package gemini

import (
	"github.com/purpose168/gemchat-cn/internal/message"
	"github.com/purpose168/gemchat-cn/internal/session"
	"google.golang.org/genai"
)

// toContents 将对话历史转换为 API 请求内容
// 错误消息与空消息不参与请求，模型消息使用当前激活的备选响应
func toContents(history []message.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for i := range history {
		msg := &history[i]
		if msg.Role == message.Error {
			continue
		}
		parts := toParts(msg.ActiveParts())
		if len(parts) == 0 {
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  string(msg.Role),
			Parts: parts,
		})
	}
	return contents
}

// toParts 将消息内容部分转换为 API 请求部分
// 推理内容、检索元数据和完成标记只用于展示，不回传给模型
func toParts(parts []message.ContentPart) []*genai.Part {
	converted := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case message.TextContent:
			if p.Text == "" {
				continue
			}
			converted = append(converted, &genai.Part{Text: p.Text})
		case message.FileContent:
			// 仅已进入可用状态的文件参与请求
			if p.State != message.UploadActive || p.URI == "" {
				continue
			}
			converted = append(converted, &genai.Part{
				FileData: &genai.FileData{
					MIMEType: p.MIMEType,
					FileURI:  p.URI,
				},
			})
		case message.ImageContent:
			converted = append(converted, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: p.MIMEType,
					Data:     p.Data,
				},
			})
		case message.ExecutableCodeContent:
			converted = append(converted, &genai.Part{
				ExecutableCode: &genai.ExecutableCode{
					Language: genai.Language(p.Language),
					Code:     p.Code,
				},
			})
		case message.CodeExecutionResultContent:
			converted = append(converted, &genai.Part{
				CodeExecutionResult: &genai.CodeExecutionResult{
					Outcome: genai.Outcome(p.Outcome),
					Output:  p.Output,
				},
			})
		}
	}
	return converted
}

// toConfig 将会话配置转换为 API 生成配置
func toConfig(settings session.Settings) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if settings.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: settings.SystemInstruction}},
		}
	}
	if settings.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*settings.Temperature))
	}
	if settings.TopP != nil {
		config.TopP = genai.Ptr(float32(*settings.TopP))
	}
	if settings.MaxOutputTokens != nil {
		config.MaxOutputTokens = *settings.MaxOutputTokens
	}
	// 始终请求思考内容，预算为空时由模型自行决定
	config.ThinkingConfig = &genai.ThinkingConfig{
		IncludeThoughts: true,
	}
	if settings.ThinkingBudget != nil {
		config.ThinkingConfig.ThinkingBudget = genai.Ptr(*settings.ThinkingBudget)
	}
	config.Tools = toTools(settings)
	return config
}

// toTools 根据会话配置组装工具列表
func toTools(settings session.Settings) []*genai.Tool {
	tools := []*genai.Tool{}
	if settings.UseGoogleSearch {
		tools = append(tools, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if settings.UseCodeExecution {
		tools = append(tools, &genai.Tool{CodeExecution: &genai.ToolCodeExecution{}})
	}
	if settings.UseURLContext {
		tools = append(tools, &genai.Tool{URLContext: &genai.URLContext{}})
	}
	if len(tools) == 0 {
		return nil
	}
	return tools
}

// fromUsage 将 API 用量元数据转换为令牌使用统计
// 用量元数据是累计快照，直接整体替换
func fromUsage(usage *genai.GenerateContentResponseUsageMetadata) message.TokenUsage {
	if usage == nil {
		return message.TokenUsage{}
	}
	return message.TokenUsage{
		Prompt:     int64(usage.PromptTokenCount),
		Completion: int64(usage.CandidatesTokenCount) + int64(usage.ThoughtsTokenCount),
		Total:      int64(usage.TotalTokenCount),
	}
}

// mergeGrounding 将新的检索溯源快照合并进累计快照
// 查询和来源引用整体替换，URL 记录按地址去重累加
func mergeGrounding(acc *message.GroundingContent, gm *genai.GroundingMetadata, um *genai.URLContextMetadata) {
	if gm != nil {
		if len(gm.WebSearchQueries) > 0 {
			acc.Queries = gm.WebSearchQueries
		}
		if len(gm.GroundingChunks) > 0 {
			chunks := make([]message.GroundingChunk, 0, len(gm.GroundingChunks))
			for _, chunk := range gm.GroundingChunks {
				if chunk.Web == nil {
					continue
				}
				chunks = append(chunks, message.GroundingChunk{
					Title: chunk.Web.Title,
					URI:   chunk.Web.URI,
				})
			}
			acc.Chunks = chunks
		}
	}
	if um != nil {
		for _, entry := range um.URLMetadata {
			if entry == nil || entry.RetrievedURL == "" {
				continue
			}
			found := false
			for i, existing := range acc.URLs {
				if existing.URI == entry.RetrievedURL {
					acc.URLs[i].Status = string(entry.URLRetrievalStatus)
					found = true
					break
				}
			}
			if !found {
				acc.URLs = append(acc.URLs, message.URLContextEntry{
					URI:    entry.RetrievedURL,
					Status: string(entry.URLRetrievalStatus),
				})
			}
		}
	}
}

// isEmptyGrounding 检查累计快照是否为空
func isEmptyGrounding(g message.GroundingContent) bool {
	return len(g.Queries) == 0 && len(g.Chunks) == 0 && len(g.URLs) == 0
}
