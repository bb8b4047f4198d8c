package gemini

import (
	"context"
	"fmt"

	"github.com/purpose168/gemchat-cn/internal/message"
	"google.golang.org/genai"
)

// SendStream 发起流式生成请求
// 增量内容通过 handler 回传；检索溯源快照在流结束（含取消与出错）时统一下发
func (t *transport) SendStream(ctx context.Context, req Request, handler StreamHandler) (string, error) {
	client, err := t.client(ctx, req.APIKey)
	if err != nil {
		return "", err
	}

	contents := toContents(req.History)
	config := toConfig(req.Settings)

	var (
		finishReason string
		grounding    message.GroundingContent
		streamErr    error
	)

	for resp, err := range client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
		if err != nil {
			streamErr = fmt.Errorf("流式生成请求失败: %w", err)
			break
		}
		if resp.UsageMetadata != nil {
			handler.HandleUsage(fromUsage(resp.UsageMetadata))
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		candidate := resp.Candidates[0]
		if candidate.FinishReason != "" {
			finishReason = string(candidate.FinishReason)
		}
		mergeGrounding(&grounding, candidate.GroundingMetadata, candidate.URLContextMetadata)
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			dispatchPart(part, handler)
		}
	}

	// 无论正常结束还是中途失败，已累计的溯源快照都要下发
	if !isEmptyGrounding(grounding) {
		handler.HandleGrounding(grounding)
	}
	return finishReason, streamErr
}

// dispatchPart 将单个响应部分分发给对应的处理方法
func dispatchPart(part *genai.Part, handler StreamHandler) {
	if part == nil {
		return
	}
	switch {
	case part.Text != "" && part.Thought:
		handler.HandleThoughtDelta(part.Text)
	case part.Text != "":
		handler.HandleTextDelta(part.Text)
	case part.InlineData != nil:
		handler.HandlePart(message.ImageContent{
			MIMEType: part.InlineData.MIMEType,
			Data:     part.InlineData.Data,
		})
	case part.ExecutableCode != nil:
		handler.HandlePart(message.ExecutableCodeContent{
			Language: string(part.ExecutableCode.Language),
			Code:     part.ExecutableCode.Code,
		})
	case part.CodeExecutionResult != nil:
		handler.HandlePart(message.CodeExecutionResultContent{
			Outcome: string(part.CodeExecutionResult.Outcome),
			Output:  part.CodeExecutionResult.Output,
		})
	}
}

// SendOnce 发起一次性生成请求
func (t *transport) SendOnce(ctx context.Context, req Request) (Result, error) {
	client, err := t.client(ctx, req.APIKey)
	if err != nil {
		return Result{}, err
	}

	contents := toContents(req.History)
	config := toConfig(req.Settings)

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return Result{}, fmt.Errorf("生成请求失败: %w", err)
	}
	return fromResponse(resp)
}

// fromResponse 将一次性响应转换为生成结果
func fromResponse(resp *genai.GenerateContentResponse) (Result, error) {
	result := Result{}
	if resp.UsageMetadata != nil {
		result.Usage = fromUsage(resp.UsageMetadata)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return result, ErrEmptyResponse
	}
	candidate := resp.Candidates[0]
	result.FinishReason = string(candidate.FinishReason)

	collector := &partCollector{}
	for _, part := range candidate.Content.Parts {
		dispatchPart(part, collector)
	}
	grounding := message.GroundingContent{}
	mergeGrounding(&grounding, candidate.GroundingMetadata, candidate.URLContextMetadata)
	if !isEmptyGrounding(grounding) {
		collector.HandleGrounding(grounding)
	}
	result.Parts = collector.parts()
	if len(result.Parts) == 0 {
		return result, ErrEmptyResponse
	}
	return result, nil
}

// partCollector 将流式事件收集为内容部分列表，用于一次性请求
type partCollector struct {
	text      string
	thought   string
	others    []message.ContentPart
	grounding *message.GroundingContent
}

func (c *partCollector) HandleTextDelta(delta string)    { c.text += delta }
func (c *partCollector) HandleThoughtDelta(delta string) { c.thought += delta }

func (c *partCollector) HandlePart(part message.ContentPart) {
	c.others = append(c.others, part)
}

func (c *partCollector) HandleUsage(usage message.TokenUsage) {}

func (c *partCollector) HandleGrounding(grounding message.GroundingContent) {
	c.grounding = &grounding
}

// parts 按推理、正文、附加内容、溯源的顺序组装内容部分
func (c *partCollector) parts() []message.ContentPart {
	parts := make([]message.ContentPart, 0, len(c.others)+3)
	if c.thought != "" {
		parts = append(parts, message.ReasoningContent{Thinking: c.thought})
	}
	if c.text != "" {
		parts = append(parts, message.TextContent{Text: c.text})
	}
	parts = append(parts, c.others...)
	if c.grounding != nil {
		parts = append(parts, *c.grounding)
	}
	return parts
}
