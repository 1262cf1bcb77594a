package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ccrelay/ccproxy/internal/canon"
	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/ccrelay/ccproxy/internal/events"
	"github.com/ccrelay/ccproxy/internal/schema"
	"github.com/ccrelay/ccproxy/internal/streampump"
)

// openAIAdapter implements both the OpenAI chat/completions wire format
// and the legacy "openaiold" variant. The two share nearly everything —
// the teacher's own OpenAI, Nvidia, and OpenRouter providers all speak
// this same OpenAI-compatible shape and share one streaming decoder — the
// only divergence is that the legacy variant posts to a prompt-based
// completions endpoint and cannot be assumed to emit tool_calls framing.
type openAIAdapter struct {
	legacy bool
}

func (a *openAIAdapter) endpointPath() string {
	if a.legacy {
		return "/completions"
	}
	return "/chat/completions"
}

func (a *openAIAdapter) BuildUpstreamRequest(ctx context.Context, creq *canon.CanonicalRequest, ch *config.UpstreamChannel, apiKey string, clientHeaders http.Header) (*http.Request, error) {
	var body []byte
	var err error

	if a.legacy {
		body, err = json.Marshal(a.buildLegacyBody(creq, ch))
	} else {
		body, err = json.Marshal(a.buildChatBody(creq, ch))
	}
	if err != nil {
		return nil, fmt.Errorf("marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(ch.BaseURL, "/")+a.endpointPath(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build openai request: %w", err)
	}

	copyClientHeaders(req, clientHeaders)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	return req, nil
}

type openAIFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  any            `json:"parameters"`
}

type openAITool struct {
	Type     string          `json:"type"`
	Function openAIFunction `json:"function"`
}

type openAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function openAIFunctionCall `json:"function"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Stream      bool            `json:"stream,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Tools       []openAITool    `json:"tools,omitempty"`
}

type openAICompletionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Stream      bool     `json:"stream,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
}

func (a *openAIAdapter) buildChatBody(creq *canon.CanonicalRequest, ch *config.UpstreamChannel) openAIChatRequest {
	out := openAIChatRequest{
		Model:       mappedModel(ch, creq.Model),
		Stream:      creq.Stream,
		Temperature: creq.Temperature,
		TopP:        creq.TopP,
		Stop:        creq.StopSequences,
		MaxTokens:   creq.MaxTokens,
	}

	if creq.System != "" {
		out.Messages = append(out.Messages, openAIMessage{Role: "system", Content: creq.System})
	}

	for _, m := range creq.Messages {
		out.Messages = append(out.Messages, flattenMessage(m)...)
	}

	for _, t := range creq.Tools {
		out.Tools = append(out.Tools, openAITool{
			Type: "function",
			Function: openAIFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema.CleanJSONSchema(t.InputSchema),
			},
		})
	}

	return out
}

func (a *openAIAdapter) buildLegacyBody(creq *canon.CanonicalRequest, ch *config.UpstreamChannel) openAICompletionRequest {
	var sb strings.Builder

	if creq.System != "" {
		sb.WriteString(creq.System)
		sb.WriteString("\n\n")
	}
	for _, m := range creq.Messages {
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.TextContent())
		sb.WriteString("\n")
	}

	return openAICompletionRequest{
		Model:       mappedModel(ch, creq.Model),
		Prompt:      sb.String(),
		Stream:      creq.Stream,
		Temperature: creq.Temperature,
		TopP:        creq.TopP,
		Stop:        creq.StopSequences,
		MaxTokens:   creq.MaxTokens,
	}
}

// flattenMessage turns one CanonicalMessage into zero or more OpenAI
// messages: a Claude tool_result block becomes its own role:"tool"
// message; an assistant message with tool_use blocks gets tool_calls
// attached; everything else collapses to a single text message.
func flattenMessage(m canon.CanonicalMessage) []openAIMessage {
	var toolResults []openAIMessage
	for _, b := range m.Content {
		if b.Type == canon.BlockToolResult {
			toolResults = append(toolResults, openAIMessage{
				Role:       "tool",
				ToolCallID: convertClaudeToolUseIDToCallID(b.ToolUseID),
				Content:    string(b.Content),
			})
		}
	}
	if len(toolResults) > 0 {
		return toolResults
	}

	out := openAIMessage{Role: string(m.Role), Content: m.TextContent()}

	for _, b := range m.Content {
		if b.Type == canon.BlockToolUse {
			out.ToolCalls = append(out.ToolCalls, openAIToolCall{
				ID:   convertClaudeToolUseIDToCallID(b.ID),
				Type: "function",
				Function: openAIFunctionCall{
					Name:      b.Name,
					Arguments: string(b.Input),
				},
			})
		}
	}

	return []openAIMessage{out}
}

// --- response translation ---

type openAIChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string           `json:"content"`
			ToolCalls []openAIToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *openAIAdapter) TranslateNonStreaming(body []byte) ([]byte, error) {
	var resp openAIChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal openai response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	choice := resp.Choices[0]
	var content []canon.ContentBlock

	if choice.Message.Content != "" {
		content = append(content, canon.ContentBlock{Type: canon.BlockText, Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		content = append(content, canon.ContentBlock{
			Type:  canon.BlockToolUse,
			ID:    convertToolCallID(tc.ID),
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}

	out := map[string]any{
		"id":            resp.ID,
		"type":          "message",
		"role":          "assistant",
		"model":         resp.Model,
		"content":       content,
		"stop_reason":   convertOpenAIStopReason(choice.FinishReason),
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  resp.Usage.PromptTokens,
			"output_tokens": resp.Usage.CompletionTokens,
		},
	}

	return json.Marshal(out)
}

func convertOpenAIStopReason(reason string) string {
	switch reason {
	case "length":
		return "max_tokens"
	case "tool_calls", "function_call":
		return "tool_use"
	case "content_filter":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// --- streaming ---

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (a *openAIAdapter) StreamsRaw() bool { return false }

func (a *openAIAdapter) NewStreamDecoder() streampump.DecodeFunc {
	indexer := &blockIndexer{}
	textOpen := false
	textIndex := -1
	accum := newToolCallAccumulator(indexer)

	return func(payload string) ([]events.SseEvent, error) {
		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("unmarshal openai stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			return nil, nil
		}

		choice := chunk.Choices[0]
		var out []events.SseEvent

		if choice.Delta.Content != "" {
			if !textOpen {
				textIndex = indexer.take()
				out = append(out, events.TextBlockStart(textIndex))
				textOpen = true
			}
			out = append(out, events.TextDelta(choice.Delta.Content, textIndex))
		}

		for _, tc := range choice.Delta.ToolCalls {
			entry, isNew := accum.entry(tc.Index)
			if tc.ID != "" {
				entry.id = convertToolCallID(tc.ID)
			}
			if tc.Function.Name != "" {
				entry.name = tc.Function.Name
			}

			if isNew || (!entry.startSent && entry.id != "" && entry.name != "") {
				out = append(out, events.ToolUseBlockStart(entry.name, entry.id, entry.claudeIndex))
				entry.startSent = true
			}

			if delta := argumentsDelta(entry, tc.Function.Arguments); delta != "" {
				out = append(out, events.ToolUseInputDelta(delta, entry.claudeIndex))
			}
		}

		if choice.FinishReason != nil {
			if textOpen {
				out = append(out, events.ContentBlockStop(textIndex))
				textOpen = false
			}
			for _, entry := range accum.byProviderIndex {
				if entry.startSent {
					out = append(out, events.ContentBlockStop(entry.claudeIndex))
				}
			}
		}

		return out, nil
	}
}
