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

type geminiAdapter struct{}

type geminiPart struct {
	Text         string          `json:"text,omitempty"`
	FunctionCall *geminiFunCall  `json:"functionCall,omitempty"`
	FunctionResp *geminiFunResp  `json:"functionResponse,omitempty"`
}

type geminiFunCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type geminiFunResp struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiFunctionDecl struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDecl `json:"functionDeclarations"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
	StopSequences   []string `json:"stopSequences,omitempty"`
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Tools             []geminiTool            `json:"tools,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

func (a *geminiAdapter) BuildUpstreamRequest(ctx context.Context, creq *canon.CanonicalRequest, ch *config.UpstreamChannel, apiKey string, clientHeaders http.Header) (*http.Request, error) {
	wire := geminiRequest{
		GenerationConfig: &geminiGenerationConfig{
			Temperature:     creq.Temperature,
			TopP:            creq.TopP,
			StopSequences:   creq.StopSequences,
			MaxOutputTokens: creq.MaxTokens,
		},
	}

	if creq.System != "" {
		wire.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: creq.System}}}
	}

	for _, m := range creq.Messages {
		wire.Contents = append(wire.Contents, convertMessageToGemini(m))
	}

	if len(creq.Tools) > 0 {
		var decls []geminiFunctionDecl
		for _, t := range creq.Tools {
			decls = append(decls, geminiFunctionDecl{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema.CleanJSONSchema(t.InputSchema),
			})
		}
		wire.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	model := mappedModel(ch, creq.Model)
	method := "generateContent"
	if creq.Stream {
		method = "streamGenerateContent?alt=sse"
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:%s", strings.TrimSuffix(ch.BaseURL, "/"), model, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build gemini request: %w", err)
	}

	copyClientHeaders(req, clientHeaders)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	return req, nil
}

func geminiRole(r canon.Role) string {
	if r == canon.RoleAssistant {
		return "model"
	}
	return "user"
}

func convertMessageToGemini(m canon.CanonicalMessage) geminiContent {
	out := geminiContent{Role: geminiRole(m.Role)}

	for _, b := range m.Content {
		switch b.Type {
		case canon.BlockText:
			out.Parts = append(out.Parts, geminiPart{Text: b.Text})
		case canon.BlockToolUse:
			var args map[string]any
			_ = json.Unmarshal(b.Input, &args)
			out.Parts = append(out.Parts, geminiPart{FunctionCall: &geminiFunCall{Name: b.Name, Args: args}})
		case canon.BlockToolResult:
			var resp map[string]any
			if err := json.Unmarshal(b.Content, &resp); err != nil {
				resp = map[string]any{"result": string(b.Content)}
			}
			out.Parts = append(out.Parts, geminiPart{FunctionResp: &geminiFunResp{Name: b.ToolUseID, Response: resp}})
		}
	}

	return out
}

// --- response translation ---

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiResponse struct {
	Candidates []geminiCandidate `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (a *geminiAdapter) TranslateNonStreaming(body []byte) ([]byte, error) {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal gemini response: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini response has no candidates")
	}

	cand := resp.Candidates[0]
	var content []canon.ContentBlock

	for _, p := range cand.Content.Parts {
		switch {
		case p.Text != "":
			content = append(content, canon.ContentBlock{Type: canon.BlockText, Text: p.Text})
		case p.FunctionCall != nil:
			argsJSON, _ := json.Marshal(p.FunctionCall.Args)
			content = append(content, canon.ContentBlock{
				Type:  canon.BlockToolUse,
				ID:    events.NewID("toolu_"),
				Name:  p.FunctionCall.Name,
				Input: argsJSON,
			})
		}
	}

	out := map[string]any{
		"type":          "message",
		"role":          "assistant",
		"content":       content,
		"stop_reason":   convertGeminiStopReason(cand.FinishReason),
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  resp.UsageMetadata.PromptTokenCount,
			"output_tokens": resp.UsageMetadata.CandidatesTokenCount,
		},
	}

	return json.Marshal(out)
}

func convertGeminiStopReason(reason string) string {
	switch reason {
	case "STOP":
		return "end_turn"
	case "MAX_TOKENS":
		return "max_tokens"
	case "SAFETY", "RECITATION":
		return "stop_sequence"
	default:
		return "end_turn"
	}
}

// --- streaming ---

func (a *geminiAdapter) StreamsRaw() bool { return false }

func (a *geminiAdapter) NewStreamDecoder() streampump.DecodeFunc {
	indexer := &blockIndexer{}
	textOpen := false
	textIndex := -1

	return func(payload string) ([]events.SseEvent, error) {
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("unmarshal gemini stream chunk: %w", err)
		}
		if len(chunk.Candidates) == 0 {
			return nil, nil
		}

		var out []events.SseEvent

		for _, p := range chunk.Candidates[0].Content.Parts {
			switch {
			case p.Text != "":
				if !textOpen {
					textIndex = indexer.take()
					out = append(out, events.TextBlockStart(textIndex))
					textOpen = true
				}
				out = append(out, events.TextDelta(p.Text, textIndex))

			case p.FunctionCall != nil:
				argsJSON, _ := json.Marshal(p.FunctionCall.Args)
				index := indexer.take()
				out = append(out, events.ToolUseBlock(p.FunctionCall.Name, events.NewID("toolu_"), string(argsJSON), index)...)
			}
		}

		if chunk.Candidates[0].FinishReason != "" && textOpen {
			out = append(out, events.ContentBlockStop(textIndex))
			textOpen = false
		}

		return out, nil
	}
}
