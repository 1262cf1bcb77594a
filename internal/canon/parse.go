package canon

import (
	"encoding/json"
	"fmt"
)

// wireRequest mirrors the Claude Messages v1 request body closely enough
// for json.Unmarshal, except for System, which Claude allows as either a
// bare string or an array of text content blocks.
type wireRequest struct {
	Model         string          `json:"model"`
	MaxTokens     int             `json:"max_tokens"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	System        json.RawMessage `json:"system,omitempty"`
	Messages      []wireMessage   `json:"messages"`
	Tools         []Tool          `json:"tools,omitempty"`
}

type wireMessage struct {
	Role    json.RawMessage `json:"role"`
	Content json.RawMessage `json:"content"`
}

// ParseRequest decodes a raw Claude Messages v1 request body into a
// CanonicalRequest, normalizing roles and flattening the system field's two
// accepted shapes (string, or an array of {type:"text",text:...} blocks)
// into a single string.
func ParseRequest(body []byte) (*CanonicalRequest, error) {
	var wire wireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("parse request body: %w", err)
	}

	creq := &CanonicalRequest{
		Model:         wire.Model,
		MaxTokens:     wire.MaxTokens,
		Temperature:   wire.Temperature,
		TopP:          wire.TopP,
		StopSequences: wire.StopSequences,
		Stream:        wire.Stream,
		Tools:         wire.Tools,
	}

	creq.System = parseSystem(wire.System)

	for _, m := range wire.Messages {
		msg, err := parseMessage(m)
		if err != nil {
			return nil, err
		}
		creq.Messages = append(creq.Messages, msg)
	}

	return creq, nil
}

func parseSystem(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var out string
		for _, b := range blocks {
			if b.Type == BlockText || b.Type == "" {
				out += b.Text
			}
		}
		return out
	}

	return ""
}

func parseMessage(m wireMessage) (CanonicalMessage, error) {
	var roleStr string
	if err := json.Unmarshal(m.Role, &roleStr); err != nil {
		return CanonicalMessage{}, fmt.Errorf("parse message role: %w", err)
	}

	msg := CanonicalMessage{Role: NormalizeRole(roleStr)}

	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		msg.Content = []ContentBlock{{Type: BlockText, Text: asString}}
		return msg, nil
	}

	var blocks []ContentBlock
	if err := json.Unmarshal(m.Content, &blocks); err != nil {
		return CanonicalMessage{}, fmt.Errorf("parse message content: %w", err)
	}
	msg.Content = blocks

	return msg, nil
}
