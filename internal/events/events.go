// Package events implements the canonical Claude Messages SSE event
// sequence: the one output vocabulary every provider's response gets
// translated into, streaming or not.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Names is the closed set of SSE event names this proxy ever emits.
const (
	MessageStartName      = "message_start"
	ContentBlockStartName = "content_block_start"
	ContentBlockDeltaName = "content_block_delta"
	ContentBlockStopName  = "content_block_stop"
	MessageDeltaName      = "message_delta"
	MessageStopName       = "message_stop"
	PingName              = "ping"
	ErrorName             = "error"
)

// SseEvent is one frame on the wire to the client.
type SseEvent struct {
	Event string
	Data  any
}

// Bytes renders the frame as "event: <name>\ndata: <json>\n\n".
func (e SseEvent) Bytes() ([]byte, error) {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal sse event %s: %w", e.Event, err)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Event, data), nil
}

// NewID returns an opaque, unique identifier at least 10 characters long,
// suitable for message ids and generated tool_use ids.
func NewID(prefix string) string {
	return prefix + uuid.New().String()
}

// MessageStart produces the single message_start frame that must open
// every well-formed stream.
func MessageStart(messageID, model string) SseEvent {
	return SseEvent{
		Event: MessageStartName,
		Data: map[string]any{
			"type": MessageStartName,
			"message": map[string]any{
				"id":            messageID,
				"type":          "message",
				"role":          "assistant",
				"model":         model,
				"content":       []any{},
				"stop_reason":   nil,
				"stop_sequence": nil,
				"usage":         map[string]any{"input_tokens": 0, "output_tokens": 0},
			},
		},
	}
}

// TextBlockStart opens a text content block at index.
func TextBlockStart(index int) SseEvent {
	return SseEvent{
		Event: ContentBlockStartName,
		Data: map[string]any{
			"type":          ContentBlockStartName,
			"index":         index,
			"content_block": map[string]any{"type": "text", "text": ""},
		},
	}
}

// TextDelta emits a text_delta frame carrying the given fragment.
func TextDelta(text string, index int) SseEvent {
	return SseEvent{
		Event: ContentBlockDeltaName,
		Data: map[string]any{
			"type":  ContentBlockDeltaName,
			"index": index,
			"delta": map[string]any{"type": "text_delta", "text": text},
		},
	}
}

// ContentBlockStop closes the block at index.
func ContentBlockStop(index int) SseEvent {
	return SseEvent{
		Event: ContentBlockStopName,
		Data:  map[string]any{"type": ContentBlockStopName, "index": index},
	}
}

// TextBlock produces the three frames for a complete, non-streamed text
// block: start, one full delta, stop.
func TextBlock(text string, index int) []SseEvent {
	return []SseEvent{TextBlockStart(index), TextDelta(text, index), ContentBlockStop(index)}
}

// ToolUseBlockStart opens a tool_use block. id is supplied by the caller
// when the upstream provided one; otherwise the caller should generate one
// via NewID before calling this.
func ToolUseBlockStart(name, id string, index int) SseEvent {
	return SseEvent{
		Event: ContentBlockStartName,
		Data: map[string]any{
			"type":  ContentBlockStartName,
			"index": index,
			"content_block": map[string]any{
				"type":  "tool_use",
				"id":    id,
				"name":  name,
				"input": map[string]any{},
			},
		},
	}
}

// ToolUseInputDelta emits one fragment of a tool_use block's JSON
// arguments as an input_json_delta frame.
func ToolUseInputDelta(partialJSON string, index int) SseEvent {
	return SseEvent{
		Event: ContentBlockDeltaName,
		Data: map[string]any{
			"type":  ContentBlockDeltaName,
			"index": index,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": partialJSON},
		},
	}
}

// ToolUseBlock produces the three frames for a complete tool_use block
// whose arguments arrived atomically (e.g. Gemini's functionCall).
func ToolUseBlock(name, id string, argsJSON string, index int) []SseEvent {
	return []SseEvent{
		ToolUseBlockStart(name, id, index),
		ToolUseInputDelta(argsJSON, index),
		ContentBlockStop(index),
	}
}

// MessageDelta emits the closing stop_reason/usage update that precedes
// message_stop in a normal stream termination.
func MessageDelta(stopReason string, outputTokens int) SseEvent {
	return SseEvent{
		Event: MessageDeltaName,
		Data: map[string]any{
			"type":  MessageDeltaName,
			"delta": map[string]any{"stop_reason": stopReason, "stop_sequence": nil},
			"usage": map[string]any{"output_tokens": outputTokens},
		},
	}
}

// MessageStop produces the single message_stop frame that must close
// every well-formed, non-aborted stream.
func MessageStop() SseEvent {
	return SseEvent{Event: MessageStopName, Data: map[string]any{"type": MessageStopName}}
}

// Ping produces a keep-alive frame; some clients expect at least one
// between message_start and the first content block on slow upstreams.
func Ping() SseEvent {
	return SseEvent{Event: PingName, Data: map[string]any{"type": PingName}}
}

// Error produces an error frame. Used when a failure occurs after headers
// are already sent and no further retry is possible.
func Error(message string) SseEvent {
	return SseEvent{
		Event: ErrorName,
		Data:  map[string]any{"type": ErrorName, "error": map[string]any{"type": "api_error", "message": message}},
	}
}
