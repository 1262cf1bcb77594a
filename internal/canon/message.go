// Package canon defines the canonical, provider-agnostic message shape that
// every adapter's request translation step converts into and every
// response translation step reconstructs. It is the Claude Messages shape
// at its core, since that is the wire format the proxy's inbound side
// speaks natively.
package canon

import "encoding/json"

// Role is one of the four roles a CanonicalMessage can carry.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// NormalizeRole is total: every input string maps to one of the four
// Role values. "model" and "human" are recognized aliases from providers
// that use different vocabulary (Gemini, some legacy completions APIs);
// anything else unrecognized defaults to RoleUser.
func NormalizeRole(s string) Role {
	switch s {
	case string(RoleSystem):
		return RoleSystem
	case string(RoleUser):
		return RoleUser
	case string(RoleAssistant):
		return RoleAssistant
	case string(RoleTool):
		return RoleTool
	case "model":
		return RoleAssistant
	case "human":
		return RoleUser
	default:
		return RoleUser
	}
}

// Block type discriminators for ContentBlock.Type.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockImage      = "image"
)

// ImageSource carries an inline base64 image per the Claude Messages image
// content block shape.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// ContentBlock is a single typed unit inside a CanonicalMessage's content
// array. Only the fields relevant to Type are populated; the rest are left
// at zero value, matching how the Claude Messages API itself discriminates
// content blocks by a "type" tag rather than by distinct Go types.
type ContentBlock struct {
	Type string `json:"type"`

	// BlockText
	Text string `json:"text,omitempty"`

	// BlockToolUse
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// BlockToolResult
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// BlockImage
	Source *ImageSource `json:"source,omitempty"`
}

// CanonicalMessage is one turn in the conversation, after role
// normalization and content-block typing.
type CanonicalMessage struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// Tool is a declared function schema, carried opaquely through adapters
// except for the schema-cleaning pass (internal/schema).
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

// CanonicalRequest is the full inbound request after parsing, independent
// of which upstream it will be routed to.
type CanonicalRequest struct {
	Model         string             `json:"model"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   *float64           `json:"temperature,omitempty"`
	TopP          *float64           `json:"top_p,omitempty"`
	StopSequences []string           `json:"stop_sequences,omitempty"`
	Stream        bool               `json:"stream,omitempty"`
	System        string             `json:"-"`
	Messages      []CanonicalMessage `json:"messages"`
	Tools         []Tool             `json:"tools,omitempty"`
}

// TextContent concatenates every text block in a message, the shape most
// OpenAI-style adapters need when flattening a message to a single string.
func (m CanonicalMessage) TextContent() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}
