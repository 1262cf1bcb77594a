package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ccrelay/ccproxy/internal/canon"
	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/ccrelay/ccproxy/internal/events"
	"github.com/ccrelay/ccproxy/internal/schema"
	"github.com/ccrelay/ccproxy/internal/streampump"
)

const anthropicVersion = "2023-06-01"

// claudeAdapter re-targets the request to a Claude-compatible upstream and
// swaps the auth header. The request body is re-encoded from the
// CanonicalRequest: the model mapping is applied, tool schemas are
// cleaned, system is sent as a single string, and request fields that
// CanonicalRequest does not carry are not forwarded. Response bodies are
// passed through untouched, since that wire format already IS the
// canonical shape.
type claudeAdapter struct{}

func (a *claudeAdapter) BuildUpstreamRequest(ctx context.Context, creq *canon.CanonicalRequest, ch *config.UpstreamChannel, apiKey string, clientHeaders http.Header) (*http.Request, error) {
	wire := claudeWireRequest{
		Model:         mappedModel(ch, creq.Model),
		MaxTokens:     creq.MaxTokens,
		Temperature:   creq.Temperature,
		TopP:          creq.TopP,
		StopSequences: creq.StopSequences,
		Stream:        creq.Stream,
		System:        creq.System,
		Messages:      creq.Messages,
	}
	for _, t := range creq.Tools {
		wire.Tools = append(wire.Tools, claudeWireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema.CleanJSONSchema(t.InputSchema),
		})
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal claude request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ch.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build claude request: %w", err)
	}

	copyClientHeaders(req, clientHeaders)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("x-api-key", apiKey)

	return req, nil
}

type claudeWireTool struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	InputSchema any    `json:"input_schema"`
}

type claudeWireRequest struct {
	Model         string                   `json:"model"`
	MaxTokens     int                      `json:"max_tokens"`
	Temperature   *float64                 `json:"temperature,omitempty"`
	TopP          *float64                 `json:"top_p,omitempty"`
	StopSequences []string                 `json:"stop_sequences,omitempty"`
	Stream        bool                     `json:"stream,omitempty"`
	System        string                   `json:"system,omitempty"`
	Messages      []canon.CanonicalMessage `json:"messages"`
	Tools         []claudeWireTool         `json:"tools,omitempty"`
}

// TranslateNonStreaming is the identity function: the upstream already
// returned a Claude Messages JSON body.
func (a *claudeAdapter) TranslateNonStreaming(body []byte) ([]byte, error) {
	return body, nil
}

func (a *claudeAdapter) StreamsRaw() bool { return true }

// NewStreamDecoder exists only to satisfy the Adapter interface. StreamsRaw
// reports true for this adapter, so the router never calls this decoder:
// the Claude wire format is already canonical SSE and goes straight through
// streampump.CopyRaw instead of being reconstructed through the emitter.
// Unreachable by design, not a stub awaiting an implementation.
func (a *claudeAdapter) NewStreamDecoder() streampump.DecodeFunc {
	return func(payload string) ([]events.SseEvent, error) {
		return nil, nil
	}
}
