// Package providers implements the four wire-format translators: Claude
// (pass-through), OpenAI chat/completions, the OpenAI-old legacy variant,
// and Gemini. Each is selected once per request by the channel's
// serviceType and implements the Adapter contract.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ccrelay/ccproxy/internal/canon"
	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/ccrelay/ccproxy/internal/streampump"
)

// Adapter is the common translation contract every provider implements.
type Adapter interface {
	// BuildUpstreamRequest produces the outbound HTTP request for one
	// attempt against key. clientHeaders carries the inbound client
	// request's headers; implementations forward them verbatim onto the
	// outbound request except for the credentials the proxy itself owns
	// (x-api-key, authorization, x-goog-api-key), which it replaces with
	// the upstream key for this attempt.
	BuildUpstreamRequest(ctx context.Context, creq *canon.CanonicalRequest, ch *config.UpstreamChannel, apiKey string, clientHeaders http.Header) (*http.Request, error)

	// TranslateNonStreaming converts a complete upstream JSON response
	// body into a Claude Messages JSON response body.
	TranslateNonStreaming(body []byte) ([]byte, error)

	// NewStreamDecoder returns a fresh per-stream decoder: state (open
	// block indices, tool-call accumulator) must not outlive or be shared
	// across streams.
	NewStreamDecoder() streampump.DecodeFunc

	// StreamsRaw reports whether the upstream's streaming wire format is
	// already the canonical Claude SSE stream, in which case the caller
	// should forward bytes unmodified (streampump.CopyRaw) instead of
	// running them through NewStreamDecoder/streampump.Run.
	StreamsRaw() bool
}

// New returns the Adapter for serviceType, or an error if it is not one of
// the four supported types.
func New(serviceType string) (Adapter, error) {
	switch serviceType {
	case config.ServiceClaude:
		return &claudeAdapter{}, nil
	case config.ServiceOpenAI:
		return &openAIAdapter{legacy: false}, nil
	case config.ServiceOpenAIOld:
		return &openAIAdapter{legacy: true}, nil
	case config.ServiceGemini:
		return &geminiAdapter{}, nil
	default:
		return nil, fmt.Errorf("unsupported service type %q", serviceType)
	}
}

// strippedClientHeaders lists the headers the proxy itself owns and must
// not forward from the client to the upstream, since each adapter sets its
// own provider-specific credential header for the key being attempted.
var strippedClientHeaders = map[string]bool{
	"x-api-key":      true,
	"authorization":  true,
	"x-goog-api-key": true,
}

// copyClientHeaders forwards every client header onto req verbatim except
// the credential headers the proxy strips and replaces with the upstream
// key. Call this before setting the adapter's own auth header so the
// adapter's value wins if a client header happened to collide.
func copyClientHeaders(req *http.Request, clientHeaders http.Header) {
	for name, values := range clientHeaders {
		if strippedClientHeaders[strings.ToLower(name)] {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
}

// mappedModel applies the channel's optional model mapping, passing the
// model through unchanged when no mapping entry exists.
func mappedModel(ch *config.UpstreamChannel, model string) string {
	if ch.ModelMapping == nil {
		return model
	}
	if mapped, ok := ch.ModelMapping[model]; ok {
		return mapped
	}
	return model
}
