package router

import (
	"compress/gzip"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/pkoukk/tiktoken-go"

	"github.com/ccrelay/ccproxy/internal/canon"
	"github.com/ccrelay/ccproxy/internal/classifier"
	"github.com/ccrelay/ccproxy/internal/config"
	"github.com/ccrelay/ccproxy/internal/events"
	"github.com/ccrelay/ccproxy/internal/providers"
	"github.com/ccrelay/ccproxy/internal/scheduler"
	"github.com/ccrelay/ccproxy/internal/streampump"
)

// Router implements the failover loop of spec.md §4.6: given a selected
// upstream channel, it walks the channel's keys in scheduler order, issues
// one upstream attempt per key, classifies the result, and either retries
// the next key or hands the response back translated into Claude shape.
type Router struct {
	configMgr *config.Manager
	scheduler *scheduler.Scheduler
	logger    *slog.Logger

	clientsMu sync.Mutex
	clients   map[bool]*http.Client // keyed by insecureSkipVerify
}

func New(configMgr *config.Manager, sched *scheduler.Scheduler, logger *slog.Logger) *Router {
	return &Router{
		configMgr: configMgr,
		scheduler: sched,
		logger:    logger,
		clients:   make(map[bool]*http.Client),
	}
}

// httpClient returns the shared client for the given TLS-verification
// policy, creating it on first use. One client per policy is reused across
// requests, per spec.md §5's shared-resource policy.
func (rt *Router) httpClient(insecureSkipVerify bool) *http.Client {
	rt.clientsMu.Lock()
	defer rt.clientsMu.Unlock()

	if c, ok := rt.clients[insecureSkipVerify]; ok {
		return c
	}

	c := &http.Client{}
	if insecureSkipVerify {
		c.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}
	rt.clients[insecureSkipVerify] = c

	return c
}

// Route executes the failover loop and writes the final (possibly streamed)
// response to w. body is the raw inbound request bytes; clientHeaders is
// the inbound client request's header set, forwarded verbatim to the
// upstream except for the credential headers the proxy itself owns.
func (rt *Router) Route(ctx context.Context, w http.ResponseWriter, body []byte, clientHeaders http.Header) {
	cfg := rt.configMgr.Get()

	channel := cfg.Current()
	if channel == nil {
		writeError(w, noUpstreamError())
		return
	}
	if len(channel.APIKeys) == 0 {
		writeError(w, noKeysError(channel.Name))
		return
	}

	adapter, err := providers.New(channel.ServiceType)
	if err != nil {
		writeError(w, unsupportedServiceError(channel.ServiceType))
		return
	}

	creq, err := canon.ParseRequest(body)
	if err != nil {
		writeError(w, &Error{Kind: KindInternal, StatusCode: 400, Message: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	rt.logger.Info("routing request", "channel", channel.Name, "model", creq.Model, "inputTokens", rt.countInputTokens(string(body)))

	resp, lastErr, deprioritize := rt.attemptLoop(ctx, adapter, creq, channel, clientHeaders)
	if resp == nil {
		if lastErr != nil {
			writeError(w, lastErr)
		} else {
			writeError(w, &Error{Kind: KindAllKeysExhausted, StatusCode: 500, Body: mustJSON(map[string]string{"error": "all upstream keys unavailable"})})
		}
		return
	}
	defer resp.Body.Close()

	for _, key := range deprioritize {
		rt.scheduler.DeprioritizeKey(channel, key)
	}

	rt.writeResponse(ctx, w, resp, adapter, creq)
}

// attemptLoop walks channel.APIKeys under the scheduler until a success or
// fatal-pass-through response is captured, or every key is exhausted.
func (rt *Router) attemptLoop(ctx context.Context, adapter providers.Adapter, creq *canon.CanonicalRequest, channel *config.UpstreamChannel, clientHeaders http.Header) (*http.Response, *Error, []string) {
	maxAttempts := len(channel.APIKeys)
	excluded := make(map[string]bool)
	var deprioritizeCandidates []string
	var lastFailoverErr *Error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		key, err := rt.scheduler.NextKey(channel, excluded)
		if err != nil {
			break
		}

		req, err := adapter.BuildUpstreamRequest(ctx, creq, channel, key, clientHeaders)
		if err != nil {
			rt.logger.Error("build upstream request failed", "channel", channel.Name, "error", err)
			lastFailoverErr = internalError(err)
			excluded[key] = true
			rt.scheduler.MarkKeyFailed(channel.Name, key)
			continue
		}

		resp, err := rt.httpClient(channel.InsecureSkipVerify).Do(req)
		if err != nil {
			rt.logger.Warn("upstream transport error", "channel", channel.Name, "error", err)
			excluded[key] = true
			rt.scheduler.MarkKeyFailed(channel.Name, key)
			lastFailoverErr = &Error{Kind: KindAllKeysExhausted, StatusCode: 502, Body: mustJSON(map[string]string{"error": err.Error()})}
			continue
		}

		// A 2xx status is unconditionally success per the classifier's table and
		// never consults the body, so the (possibly long-lived, streaming) body
		// is left untouched for the caller to read progressively instead of
		// being buffered in full here.
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return resp, nil, deprioritizeCandidates
		}

		decoded, decodeErr := decompressBody(resp)
		if decodeErr != nil {
			resp.Body.Close()
			excluded[key] = true
			rt.scheduler.MarkKeyFailed(channel.Name, key)
			lastFailoverErr = internalError(decodeErr)
			continue
		}

		respBody, readErr := io.ReadAll(decoded)
		resp.Body.Close()
		if readErr != nil {
			excluded[key] = true
			rt.scheduler.MarkKeyFailed(channel.Name, key)
			lastFailoverErr = internalError(readErr)
			continue
		}

		result := classifier.Classify(resp.StatusCode, respBody)

		switch result.Outcome {
		case classifier.Success:
			return restoreBody(resp, respBody), nil, deprioritizeCandidates

		case classifier.FatalPassThrough:
			return restoreBody(resp, respBody), nil, nil

		case classifier.Failover:
			if result.QuotaRelated {
				deprioritizeCandidates = append(deprioritizeCandidates, key)
			}
			excluded[key] = true
			rt.scheduler.MarkKeyFailed(channel.Name, key)
			lastFailoverErr = allKeysExhaustedError(resp.StatusCode, respBody, result.IsHTML, result.IsCloudflare, channel.Name, channel.BaseURL)
			continue
		}
	}

	return nil, lastFailoverErr, nil
}

// restoreBody re-wraps already-decompressed bytes as resp's body and clears
// Content-Encoding so a later decompressBody call on this response is a
// no-op instead of double-decoding.
func restoreBody(resp *http.Response, body []byte) *http.Response {
	resp.Body = io.NopCloser(strings.NewReader(string(body)))
	resp.Header.Del("Content-Encoding")
	return resp
}

// writeResponse translates and forwards the captured upstream response,
// branching on whether the adapter's wire format is already canonical SSE
// (StreamsRaw) or needs reconstruction through the event emitter.
func (rt *Router) writeResponse(ctx context.Context, w http.ResponseWriter, resp *http.Response, adapter providers.Adapter, creq *canon.CanonicalRequest) {
	if !isEventStream(resp) {
		rt.writeNonStreaming(w, resp, adapter)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)

	upstream, decodeErr := decompressBody(resp)
	if decodeErr != nil {
		rt.logger.Error("stream decompression error", "error", decodeErr)
		return
	}

	var err error
	if adapter.StreamsRaw() {
		err = streampump.CopyRaw(ctx, upstream, w, flusher)
	} else {
		messageID := events.NewID("msg_")
		err = streampump.Run(ctx, upstream, w, flusher, messageID, creq.Model, adapter.NewStreamDecoder())
	}
	if err != nil {
		rt.logger.Error("stream translation error", "error", err)
	}
}

// decompressBody wraps resp.Body to transparently undo a gzip or brotli
// Content-Encoding, mirroring what most upstreams only apply to large
// non-streaming bodies but which a misconfigured reverse proxy can still
// impose on an SSE stream.
func decompressBody(resp *http.Response) (io.Reader, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// countInputTokens reports an approximate request size for observability.
// It never influences routing decisions.
func (rt *Router) countInputTokens(text string) int {
	tke, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		rt.logger.Error("failed to get tiktoken encoding", "error", err)
		return 0
	}
	return len(tke.Encode(text, nil, nil))
}

func (rt *Router) writeNonStreaming(w http.ResponseWriter, resp *http.Response, adapter providers.Adapter) {
	decoded, err := decompressBody(resp)
	if err != nil {
		writeError(w, internalError(err))
		return
	}

	body, err := io.ReadAll(decoded)
	if err != nil {
		writeError(w, internalError(err))
		return
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		writeError(w, fatalUpstreamError(resp.StatusCode, body, resp.Header))
		return
	}

	translated, err := adapter.TranslateNonStreaming(body)
	if err != nil {
		rt.logger.Error("response translation failed", "error", err)
		translated = body
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(translated)
}

func isEventStream(resp *http.Response) bool {
	return strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
}

func writeError(w http.ResponseWriter, err *Error) {
	for name, value := range err.Headers {
		w.Header().Set(name, value)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(err.StatusCode)

	if len(err.Body) > 0 {
		w.Write(err.Body)
		return
	}

	w.Write(mustJSON(map[string]string{"error": err.Error()}))
}

func mustJSON(v any) []byte {
	b, jsonErr := json.Marshal(v)
	if jsonErr != nil {
		return []byte(`{"error":"internal serialization error"}`)
	}
	return b
}

// Authenticate implements the §6 auth check shared by /v1/messages and the
// /admin/* stub: accept either x-api-key or Authorization: Bearer, matched
// against proxyAccessKey.
func Authenticate(cfg *config.Config, r *http.Request) error {
	if cfg.ProxyAccessKey == "" {
		return nil
	}

	var token string
	if k := r.Header.Get("x-api-key"); k != "" {
		token = k
	} else if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	}

	if token == "" || token != cfg.ProxyAccessKey {
		return errors.New("unauthorized")
	}

	return nil
}
