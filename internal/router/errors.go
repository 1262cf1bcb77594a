// Package router drives the per-request failover loop: it picks a channel,
// walks its keys under the scheduler, classifies each upstream response, and
// either retries the next key or hands the response back to the caller.
package router

import (
	"fmt"
	"net/http"
)

// Kind discriminates the error taxonomy of spec.md §7. Only the kind
// matters for dispatch; callers type-switch or check Kind, never the error
// string.
type Kind int

const (
	KindAuth Kind = iota
	KindNoUpstream
	KindNoKeys
	KindUnsupportedService
	KindAllKeysExhausted
	KindFatalUpstream
	KindStream
	KindInternal
)

// Error carries enough to render the right HTTP response: a status code, an
// optional machine-readable code, and the upstream body to forward verbatim
// when one exists.
type Error struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
	Body       []byte
	Headers    map[string]string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("router error (kind=%d, status=%d)", e.Kind, e.StatusCode)
}

func noUpstreamError() *Error {
	return &Error{Kind: KindNoUpstream, StatusCode: 503, Code: "NO_UPSTREAM", Message: "no upstream channel configured"}
}

func noKeysError(channel string) *Error {
	return &Error{Kind: KindNoKeys, StatusCode: 503, Code: "NO_API_KEYS", Message: fmt.Sprintf("channel %q has no configured api keys", channel)}
}

func unsupportedServiceError(serviceType string) *Error {
	return &Error{Kind: KindUnsupportedService, StatusCode: 400, Message: fmt.Sprintf("unsupported service type %q", serviceType)}
}

// allKeysExhaustedError surfaces the last failover response verbatim, per
// spec.md §7, except when that body looks like an HTML error page or a
// Cloudflare challenge — those get replaced with a synthesized JSON body so
// the client never has to parse HTML.
func allKeysExhaustedError(statusCode int, body []byte, isHTML, isCloudflare bool, upstreamName, upstreamBaseURL string) *Error {
	if !isHTML && !isCloudflare {
		return &Error{Kind: KindAllKeysExhausted, StatusCode: statusCode, Body: body}
	}

	code := "UPSTREAM_HTML_ERROR"
	message := "upstream returned an HTML error page"
	if isCloudflare {
		code = "UPSTREAM_CLOUDFLARE_CHALLENGE"
		message = "上游触发了 Cloudflare 防护"
	}

	return &Error{
		Kind:       KindAllKeysExhausted,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
		Body: mustJSON(map[string]any{
			"error": message,
			"code":  code,
			"upstream": map[string]string{
				"name":    upstreamName,
				"baseUrl": upstreamBaseURL,
			},
		}),
	}
}

// fatalUpstreamError forwards a non-retryable upstream response unchanged:
// status, the headers relevant to how the body should be interpreted, and
// the body itself, per spec.md §7. body has already been through
// decompressBody by the time this is called, so Content-Encoding is
// deliberately not copied — forwarding it alongside already-decoded bytes
// would make the client try to decode them a second time.
func fatalUpstreamError(statusCode int, body []byte, upstreamHeaders http.Header) *Error {
	headers := make(map[string]string)
	if v := upstreamHeaders.Get("Content-Type"); v != "" {
		headers["Content-Type"] = v
	}

	return &Error{Kind: KindFatalUpstream, StatusCode: statusCode, Body: body, Headers: headers}
}

func internalError(err error) *Error {
	return &Error{Kind: KindInternal, StatusCode: 500, Message: "Internal server error", Body: mustJSON(map[string]string{"error": "Internal server error"})}
}
