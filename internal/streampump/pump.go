// Package streampump reads an upstream chunked SSE body, frames it into
// data lines, and drives a provider-supplied decoder to produce canonical
// SSE events that are written to the client as they arrive.
//
// Reading the upstream and decoding it are split across a producer
// goroutine and the calling goroutine (the consumer), connected by a
// channel, so that cancellation is a matter of the context being done
// rather than unwinding a recursive callback chain.
package streampump

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ccrelay/ccproxy/internal/events"
)

// DecodeFunc translates one upstream SSE data-line payload (already
// stripped of the "data:" prefix) into zero or more canonical events. It
// owns whatever index/accumulator state it needs across calls within one
// stream — the pump never resets or inspects that state itself.
type DecodeFunc func(payload string) ([]events.SseEvent, error)

// Writer is the subset of http.ResponseWriter the pump needs; Flush is
// optional (called only when the concrete writer supports it).
type Writer interface {
	io.Writer
}

// Flusher mirrors http.Flusher without importing net/http.
type Flusher interface {
	Flush()
}

// Run executes the full algorithm: emit message_start, pump frames
// through decode, emit message_stop on a clean finish. It returns nil on a
// clean finish and a non-nil error if the decoder or the upstream read
// failed — in which case the caller must NOT have (and the pump does not)
// emit message_stop; the client observes a truncated transfer.
func Run(ctx context.Context, upstream io.Reader, out Writer, flush Flusher, messageID, model string, decode DecodeFunc) error {
	if err := write(out, flush, events.MessageStart(messageID, model)); err != nil {
		return err
	}

	lines := make(chan string)
	readErr := make(chan error, 1)

	go produce(ctx, upstream, lines, readErr)

	for payload := range lines {
		evs, err := decode(payload)
		if err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}

		for _, ev := range evs {
			if err := write(out, flush, ev); err != nil {
				return fmt.Errorf("write stream event: %w", err)
			}
		}
	}

	if err := <-readErr; err != nil {
		return fmt.Errorf("read upstream stream: %w", err)
	}

	return write(out, flush, events.MessageStop())
}

// CopyRaw forwards upstream bytes to out unmodified, flushing after every
// read. It is used by adapters whose wire format already IS the canonical
// Claude SSE stream (the Claude adapter): no event reconstruction is
// needed, so reconstruction can't introduce drift from the original
// bytes. The context is checked before each read; a read already blocked
// returns only when the upstream reader itself gives up (an HTTP body
// whose request carries the same context does so once it is cancelled).
func CopyRaw(ctx context.Context, upstream io.Reader, out Writer, flush Flusher) error {
	buf := make([]byte, 32*1024)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := upstream.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write raw stream chunk: %w", werr)
			}
			if flush != nil {
				flush.Flush()
			}
		}

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read raw upstream stream: %w", err)
		}
	}
}

func produce(ctx context.Context, upstream io.Reader, lines chan<- string, readErr chan<- error) {
	defer close(lines)

	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			readErr <- ctx.Err()
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var payload string
		if strings.HasPrefix(line, "data:") {
			payload = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		} else if strings.HasPrefix(line, ":") {
			continue // SSE comment line
		} else {
			payload = line
		}

		if payload == "" || payload == "[DONE]" {
			continue
		}

		select {
		case lines <- payload:
		case <-ctx.Done():
			readErr <- ctx.Err()
			return
		}
	}

	readErr <- scanner.Err()
}

func write(out Writer, flush Flusher, ev events.SseEvent) error {
	raw, err := ev.Bytes()
	if err != nil {
		return err
	}
	if _, err := out.Write(raw); err != nil {
		return err
	}
	if flush != nil {
		flush.Flush()
	}
	return nil
}
