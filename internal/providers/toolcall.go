package providers

import "strings"

// toolCallEntry is one accumulating tool_use block inside a single
// stream: an OpenAI-style tool_calls[].index maps to exactly one entry,
// and argument fragments are concatenated in arrival order.
type toolCallEntry struct {
	claudeIndex int
	id          string
	name        string
	arguments   string
	startSent   bool
}

// blockIndexer hands out Claude content-block indices in emission order,
// shared across text and tool_use blocks within one stream — matching how
// a single upstream stream interleaves them (e.g. a text block at 0
// followed by the first tool_use at 1).
type blockIndexer struct{ next int }

func (b *blockIndexer) take() int {
	i := b.next
	b.next++
	return i
}

// toolCallAccumulator is per-stream, per-block-index mutable state; its
// lifetime is exactly one response stream, created fresh by each
// Adapter.NewStreamDecoder call. It must never be shared across streams
// or requests.
type toolCallAccumulator struct {
	byProviderIndex map[int]*toolCallEntry
	indexer         *blockIndexer
}

func newToolCallAccumulator(indexer *blockIndexer) *toolCallAccumulator {
	return &toolCallAccumulator{
		byProviderIndex: make(map[int]*toolCallEntry),
		indexer:         indexer,
	}
}

// entry returns the accumulator entry for providerIndex, creating one at
// the next free Claude block index if this is the first time it's seen.
func (a *toolCallAccumulator) entry(providerIndex int) (*toolCallEntry, bool) {
	e, exists := a.byProviderIndex[providerIndex]
	if exists {
		return e, false
	}

	e = &toolCallEntry{claudeIndex: a.indexer.take()}
	a.byProviderIndex[providerIndex] = e

	return e, true
}

// argumentsDelta records newArgs against the entry's accumulated
// arguments and returns the part to emit as input_json_delta. When newArgs
// starts with everything accumulated so far (a provider that resends the
// full string each time), only the new suffix is returned; otherwise
// newArgs is an incremental fragment, appended and returned whole.
func argumentsDelta(entry *toolCallEntry, newArgs string) string {
	if newArgs == "" || newArgs == entry.arguments {
		return ""
	}
	if strings.HasPrefix(newArgs, entry.arguments) {
		delta := newArgs[len(entry.arguments):]
		entry.arguments = newArgs
		return delta
	}
	entry.arguments += newArgs
	return newArgs
}

// convertToolCallID maps an OpenAI-style "call_..." id to Claude's
// "toolu_..." convention, used when emitting tool_use blocks from an
// upstream response (streaming and non-streaming).
func convertToolCallID(id string) string {
	if strings.HasPrefix(id, "toolu_") {
		return id
	}
	if strings.HasPrefix(id, "call_") {
		return "toolu_" + strings.TrimPrefix(id, "call_")
	}
	return "toolu_" + id
}

// convertClaudeToolUseIDToCallID is the inverse mapping used when
// translating a Claude tool_result block's tool_use_id into an OpenAI
// tool_call_id for the upstream request.
func convertClaudeToolUseIDToCallID(id string) string {
	if strings.HasPrefix(id, "call_") {
		return id
	}
	if strings.HasPrefix(id, "toolu_") {
		return "call_" + strings.TrimPrefix(id, "toolu_")
	}
	return "call_" + id
}
