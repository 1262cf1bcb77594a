package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlockIndexer_SharedSequence(t *testing.T) {
	idx := &blockIndexer{}
	assert.Equal(t, 0, idx.take())
	assert.Equal(t, 1, idx.take())
	assert.Equal(t, 2, idx.take())
}

func TestToolCallAccumulator_AssignsIndicesFromSharedIndexer(t *testing.T) {
	idx := &blockIndexer{}
	idx.take() // simulate a text block having already claimed index 0

	accum := newToolCallAccumulator(idx)

	entry, isNew := accum.entry(0)
	assert.True(t, isNew)
	assert.Equal(t, 1, entry.claudeIndex)

	again, isNew := accum.entry(0)
	assert.False(t, isNew)
	assert.Same(t, entry, again)

	second, isNew := accum.entry(1)
	assert.True(t, isNew)
	assert.Equal(t, 2, second.claudeIndex)
}

func TestToolCallAccumulator_NoTextClaimsIndexZero(t *testing.T) {
	idx := &blockIndexer{}
	accum := newToolCallAccumulator(idx)

	entry, isNew := accum.entry(0)
	assert.True(t, isNew)
	assert.Equal(t, 0, entry.claudeIndex)
}

func TestArgumentsDelta_SuffixExtension(t *testing.T) {
	e := &toolCallEntry{}
	assert.Equal(t, `{"a":`, argumentsDelta(e, `{"a":`))
	assert.Equal(t, `1}`, argumentsDelta(e, `{"a":1}`))
	assert.Equal(t, "", argumentsDelta(e, `{"a":1}`))
}

func TestArgumentsDelta_NonSuffixFallsBackToWholeString(t *testing.T) {
	e := &toolCallEntry{arguments: "abc"}
	assert.Equal(t, "xyz", argumentsDelta(e, "xyz"))
}

func TestConvertToolCallID(t *testing.T) {
	assert.Equal(t, "toolu_abc", convertToolCallID("call_abc"))
	assert.Equal(t, "toolu_abc", convertToolCallID("toolu_abc"))
	assert.Equal(t, "toolu_abc", convertToolCallID("abc"))
}

func TestConvertClaudeToolUseIDToCallID(t *testing.T) {
	assert.Equal(t, "call_abc", convertClaudeToolUseIDToCallID("toolu_abc"))
	assert.Equal(t, "call_abc", convertClaudeToolUseIDToCallID("call_abc"))
	assert.Equal(t, "call_abc", convertClaudeToolUseIDToCallID("abc"))
}
