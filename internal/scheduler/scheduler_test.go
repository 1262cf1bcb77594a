package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrelay/ccproxy/internal/config"
)

func chan3() *config.UpstreamChannel {
	return &config.UpstreamChannel{Name: "c1", APIKeys: []string{"k1", "k2", "k3"}}
}

func TestNextKey_SkipsExcludedAndFailed(t *testing.T) {
	s := New()
	ch := chan3()

	k, err := s.NextKey(ch, map[string]bool{"k1": true})
	require.NoError(t, err)
	assert.Equal(t, "k2", k)

	s.MarkKeyFailed(ch.Name, "k2")
	k, err = s.NextKey(ch, map[string]bool{"k1": true})
	require.NoError(t, err)
	assert.Equal(t, "k3", k)
}

func TestNextKey_NoneAvailable(t *testing.T) {
	s := New()
	ch := chan3()

	_, err := s.NextKey(ch, map[string]bool{"k1": true, "k2": true, "k3": true})
	assert.ErrorIs(t, err, ErrNoAvailableKey)
}

func TestNextKey_NeverReturnsExcludedOrFailed(t *testing.T) {
	s := New()
	ch := chan3()
	s.MarkKeyFailed(ch.Name, "k1")

	for i := 0; i < 10; i++ {
		k, err := s.NextKey(ch, map[string]bool{"k3": true})
		require.NoError(t, err)
		assert.NotEqual(t, "k1", k)
		assert.NotEqual(t, "k3", k)
	}
}

func TestDeprioritizeKey_MovesToEndPreservesMultisetAndOrder(t *testing.T) {
	s := New()
	ch := chan3()

	s.DeprioritizeKey(ch, "k1")
	assert.Equal(t, []string{"k2", "k3", "k1"}, ch.APIKeys)
}

func TestDeprioritizeKey_UnknownKeyIsNoop(t *testing.T) {
	s := New()
	ch := chan3()

	s.DeprioritizeKey(ch, "ghost")
	assert.Equal(t, []string{"k1", "k2", "k3"}, ch.APIKeys)
}

// Scenario A: k1 fails auth (not quota-related), k2 succeeds. apiKeys
// order must remain unchanged since nothing is deprioritized.
func TestScenarioA_NonQuotaFailureLeavesOrderUnchanged(t *testing.T) {
	s := New()
	ch := chan3()

	s.MarkKeyFailed(ch.Name, "k1")
	assert.Equal(t, []string{"k1", "k2", "k3"}, ch.APIKeys)
}

// Scenario B: k1 fails with a quota-related error, k2 succeeds. After
// success the router deprioritizes k1.
func TestScenarioB_QuotaFailureThenSuccessReorders(t *testing.T) {
	s := New()
	ch := chan3()

	s.MarkKeyFailed(ch.Name, "k1")
	s.DeprioritizeKey(ch, "k1")

	assert.Equal(t, []string{"k2", "k3", "k1"}, ch.APIKeys)
}
