// Package scheduler selects API keys for a channel during failover and
// tracks which keys have recently failed. It is the only code permitted to
// mutate a channel's apiKeys ordering once the server is running.
//
// Declared decision (spec.md §9's open policy question): the failed-key
// set is scoped per channel, not process-global. A process-global set
// would let one channel's outage taint a different channel that happens
// to reuse a key string (some deployments share one provider account
// across two differently-configured channels); per-channel scoping keeps
// a failure's blast radius equal to the channel that observed it.
package scheduler

import (
	"errors"
	"sync"

	"github.com/ccrelay/ccproxy/internal/config"
)

// ErrNoAvailableKey is returned by NextKey when every key of a channel is
// either excluded by the caller or already marked failed.
var ErrNoAvailableKey = errors.New("no available key")

// channelState holds the failed-key set for one channel. Read in:
// NextKey. Written in: MarkKeyFailed. The channel's key order itself lives
// on the *config.UpstreamChannel the caller passes in; DeprioritizeKey
// mutates that slice in place under this lock, which is the only mutation
// of persisted order permitted anywhere in the process.
type channelState struct {
	mu     sync.Mutex
	failed map[string]bool
}

// Scheduler holds one channelState per channel name, created lazily.
type Scheduler struct {
	mu       sync.Mutex
	channels map[string]*channelState
}

func New() *Scheduler {
	return &Scheduler{channels: make(map[string]*channelState)}
}

func (s *Scheduler) state(channel string) *channelState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.channels[channel]
	if !ok {
		st = &channelState{failed: make(map[string]bool)}
		s.channels[channel] = st
	}
	return st
}

// NextKey returns the first key of ch.APIKeys, in order, that is not in
// exclude and has not been marked failed for this channel.
func (s *Scheduler) NextKey(ch *config.UpstreamChannel, exclude map[string]bool) (string, error) {
	st := s.state(ch.Name)

	st.mu.Lock()
	defer st.mu.Unlock()

	for _, k := range ch.APIKeys {
		if exclude[k] {
			continue
		}
		if st.failed[k] {
			continue
		}
		return k, nil
	}

	return "", ErrNoAvailableKey
}

// MarkKeyFailed records key as failed for ch.Name. Effect is
// observational: it only influences subsequent NextKey calls on the same
// channel.
func (s *Scheduler) MarkKeyFailed(channel string, key string) {
	st := s.state(channel)

	st.mu.Lock()
	st.failed[key] = true
	st.mu.Unlock()
}

// DeprioritizeKey moves key to the end of ch.APIKeys, mutating the slice
// in place. It must be invoked only after a request succeeds following at
// least one quota-related failure on key earlier in the same attempt loop.
func (s *Scheduler) DeprioritizeKey(ch *config.UpstreamChannel, key string) {
	st := s.state(ch.Name)

	st.mu.Lock()
	defer st.mu.Unlock()

	reordered := make([]string, 0, len(ch.APIKeys))
	found := false
	for _, k := range ch.APIKeys {
		if k == key {
			found = true
			continue
		}
		reordered = append(reordered, k)
	}
	if found {
		reordered = append(reordered, key)
		ch.APIKeys = reordered
	}
}
