package usage

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestTracker_RecordRequest(t *testing.T) {
	tr := NewTracker()

	tr.RecordRequest("s1", "a1", 10, 5)
	tr.RecordRequest("s1", "a1", 1, 2)
	tr.RecordRequest("s2", "a1", 100, 0)

	s1, ok := tr.SessionUsage("s1")
	require.True(t, ok)
	assert.Equal(t, Report{InputTokens: 11, OutputTokens: 7, TotalTokens: 18, RequestCount: 2}, s1)

	a1, ok := tr.AgentUsage("a1")
	require.True(t, ok)
	assert.Equal(t, Report{InputTokens: 111, OutputTokens: 7, TotalTokens: 118, RequestCount: 3}, a1)

	_, ok = tr.SessionUsage("missing")
	assert.False(t, ok)
}

func TestTracker_SnapshotsAreCopies(t *testing.T) {
	tr := NewTracker()
	tr.RecordRequest("s", "a", 1, 1)

	snap, _ := tr.SessionUsage("s")
	snap.RequestCount = 99

	again, _ := tr.SessionUsage("s")
	assert.Equal(t, 1, again.RequestCount)
}

func TestTracker_ResetSessionKeepsAgent(t *testing.T) {
	tr := NewTracker()
	tr.RecordRequest("s", "a", 3, 4)

	tr.ResetSession("s")

	_, ok := tr.SessionUsage("s")
	assert.False(t, ok)
	a, ok := tr.AgentUsage("a")
	require.True(t, ok)
	assert.Equal(t, 7, a.TotalTokens)
	assert.Empty(t, tr.SessionKeys())
	assert.Equal(t, []string{"a"}, tr.AgentKeys())
}

func TestTracker_Keys(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 50; i++ {
		tr.RecordRequest(fmt.Sprintf("s%02d", i), fmt.Sprintf("a%d", i%3), 1, 0)
	}
	keys := tr.SessionKeys()
	assert.Len(t, keys, 50)
	assert.Equal(t, "s00", keys[0])
	assert.Equal(t, []string{"a0", "a1", "a2"}, tr.AgentKeys())
	assert.Equal(t, 50, tr.Totals().RequestCount)
}

func TestTracker_ConcurrentRecordRequest(t *testing.T) {
	const (
		workers = 16
		perWork = 500
	)
	tr := NewTracker()

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < perWork; i++ {
				tr.RecordRequest("shared-session", "shared-agent", 10, 5)
			}
			return nil
		})
	}
	// Unrelated keys recorded at the same time must not disturb the shared ones.
	g.Go(func() error {
		for i := 0; i < perWork; i++ {
			tr.RecordRequest(fmt.Sprintf("other-%d", i), "other-agent", 1, 1)
			_, _ = tr.SessionUsage("shared-session")
		}
		return nil
	})
	require.NoError(t, g.Wait())

	for _, get := range []func() (Report, bool){
		func() (Report, bool) { return tr.SessionUsage("shared-session") },
		func() (Report, bool) { return tr.AgentUsage("shared-agent") },
	} {
		r, ok := get()
		require.True(t, ok)
		assert.Equal(t, workers*perWork, r.RequestCount)
		assert.Equal(t, workers*perWork*15, r.TotalTokens)
		assert.Equal(t, workers*perWork*10, r.InputTokens)
	}
}
