package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_CaptureAndGet(t *testing.T) {
	tr := NewTracker()

	_, ok := tr.Get("proj1/phase1")
	assert.False(t, ok)

	tr.Capture("proj1/phase1", "claude", "s-1")
	state, ok := tr.Get("proj1/phase1")
	require.True(t, ok)
	assert.Equal(t, "claude", state.Tool)
	assert.Equal(t, "s-1", state.SessionID)
	assert.False(t, state.CapturedAt.IsZero())
}

func TestTracker_LastWriteWins(t *testing.T) {
	tr := NewTracker()
	tr.Capture("k", "claude", "first")
	tr.Capture("k", "claude", "second")

	state, ok := tr.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second", state.SessionID)
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_EmptyValuesIgnored(t *testing.T) {
	tr := NewTracker()
	tr.Capture("", "claude", "s-1")
	tr.Capture("k", "claude", "")
	assert.Equal(t, 0, tr.Len())
}

func TestTracker_Forget(t *testing.T) {
	tr := NewTracker()
	tr.Capture("k", "codex", "s-1")
	tr.Forget("k")
	_, ok := tr.Get("k")
	assert.False(t, ok)
}

func TestTracker_ConcurrentAccess(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tr.Capture(fmt.Sprintf("conv-%d", i%5), "claude", fmt.Sprintf("s-%d", i))
		}(i)
		go func(i int) {
			defer wg.Done()
			tr.Get(fmt.Sprintf("conv-%d", i%5))
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, tr.Len(), 5)
}
