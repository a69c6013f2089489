package runstate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bubblelab/bubbleflow/credential"
)

func TestStoreCreateOnFirstAccess(t *testing.T) {
	store := NewStore()

	a := store.Get("flow-a")
	assert.NotNil(t, a)
	assert.Same(t, a, store.Get("flow-a"), "repeat access returns the same state")

	b := store.Get("flow-b")
	assert.NotSame(t, a, b, "different flows get independent state")
}

func TestFlowStateInputs(t *testing.T) {
	state := NewStore().Get("flow-1")

	state.SetInput("url", "https://example.com")
	state.SetInput("limit", 5)

	inputs := state.Inputs()
	assert.Equal(t, "https://example.com", inputs["url"])
	assert.Equal(t, 5, inputs["limit"])

	// Mutating the returned copy must not leak back into the store.
	inputs["url"] = "tampered"
	assert.Equal(t, "https://example.com", state.Inputs()["url"])

	state.ReplaceInputs(map[string]any{"query": "news"})
	inputs = state.Inputs()
	assert.Len(t, inputs, 1)
	assert.Equal(t, "news", inputs["query"])
}

func TestFlowStateCredentials(t *testing.T) {
	state := NewStore().Get("flow-1")

	state.SetCredential("42", credential.TypeFirecrawl, 7)
	state.SetCredential("42", credential.TypeSlack, 9)
	state.SetCredential("43", credential.TypeFirecrawl, 7)

	creds := state.Credentials()
	assert.Equal(t, int64(7), creds["42"][credential.TypeFirecrawl])
	assert.Equal(t, int64(9), creds["42"][credential.TypeSlack])
	assert.Equal(t, int64(7), creds["43"][credential.TypeFirecrawl])

	// Returned copy is detached from the store.
	creds["42"][credential.TypeFirecrawl] = 999
	assert.Equal(t, int64(7), state.Credentials()["42"][credential.TypeFirecrawl])

	state.ClearCredential("42", credential.TypeSlack)
	_, ok := state.Credentials()["42"][credential.TypeSlack]
	assert.False(t, ok)
}

func TestFlowStateFlags(t *testing.T) {
	state := NewStore().Get("flow-1")

	assert.False(t, state.IsRunning())
	assert.False(t, state.IsValidating())

	state.SetRunning(true)
	state.SetValidating(true)
	assert.True(t, state.IsRunning())
	assert.True(t, state.IsValidating())

	state.SetRunning(false)
	assert.False(t, state.IsRunning())
	assert.True(t, state.IsValidating())
}

func TestFlowStateSnapshot(t *testing.T) {
	state := NewStore().Get("flow-1")
	state.SetInput("url", "https://example.com")
	state.SetCredential("42", credential.TypeFirecrawl, 7)
	state.SetRunning(true)

	snap := state.Snapshot()
	assert.Equal(t, "https://example.com", snap.ExecutionInputs["url"])
	assert.Equal(t, int64(7), snap.PendingCredentials["42"][credential.TypeFirecrawl])
	assert.True(t, snap.IsRunning)
	assert.False(t, snap.IsValidating)

	// Later mutations do not show up in an old snapshot.
	state.SetInput("url", "changed")
	assert.Equal(t, "https://example.com", snap.ExecutionInputs["url"])
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			state := store.Get("shared")
			state.SetInput("field", n)
			state.SetCredential("1", credential.TypeSlack, int64(n))
			state.SetRunning(n%2 == 0)
			_ = state.Snapshot()
		}(i)
	}
	wg.Wait()

	snap := store.Get("shared").Snapshot()
	assert.Contains(t, snap.ExecutionInputs, "field")
	assert.Contains(t, snap.PendingCredentials, "1")
}
