package convo

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPendingLifecycle(t *testing.T) {
	tr := NewTracker()
	c := tr.Get("u1")
	assert.Equal(t, StateReady, c.State)

	c.SetPending(&PendingExpense{
		BookID:        "b1",
		BookName:      "House",
		CategoryLabel: "Bills & Utilities",
	})
	assert.Equal(t, StateAwaitingConfirmation, c.State)
	assert.False(t, c.Confirmable(), "category not created yet")

	// Creating an unrelated category does not unblock it.
	c.NoteCategory("c-other", "Food")
	assert.False(t, c.Confirmable())

	c.NoteCategory("c1", "bills & utilities")
	assert.True(t, c.Confirmable())
	assert.Equal(t, StateReady, c.State)
	assert.Equal(t, "c1", c.Pending.CategoryID)

	c.ClearPending(false)
	assert.Nil(t, c.Pending)
}

func TestPendingAbandoned(t *testing.T) {
	tr := NewTracker()
	c := tr.Get("u1")
	c.SetPending(&PendingExpense{CategoryLabel: "Bills"})
	c.ClearPending(true)
	assert.Equal(t, StateAbandoned, c.State)
	assert.Nil(t, c.Pending)
}

func TestTracker_PerUserIsolation(t *testing.T) {
	tr := NewTracker()
	tr.Get("u1").NoteBook("b1", "House")
	assert.Empty(t, tr.Get("u2").LastBookName)
	assert.Equal(t, "House", tr.Get("u1").LastBookName)
}

func TestContext_ConcurrentTurns(t *testing.T) {
	tr := NewTracker()

	// Simulated turns from the same user on parallel requests; each holds
	// the context lock across its whole read-modify sequence, the way a
	// chat turn does. Run with -race.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			c := tr.Get("u1")
			c.Lock()
			defer c.Unlock()
			label := fmt.Sprintf("cat-%d", n)
			c.SetPending(&PendingExpense{CategoryLabel: label})
			c.NoteCategory(fmt.Sprintf("id-%d", n), label)
			if c.Confirmable() {
				c.ClearPending(false)
			}
		}(i)
	}
	wg.Wait()

	c := tr.Get("u1")
	c.Lock()
	defer c.Unlock()
	assert.Nil(t, c.Pending)
	assert.Equal(t, StateReady, c.State)
}

func TestIsProceed(t *testing.T) {
	yes := []string{
		"yes", "Yes!", "ok", "Okay.", "go ahead", "add it now",
		"sure, add it", "ok do it then", "yes please", "create it",
	}
	for _, u := range yes {
		assert.True(t, IsProceed(u), u)
	}

	no := []string{
		"",
		"show my books",
		"add 40 for electricity in House",
		"no",
		"actually never mind, what did I spend on food last month",
		"it's ok I guess but first show me my expenses for this week",
	}
	for _, u := range no {
		assert.False(t, IsProceed(u), u)
	}
}
