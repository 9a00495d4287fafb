package lru

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetMiss(t *testing.T) {
	c := New[string, bool](4)

	v, ok := c.Get("tok-1|sig")
	assert.False(t, ok)
	assert.False(t, v)
}

func TestCache_PutGet(t *testing.T) {
	c := New[string, bool](4)
	c.Put("tok-1|sig", true)
	c.Put("tok-2|sig", false)

	v, ok := c.Get("tok-1|sig")
	assert.True(t, ok)
	assert.True(t, v)

	v, ok = c.Get("tok-2|sig")
	assert.True(t, ok)
	assert.False(t, v)
	assert.Equal(t, 2, c.Len())
}

func TestCache_EvictsOldest(t *testing.T) {
	c := New[string, bool](2)
	c.Put("a", true)
	c.Put("b", true)
	c.Put("c", true)

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_GetRefreshesRecency(t *testing.T) {
	c := New[string, bool](2)
	c.Put("a", true)
	c.Put("b", true)

	// a becomes most recent, so b is the eviction victim.
	c.Get("a")
	c.Put("c", true)

	_, ok := c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestCache_PutUpdatesExisting(t *testing.T) {
	c := New[string, bool](2)
	c.Put("a", false)
	c.Put("a", true)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.True(t, v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_Delete(t *testing.T) {
	c := New[string, bool](2)
	c.Put("a", true)

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_NewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[string, bool](0) })
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[string, bool](64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				key := fmt.Sprintf("tok-%d-%d", worker, j%32)
				c.Put(key, j%2 == 0)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 64)
}
