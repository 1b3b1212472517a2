package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logaware/backend/internal/models"
)

func batch(id string) *models.Batch {
	return &models.Batch{ID: id}
}

func TestGetPut(t *testing.T) {
	c := New(2)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Put(batch("a"))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2)
	c.Put(batch("a"))
	c.Put(batch("b"))

	// touch a so b becomes the oldest
	_, _ = c.Get("a")
	evicted := c.Put(batch("c"))

	assert.Equal(t, "b", evicted)
	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	assert.False(t, ok)

	var ids []string
	for _, b := range c.List() {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"c", "a"}, ids)
}

func TestPutReplacesSameID(t *testing.T) {
	c := New(2)
	c.Put(&models.Batch{ID: "a", Filename: "old.log"})
	evicted := c.Put(&models.Batch{ID: "a", Filename: "new.log"})

	assert.Empty(t, evicted)
	assert.Equal(t, 1, c.Len())
	got, _ := c.Get("a")
	assert.Equal(t, "new.log", got.Filename)
}

func TestRemove(t *testing.T) {
	c := New(0)
	c.Put(batch("a"))

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, 0, c.Len())
}

func TestDefaultCapacity(t *testing.T) {
	c := New(-1)
	for i := 0; i < DefaultCapacity+3; i++ {
		c.Put(batch(fmt.Sprint(i)))
	}
	assert.Equal(t, DefaultCapacity, c.Len())
}

func TestConcurrentAccess(t *testing.T) {
	c := New(8)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprint(i % 10)
			c.Put(batch(id))
			c.Get(id)
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}
