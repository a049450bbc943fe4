package memory

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStore_GetSet(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	s := New()

	t.Run("missing key", func(t *testing.T) {
		_, ok := s.Get("ratelimit:a:upload:1", now)
		assert.False(t, ok)
	})

	t.Run("live entry", func(t *testing.T) {
		s.Set("ratelimit:a:upload:1", 42, now.Add(time.Minute))
		count, ok := s.Get("ratelimit:a:upload:1", now)
		assert.True(t, ok)
		assert.Equal(t, int64(42), count)
	})

	t.Run("expired entry reads as absent", func(t *testing.T) {
		s.Set("ratelimit:a:upload:2", 7, now.Add(time.Minute))
		_, ok := s.Get("ratelimit:a:upload:2", now.Add(2*time.Minute))
		assert.False(t, ok)
	})

	t.Run("delete", func(t *testing.T) {
		s.Set("k", 1, now.Add(time.Hour))
		s.Delete("k")
		_, ok := s.Get("k", now)
		assert.False(t, ok)
	})
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New()
	now := time.Now()
	var wg sync.WaitGroup

	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 200 {
				key := fmt.Sprintf("k:%d", (i+j)%8)
				s.Set(key, int64(j), now.Add(time.Minute))
				s.Get(key, now)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 8)
}

func TestStore_LazySweep(t *testing.T) {
	s := New()
	base := time.Now().Add(-time.Hour) // all entries already expired

	for i := range sweepEvery + 1 {
		s.Set(fmt.Sprintf("k:%d", i), 1, base)
	}

	// The sweep triggered by the final Set should have dropped expired keys.
	assert.Less(t, s.Len(), sweepEvery)
}
