package dedup

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_CheckAndMark(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(ctx, time.Minute, nil)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, Accepted, res)

	res, err = store.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res)

	res, err = store.CheckAndMark(ctx, "evt-2")
	require.NoError(t, err)
	assert.Equal(t, Accepted, res, "distinct keys are independent")
}

func TestMemoryStore_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(ctx, time.Minute, nil)
	require.NoError(t, err)
	defer store.Close()

	const goroutines = 64
	var accepted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := store.CheckAndMark(ctx, "contested")
			assert.NoError(t, err)
			if res == Accepted {
				accepted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), accepted.Load(), "exactly one claimant wins")
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store, err := NewMemoryStore(ctx, 30*time.Millisecond, nil)
	require.NoError(t, err)
	defer store.Close()

	res, err := store.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	require.Equal(t, Accepted, res)

	time.Sleep(50 * time.Millisecond)

	// Past the TTL the key can be claimed again. Redeliveries later than
	// the TTL horizon are out of contract.
	res, err = store.CheckAndMark(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, Accepted, res)
}

func TestResult_String(t *testing.T) {
	assert.Equal(t, "accepted", Accepted.String())
	assert.Equal(t, "duplicate", Duplicate.String())
	assert.Equal(t, "unknown", Result(7).String())
}

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"evt-42", "evt-42"},
		{"dev 1|2026", "dev_1_2026"},
		{".leading", "_leading"},
		{"a.b", "a.b"},
		{"", "_"},
	}
	for _, test := range tests {
		assert.Equal(t, test.want, sanitizeKey(test.in), test.in)
	}
}
