package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircular_WriteRead(t *testing.T) {
	b, err := NewCircular[int](4)
	require.NoError(t, err)
	defer b.Close()

	for i := 1; i <= 3; i++ {
		require.NoError(t, b.Write(i))
	}
	assert.Equal(t, 3, b.Size())

	for i := 1; i <= 3; i++ {
		v, ok := b.Read()
		require.True(t, ok)
		assert.Equal(t, i, v, "FIFO order")
	}

	_, ok := b.Read()
	assert.False(t, ok)
}

func TestCircular_DropOldest(t *testing.T) {
	var dropped []int
	b, err := NewCircular[int](2,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback[int](func(item int) { dropped = append(dropped, item) }))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Write(1))
	require.NoError(t, b.Write(2))
	require.NoError(t, b.Write(3))

	assert.Equal(t, []int{1}, dropped)
	assert.Equal(t, int64(1), b.Stats().Drops())

	v, _ := b.Read()
	assert.Equal(t, 2, v)
}

func TestCircular_DropNewest(t *testing.T) {
	var dropped []int
	b, err := NewCircular[int](2,
		WithOverflowPolicy[int](DropNewest),
		WithDropCallback[int](func(item int) { dropped = append(dropped, item) }))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Write(1))
	require.NoError(t, b.Write(2))
	require.NoError(t, b.Write(3))

	assert.Equal(t, []int{3}, dropped)

	v, _ := b.Read()
	assert.Equal(t, 1, v)
}

func TestCircular_BlockPolicyWaitsForSpace(t *testing.T) {
	b, err := NewCircular[int](1, WithOverflowPolicy[int](Block))
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, b.Write(1))

	unblocked := make(chan struct{})
	go func() {
		_ = b.Write(2) // blocks until the reader makes room
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("write should have blocked on a full buffer")
	case <-time.After(20 * time.Millisecond):
	}

	v, ok := b.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("write never unblocked after space freed")
	}
}

func TestCircular_BlockingRead(t *testing.T) {
	b, err := NewCircular[string](4)
	require.NoError(t, err)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_ = b.Write("hello")
	}()

	v, err := b.BlockingRead()
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestCircular_CloseDrainsThenErrClosed(t *testing.T) {
	b, err := NewCircular[int](4)
	require.NoError(t, err)

	require.NoError(t, b.Write(1))
	require.NoError(t, b.Close())

	// Buffered item still readable after close
	v, err := b.BlockingRead()
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = b.BlockingRead()
	assert.ErrorIs(t, err, ErrClosed)

	assert.Error(t, b.Write(2))
}

func TestCircular_ReadBatch(t *testing.T) {
	b, err := NewCircular[int](8)
	require.NoError(t, err)
	defer b.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Write(i))
	}

	batch := b.ReadBatch(3)
	assert.Equal(t, []int{0, 1, 2}, batch)

	batch = b.ReadBatch(10)
	assert.Equal(t, []int{3, 4}, batch)

	assert.Nil(t, b.ReadBatch(1))
}

func TestCircular_ConcurrentProducersConsumers(t *testing.T) {
	b, err := NewCircular[int](16, WithOverflowPolicy[int](Block))
	require.NoError(t, err)

	const producers = 4
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				require.NoError(t, b.Write(i))
			}
		}()
	}

	done := make(chan int)
	go func() {
		count := 0
		for {
			_, err := b.BlockingRead()
			if err != nil {
				done <- count
				return
			}
			count++
		}
	}()

	wg.Wait()
	require.NoError(t, b.Close())

	select {
	case count := <-done:
		assert.Equal(t, producers*perProducer, count)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer never drained the buffer")
	}
}

func TestParsePolicy(t *testing.T) {
	assert.Equal(t, DropOldest, ParsePolicy("drop_oldest"))
	assert.Equal(t, DropNewest, ParsePolicy("drop_newest"))
	assert.Equal(t, Block, ParsePolicy("block"))
	assert.Equal(t, Block, ParsePolicy(""))
}
