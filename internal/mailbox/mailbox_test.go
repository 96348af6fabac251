package mailbox

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMailbox_TryPushCapacity(t *testing.T) {
	m := New[int](2)

	require.NoError(t, m.TryPush(1))
	require.NoError(t, m.TryPush(2))
	require.ErrorIs(t, m.TryPush(3), ErrFull)
	require.Equal(t, 2, m.Len())
	require.Equal(t, 2, m.Cap())
}

func TestMailbox_Unbounded(t *testing.T) {
	m := New[int](0)
	for i := 0; i < 1000; i++ {
		require.NoError(t, m.TryPush(i))
	}
	require.Equal(t, 1000, m.Len())
}

func TestMailbox_PopFIFO(t *testing.T) {
	m := New[string](0)
	require.NoError(t, m.TryPush("a"))
	require.NoError(t, m.TryPush("b"))

	ctx := context.Background()
	v, err := m.Pop(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "a", v)

	v, err = m.Pop(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "b", v)
}

func TestMailbox_PopBatch(t *testing.T) {
	m := New[int](0)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.TryPush(i))
	}

	buf := make([]int, 0, 3)
	batch, err := m.PopBatch(context.Background(), 0, buf, 3)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, batch)

	batch, err = m.PopBatch(context.Background(), 0, buf, 3)
	require.NoError(t, err)
	require.Equal(t, []int{3, 4}, batch)

	_, err = m.PopBatch(context.Background(), 10*time.Millisecond, buf, 3)
	require.ErrorIs(t, err, ErrIdle)
}

func TestMailbox_IdleAndContext(t *testing.T) {
	m := New[int](0)

	_, err := m.Pop(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrIdle)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Pop(ctx, 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMailbox_CloseDrainsThenFails(t *testing.T) {
	m := New[int](0)
	require.NoError(t, m.TryPush(1))
	m.Close()

	require.ErrorIs(t, m.TryPush(2), ErrClosed)

	v, err := m.Pop(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	_, err = m.Pop(context.Background(), 0)
	require.ErrorIs(t, err, ErrClosed)
}

func TestMailbox_CloseWakesConsumers(t *testing.T) {
	m := New[int](0)

	errs := make(chan error, 1)
	go func() {
		_, err := m.Pop(context.Background(), 0)
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	m.Close()

	select {
	case err := <-errs:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("consumer was not woken by Close")
	}
}

func TestMailbox_Discard(t *testing.T) {
	m := New[int](0)
	for i := 0; i < 3; i++ {
		require.NoError(t, m.TryPush(i))
	}

	require.Equal(t, []int{0, 1, 2}, m.Discard())
	require.Zero(t, m.Len())

	_, err := m.Pop(context.Background(), 0)
	require.ErrorIs(t, err, ErrClosed)
}

// Concurrent batch consumers must deliver every item exactly once.
func TestMailbox_ConcurrentBatchesLoseNothing(t *testing.T) {
	const (
		producers = 4
		perProd   = 500
		consumers = 3
	)
	m := New[int](0)

	var seen sync.Map
	var total atomic.Int64
	var wg sync.WaitGroup
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]int, 0, 4)
			for {
				batch, err := m.PopBatch(context.Background(), 0, buf, 4)
				if err != nil {
					return
				}
				require.LessOrEqual(t, len(batch), 4)
				for _, v := range batch {
					_, dup := seen.LoadOrStore(v, struct{}{})
					require.False(t, dup)
					total.Add(1)
				}
			}
		}()
	}

	var pg sync.WaitGroup
	for p := 0; p < producers; p++ {
		pg.Add(1)
		go func(p int) {
			defer pg.Done()
			for i := 0; i < perProd; i++ {
				require.NoError(t, m.TryPush(p*perProd+i))
			}
		}(p)
	}
	pg.Wait()
	m.Close()
	wg.Wait()

	require.Equal(t, int64(producers*perProd), total.Load())
}
