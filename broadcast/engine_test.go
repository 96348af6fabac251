package broadcast

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ygrebnov/threading/future"
	"github.com/ygrebnov/threading/metrics"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(e.Cancel)
	return e
}

func awaitCompletion(t *testing.T, e *Engine) error {
	t.Helper()
	_, err := e.Completion().AwaitTimeout(2 * time.Second)
	require.NotErrorIs(t, err, future.ErrTimeout, "engine did not complete")
	return err
}

// gate is a subscriber blocking until released, signaling each start.
type gate struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (g *gate) subscriber(ctx context.Context, _ *Message) error {
	g.started <- struct{}{}
	<-g.release
	return nil
}

func (g *gate) waitStarted(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not start")
	}
}

func (g *gate) open() { g.once.Do(func() { close(g.release) }) }

func TestNew_Options(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "defaults"},
		{name: "all options", opts: []Option{
			WithMaxParallelism(4),
			WithMaxMailbox(100),
			WithDispatchRate(10, 1),
			WithSubscriberLimit(2),
			WithFaultHandler(func(error) {}),
			WithMetrics(nil),
			nil,
		}},
		{name: "zero parallelism", opts: []Option{WithMaxParallelism(0)}, wantErr: true},
		{name: "negative mailbox", opts: []Option{WithMaxMailbox(-1)}, wantErr: true},
		{name: "zero rate", opts: []Option{WithDispatchRate(0, 1)}, wantErr: true},
		{name: "zero burst", opts: []Option{WithDispatchRate(1, 0)}, wantErr: true},
		{name: "negative subscriber limit", opts: []Option{WithSubscriberLimit(-1)}, wantErr: true},
		{name: "nil fault handler", opts: []Option{WithFaultHandler(nil)}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.opts...)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidConfig)
				require.Nil(t, e)
				return
			}
			require.NoError(t, err)
			e.Close()
		})
	}
}

func TestSubscribe(t *testing.T) {
	e := newTestEngine(t)

	require.ErrorIs(t, e.Subscribe("a", nil), ErrNilSubscriber)
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { return nil }))
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { return nil }))
	require.Equal(t, 2, e.SubscriberCount("a"))
	require.Zero(t, e.SubscriberCount("b"))
}

func TestPost_FansOutConcurrently(t *testing.T) {
	e := newTestEngine(t)

	const n = 3
	var arrived sync.WaitGroup
	arrived.Add(n)
	all := make(chan struct{})
	go func() { arrived.Wait(); close(all) }()

	var got sync.Map
	for i := 0; i < n; i++ {
		require.NoError(t, e.Subscribe("orders", func(_ context.Context, msg *Message) error {
			got.Store(i, msg.String())
			arrived.Done()
			// every subscriber of the message must be running at the same time
			select {
			case <-all:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("subscribers did not run concurrently")
			}
		}))
	}

	require.True(t, e.PostString("orders", "hello"))
	e.Close()
	require.NoError(t, awaitCompletion(t, e))

	for i := 0; i < n; i++ {
		v, ok := got.Load(i)
		require.True(t, ok)
		require.Equal(t, "hello", v)
	}
}

func TestPost_OnlyChannelSubscribers(t *testing.T) {
	e := newTestEngine(t)

	var a, b atomic.Int32
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { a.Add(1); return nil }))
	require.NoError(t, e.Subscribe("b", func(context.Context, *Message) error { b.Add(1); return nil }))

	require.True(t, e.Post("a", []byte("x")))
	require.True(t, e.Post("a", []byte("y")))
	require.True(t, e.Post("c", []byte("nobody listens")))
	e.Close()
	require.NoError(t, awaitCompletion(t, e))

	require.Equal(t, int32(2), a.Load())
	require.Zero(t, b.Load())
}

func TestPost_DropsWhenMailboxFull(t *testing.T) {
	mp := metrics.NewBasicProvider()
	e := newTestEngine(t, WithMaxParallelism(1), WithMaxMailbox(2), WithMetrics(mp))

	g := newGate()
	defer g.open()
	require.NoError(t, e.Subscribe("a", g.subscriber))

	require.True(t, e.PostString("a", "first"))
	g.waitStarted(t)
	require.True(t, e.PostString("a", "second"))
	// the message in dispatch still counts against the bound
	require.False(t, e.PostString("a", "third"))

	g.open()
	e.Close()
	require.NoError(t, awaitCompletion(t, e))

	require.Equal(t, int64(2), mp.Counter("broadcast_messages_posted_total").(*metrics.BasicCounter).Snapshot())
	require.Equal(t, int64(1), mp.Counter("broadcast_messages_dropped_total").(*metrics.BasicCounter).Snapshot())
	require.Zero(t, mp.UpDownCounter("broadcast_messages_inflight").(*metrics.BasicUpDownCounter).Snapshot())
}

func TestPost_DispatchInProgressCountsAgainstMailbox(t *testing.T) {
	e := newTestEngine(t, WithMaxParallelism(1), WithMaxMailbox(1))

	g := newGate()
	defer g.open()
	require.NoError(t, e.Subscribe("a", g.subscriber))

	require.True(t, e.PostString("a", "first"))
	g.waitStarted(t)
	require.False(t, e.PostString("a", "second"))

	// once the dispatch finishes the slot is free again
	g.open()
	require.Eventually(t, func() bool { return e.PostString("a", "third") }, 2*time.Second, 5*time.Millisecond)
	g.waitStarted(t)

	e.Close()
	require.NoError(t, awaitCompletion(t, e))
}

func TestClose_DrainsQueuedMessages(t *testing.T) {
	e := newTestEngine(t, WithMaxParallelism(1), WithMaxMailbox(1000))

	var count atomic.Int32
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error {
		time.Sleep(time.Millisecond)
		count.Add(1)
		return nil
	}))

	for i := 0; i < 5; i++ {
		require.True(t, e.PostString("a", "m"))
	}
	e.Close()
	e.Close()
	require.False(t, e.PostString("a", "late"))

	require.NoError(t, awaitCompletion(t, e))
	require.Equal(t, int32(5), count.Load())
	require.False(t, e.IsCancellationRequested())
}

func TestClose_WithoutPostsCompletes(t *testing.T) {
	e := newTestEngine(t)
	require.False(t, e.Completion().IsComplete())
	e.Close()
	require.NoError(t, awaitCompletion(t, e))
}

func TestCancel_DiscardsQueuedMessages(t *testing.T) {
	e := newTestEngine(t, WithMaxParallelism(1))

	g := newGate()
	defer g.open()
	var sawCancel atomic.Bool
	require.NoError(t, e.Subscribe("a", func(ctx context.Context, msg *Message) error {
		err := g.subscriber(ctx, msg)
		sawCancel.Store(ctx.Err() != nil)
		return err
	}))

	require.True(t, e.PostString("a", "1"))
	g.waitStarted(t)
	for i := 0; i < 3; i++ {
		require.True(t, e.PostString("a", "queued"))
	}

	e.Cancel()
	require.True(t, e.IsCancellationRequested())
	require.False(t, e.PostString("a", "late"))

	g.open()
	require.NoError(t, awaitCompletion(t, e))
	require.True(t, sawCancel.Load())

	select {
	case <-g.started:
		t.Fatal("a discarded message was dispatched")
	default:
	}
}

func TestCancel_AfterClose(t *testing.T) {
	e := newTestEngine(t, WithMaxParallelism(1))

	g := newGate()
	defer g.open()
	var count atomic.Int32
	require.NoError(t, e.Subscribe("a", func(ctx context.Context, msg *Message) error {
		count.Add(1)
		return g.subscriber(ctx, msg)
	}))

	require.True(t, e.PostString("a", "1"))
	g.waitStarted(t)
	require.True(t, e.PostString("a", "2"))

	e.Close()
	e.Cancel()
	g.open()

	require.NoError(t, awaitCompletion(t, e))
	require.Equal(t, int32(1), count.Load())
}

func TestFaults_SurfaceOnCompletion(t *testing.T) {
	e := newTestEngine(t)

	boom := errors.New("boom")
	var healthy atomic.Int32
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { return boom }))
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { panic("bad subscriber") }))
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { healthy.Add(1); return nil }))

	msg := NewMessage("a", []byte("x"))
	require.True(t, e.PostMessage(msg))
	require.False(t, e.PostMessage(nil))
	e.Close()

	err := awaitCompletion(t, e)
	require.Error(t, err)
	require.ErrorIs(t, err, boom)
	require.ErrorIs(t, err, ErrSubscriberPanicked)
	require.Equal(t, int32(1), healthy.Load())

	var se *SubscriberError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "a", se.Channel)
	require.Equal(t, msg.ID, se.MessageID)
}

func TestFaults_RoutedToHandler(t *testing.T) {
	var mu sync.Mutex
	var faults []error
	mp := metrics.NewBasicProvider()
	e := newTestEngine(t, WithMetrics(mp), WithFaultHandler(func(err error) {
		mu.Lock()
		faults = append(faults, err)
		mu.Unlock()
	}))

	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { return nil }))
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { return io.ErrUnexpectedEOF }))

	require.True(t, e.PostString("a", "x"))
	e.Close()
	require.NoError(t, awaitCompletion(t, e))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, faults, 1)
	var se *SubscriberError
	require.ErrorAs(t, faults[0], &se)
	require.Equal(t, 1, se.Subscriber)
	require.ErrorIs(t, faults[0], io.ErrUnexpectedEOF)
	require.Equal(t, int64(1), mp.Counter("broadcast_subscriber_faults_total").(*metrics.BasicCounter).Snapshot())
}

func TestFaults_HandlerPanicDoesNotStopEngine(t *testing.T) {
	var handled atomic.Int32
	e := newTestEngine(t, WithMaxParallelism(1), WithFaultHandler(func(error) {
		handled.Add(1)
		panic("handler bug")
	}))

	var healthy atomic.Int32
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { return errors.New("boom") }))
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { healthy.Add(1); return nil }))

	require.True(t, e.PostString("a", "1"))
	require.True(t, e.PostString("a", "2"))
	e.Close()

	require.NoError(t, awaitCompletion(t, e))
	require.Equal(t, int32(2), handled.Load())
	require.Equal(t, int32(2), healthy.Load())
}

func TestDispatchRate_SpacesMessages(t *testing.T) {
	e := newTestEngine(t, WithMaxParallelism(2), WithDispatchRate(rate.Every(30*time.Millisecond), 1))

	var count atomic.Int32
	require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error { count.Add(1); return nil }))

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.True(t, e.PostString("a", "tick"))
	}
	e.Close()
	require.NoError(t, awaitCompletion(t, e))

	require.Equal(t, int32(3), count.Load())
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestSubscriberLimit_BoundsFanOut(t *testing.T) {
	e := newTestEngine(t, WithSubscriberLimit(1))

	var running, peak atomic.Int32
	for i := 0; i < 4; i++ {
		require.NoError(t, e.Subscribe("a", func(context.Context, *Message) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			running.Add(-1)
			return nil
		}))
	}

	require.True(t, e.PostString("a", "x"))
	e.Close()
	require.NoError(t, awaitCompletion(t, e))
	require.Equal(t, int32(1), peak.Load())
}

func TestPostReader_PayloadSharedBySubscribers(t *testing.T) {
	e := newTestEngine(t)

	var mu sync.Mutex
	var texts []string
	for i := 0; i < 2; i++ {
		require.NoError(t, e.Subscribe("a", func(_ context.Context, msg *Message) error {
			s, err := msg.Text()
			mu.Lock()
			texts = append(texts, s)
			mu.Unlock()
			return err
		}))
	}

	require.True(t, e.PostReader("a", strings.NewReader("streamed")))
	e.Close()
	require.NoError(t, awaitCompletion(t, e))
	require.Equal(t, []string{"streamed", "streamed"}, texts)
}
