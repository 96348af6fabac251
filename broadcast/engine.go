// Package broadcast implements a channel-addressed fan-out engine: messages posted to a
// named channel are dispatched, under a bounded parallelism, to every subscriber of that
// channel concurrently.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ygrebnov/threading/future"
	"github.com/ygrebnov/threading/internal/mailbox"
	"github.com/ygrebnov/threading/metrics"
)

// Subscriber handles the messages of one channel. A returned error or a panic is a fault
// of this subscriber only; the other subscribers of the message are not affected.
type Subscriber func(ctx context.Context, msg *Message) error

// SubscriberError tags a subscriber fault with the message it was handling.
type SubscriberError struct {
	Channel   string
	MessageID uuid.UUID
	// Subscriber is the registration index of the subscriber within its channel.
	Subscriber int
	Err        error
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("channel %q: subscriber %d: %v", e.Channel, e.Subscriber, e.Err)
}

func (e *SubscriberError) Unwrap() error { return e.Err }

// Engine dispatches posted messages to channel subscribers.
//
// Semantics:
//   - Post never blocks. A message posted while MaxMailbox messages are outstanding (queued
//     or in dispatch), or after Close or Cancel, is dropped and Post reports false.
//   - Up to MaxParallelism messages are dispatched at once; no order is kept across messages.
//   - A message is processed once every subscriber of its channel has returned.
//   - Close stops accepting messages and lets the queued ones drain; Cancel also discards
//     the queued ones and turns pending dispatches into no-ops.
//   - Completion resolves once draining has finished after Close or Cancel.
type Engine struct {
	cfg config
	log zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu serializes posting, drainer spawn and closing.
	mu       sync.Mutex
	mailbox  *mailbox.Mailbox[*Message]
	drainers int
	closed   bool
	wg       sync.WaitGroup
	// outstanding counts accepted messages not yet processed; MaxMailbox bounds it.
	outstanding int

	subsMu sync.RWMutex
	subs   map[string][]Subscriber

	limiter   *rate.Limiter
	cancelled atomic.Bool

	faultsMu sync.Mutex
	faults   []error

	completion *future.Future[struct{}]
	complete   func(struct{}, error)

	m engineInstruments
}

type engineInstruments struct {
	posted   metrics.Counter
	dropped  metrics.Counter
	faults   metrics.Counter
	duration metrics.Histogram
	inflight metrics.UpDownCounter
}

func newEngineInstruments(p metrics.Provider) engineInstruments {
	return engineInstruments{
		posted: p.Counter("broadcast_messages_posted_total",
			metrics.WithDescription("Messages accepted into the mailbox.")),
		dropped: p.Counter("broadcast_messages_dropped_total",
			metrics.WithDescription("Messages dropped because the mailbox was full or closed, or discarded by Cancel.")),
		faults: p.Counter("broadcast_subscriber_faults_total",
			metrics.WithDescription("Subscriber calls that panicked or returned an error.")),
		duration: p.Histogram("broadcast_dispatch_duration_seconds",
			metrics.WithDescription("Time to fan a message out to all subscribers."), metrics.WithUnit("seconds")),
		inflight: p.UpDownCounter("broadcast_messages_inflight",
			metrics.WithDescription("Messages accepted and not yet processed.")),
	}
}

// New creates an Engine using functional options.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:     cfg,
		log:     cfg.Logger.With().Str("component", "broadcast.engine").Logger(),
		mailbox: mailbox.New[*Message](0),
		subs:    make(map[string][]Subscriber),
		m:       newEngineInstruments(cfg.Metrics),
	}
	if cfg.DispatchRate != rate.Inf {
		e.limiter = rate.NewLimiter(cfg.DispatchRate, cfg.DispatchBurst)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.completion, e.complete = future.NewPromise[struct{}]()
	return e, nil
}

// Subscribe appends s to the subscribers of channel. It is safe to call while messages
// are being dispatched; a message already in dispatch does not see the new subscriber.
func (e *Engine) Subscribe(channel string, s Subscriber) error {
	if s == nil {
		return ErrNilSubscriber
	}
	e.subsMu.Lock()
	e.subs[channel] = append(e.subs[channel], s)
	e.subsMu.Unlock()
	return nil
}

// SubscriberCount returns the number of subscribers of channel.
func (e *Engine) SubscriberCount(channel string) int {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	return len(e.subs[channel])
}

func (e *Engine) subscribers(channel string) []Subscriber {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	subs := e.subs[channel]
	// The table is append-only; a capped slice keeps later appends out of this view.
	return subs[:len(subs):len(subs)]
}

// Post posts payload to channel. It reports false when the message was dropped.
func (e *Engine) Post(channel string, payload []byte) bool {
	return e.post(NewMessage(channel, payload))
}

// PostReader posts a message whose payload is read from r when first accessed.
func (e *Engine) PostReader(channel string, r io.Reader) bool {
	return e.post(NewReaderMessage(channel, r))
}

// PostString posts text encoded as UTF-8.
func (e *Engine) PostString(channel, text string) bool {
	return e.post(NewMessage(channel, []byte(text)))
}

// PostMessage posts a prepared message.
func (e *Engine) PostMessage(msg *Message) bool {
	if msg == nil {
		return false
	}
	return e.post(msg)
}

func (e *Engine) post(msg *Message) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.drop(msg, "engine closed")
		return false
	}
	if e.cfg.MaxMailbox > 0 && e.outstanding >= e.cfg.MaxMailbox {
		e.drop(msg, "mailbox full")
		return false
	}
	if err := e.mailbox.TryPush(msg); err != nil {
		e.drop(msg, "mailbox closed")
		return false
	}
	e.outstanding++
	e.m.posted.Add(1)
	e.m.inflight.Add(1)

	if e.drainers < e.cfg.MaxParallelism {
		e.drainers++
		e.wg.Add(1)
		go e.drain()
	}
	return true
}

func (e *Engine) drop(msg *Message, reason string) {
	e.m.dropped.Add(1)
	e.log.Debug().
		Str("channel", msg.Channel).
		Stringer("message_id", msg.ID).
		Str("reason", reason).
		Msg("message dropped")
}

// drain is the loop of one dispatch goroutine.
func (e *Engine) drain() {
	defer e.wg.Done()
	for {
		msg, err := e.mailbox.Pop(e.ctx, 0)
		if err != nil {
			return
		}
		e.dispatch(msg)
		e.settle(1)
	}
}

// settle accounts n accepted messages as processed or discarded.
func (e *Engine) settle(n int) {
	e.mu.Lock()
	e.outstanding -= n
	e.mu.Unlock()
	e.m.inflight.Add(-int64(n))
}

// dispatch fans msg out to the subscribers of its channel and waits for all of them.
func (e *Engine) dispatch(msg *Message) {
	if e.ctx.Err() != nil {
		return
	}

	subs := e.subscribers(msg.Channel)
	if len(subs) == 0 {
		return
	}

	if e.limiter != nil {
		if err := e.limiter.Wait(e.ctx); err != nil {
			return
		}
	}

	start := time.Now()
	var g errgroup.Group
	if e.cfg.SubscriberLimit > 0 {
		g.SetLimit(e.cfg.SubscriberLimit)
	}
	for i, s := range subs {
		g.Go(func() error {
			if err := callSubscriber(e.ctx, s, msg); err != nil {
				e.fault(&SubscriberError{Channel: msg.Channel, MessageID: msg.ID, Subscriber: i, Err: err})
			}
			// Faults are reported, never returned: one subscriber must not affect the others.
			return nil
		})
	}
	_ = g.Wait()
	e.m.duration.Record(time.Since(start).Seconds())
}

func callSubscriber(ctx context.Context, s Subscriber, msg *Message) (err error) {
	defer func() {
		if ePanic := recover(); ePanic != nil {
			err = fmt.Errorf("%w: %v", ErrSubscriberPanicked, ePanic)
		}
	}()
	return s(ctx, msg)
}

func (e *Engine) fault(err error) {
	e.m.faults.Add(1)
	if h := e.cfg.FaultHandler; h != nil {
		if herr := callFaultHandler(h, err); herr != nil {
			e.log.Error().Err(herr).Msg("fault handler panicked")
		}
		return
	}
	e.log.Warn().Err(err).Msg("subscriber failed")
	e.faultsMu.Lock()
	e.faults = append(e.faults, err)
	e.faultsMu.Unlock()
}

func callFaultHandler(h func(error), err error) (herr error) {
	defer func() {
		if ePanic := recover(); ePanic != nil {
			herr = fmt.Errorf("%w: %v", ErrFaultHandlerPanicked, ePanic)
		}
	}()
	h(err)
	return nil
}

// Close stops accepting messages. Queued messages are still dispatched; Completion
// resolves after the last one is processed. Close is idempotent.
func (e *Engine) Close() {
	e.shutdown(false)
}

// Cancel requests cancellation: queued messages are discarded, dispatches not yet
// started become no-ops and subscribers see their context canceled. Running subscribers
// are not interrupted. Cancel is idempotent and may follow Close.
func (e *Engine) Cancel() {
	e.shutdown(true)
}

func (e *Engine) shutdown(cancel bool) {
	if cancel && e.cancelled.CompareAndSwap(false, true) {
		e.cancel()
		dropped := e.mailbox.Discard()
		e.m.dropped.Add(int64(len(dropped)))
		e.settle(len(dropped))
		e.log.Info().Int("discarded", len(dropped)).Msg("engine canceled")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mailbox.Close()
	e.mu.Unlock()

	if !cancel {
		e.log.Info().Msg("engine closed")
	}
	go func() {
		e.wg.Wait()
		e.faultsMu.Lock()
		err := errors.Join(e.faults...)
		e.faultsMu.Unlock()
		e.complete(struct{}{}, err)
	}()
}

// Completion returns the future resolved once the engine has drained after Close or
// Cancel. Its error joins the subscriber faults not routed to a fault handler.
func (e *Engine) Completion() *future.Future[struct{}] { return e.completion }

// IsCancellationRequested reports whether Cancel has been called.
func (e *Engine) IsCancellationRequested() bool { return e.cancelled.Load() }
