package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/veranemoloko/retro-installer/internal/metrics"
)

// Callback is invoked with no arguments; observers re-read the store.
type Callback func()

// SubscriptionID identifies a registered callback.
type SubscriptionID uint64

// Notifier fans change signals out to subscribers. Signals that arrive
// faster than the interval are coalesced, but a fan-out always follows the
// last signal so observers end up seeing the final state.
type Notifier struct {
	mu       sync.RWMutex
	subs     map[SubscriptionID]Callback
	order    []SubscriptionID
	nextID   SubscriptionID
	interval time.Duration
	signal   chan struct{}
	failures atomic.Int64
	logger   *slog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Notifier that delivers at most once per interval.
func New(interval time.Duration, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subs:     make(map[SubscriptionID]Callback),
		interval: interval,
		signal:   make(chan struct{}, 1),
		logger:   logger,
	}
}

// Subscribe registers cb and returns the handle to remove it with.
func (n *Notifier) Subscribe(cb Callback) SubscriptionID {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs[id] = cb
	n.order = append(n.order, id)
	return id
}

// Unsubscribe removes a callback. It reports false for an unknown handle.
func (n *Notifier) Unsubscribe(id SubscriptionID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.subs[id]; !ok {
		return false
	}
	delete(n.subs, id)
	for i, sid := range n.order {
		if sid == id {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	return true
}

// Notify records that something changed. It never blocks.
func (n *Notifier) Notify() {
	select {
	case n.signal <- struct{}{}:
	default:
	}
}

// Failures returns how many callback invocations have panicked.
func (n *Notifier) Failures() int64 {
	return n.failures.Load()
}

// Start launches the delivery loop. Calling Start twice is a no-op.
func (n *Notifier) Start(ctx context.Context) {
	n.runMu.Lock()
	defer n.runMu.Unlock()

	if n.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})

	go n.run(ctx, n.done)
	n.logger.Debug("Notifier started", "interval", n.interval)
}

// Stop ends the delivery loop, flushing one last fan-out if a signal is
// pending.
func (n *Notifier) Stop() {
	n.runMu.Lock()
	cancel, done := n.cancel, n.done
	n.cancel, n.done = nil, nil
	n.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	n.logger.Debug("Notifier stopped")
}

func (n *Notifier) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	var last time.Time
	for {
		select {
		case <-ctx.Done():
			select {
			case <-n.signal:
				n.fanOut()
			default:
			}
			return
		case <-n.signal:
		}

		if wait := n.interval - time.Since(last); !last.IsZero() && wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				n.fanOut()
				return
			case <-timer.C:
			}
		}

		// Signals raised while waiting are covered by this fan-out.
		select {
		case <-n.signal:
		default:
		}

		last = time.Now()
		n.fanOut()
	}
}

func (n *Notifier) fanOut() {
	n.mu.RLock()
	callbacks := make([]Callback, 0, len(n.order))
	for _, id := range n.order {
		callbacks = append(callbacks, n.subs[id])
	}
	n.mu.RUnlock()

	for _, cb := range callbacks {
		n.invoke(cb)
	}
}

func (n *Notifier) invoke(cb Callback) {
	defer func() {
		if r := recover(); r != nil {
			n.failures.Add(1)
			metrics.ObserverFailures.Inc()
			n.logger.Error("Observer callback panicked", "error", fmt.Sprint(r))
		}
	}()
	cb()
}
