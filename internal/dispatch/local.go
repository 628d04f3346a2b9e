package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"golang.org/x/time/rate"

	"github.com/dpup/rabbitmiles/server/internal/config"
	"github.com/dpup/rabbitmiles/server/internal/metrics"
)

// invocation is one accepted call waiting for a worker
type invocation struct {
	ctx     context.Context
	target  string
	handler Handler
	payload []byte
}

// LocalInvoker runs invocations within the current process. Accepted calls
// wait in a bounded queue drained by a fixed number of workers, so the
// concurrency limit caps running work, not accepted work. Calls are rejected
// only when the queue is full, the token bucket is empty or the invoker is
// closed.
type LocalInvoker struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	closed   bool

	queue   chan invocation
	limiter *rate.Limiter
	timeout time.Duration
	metrics *metrics.Metrics

	pending sync.WaitGroup // accepted and not yet finished
	workers sync.WaitGroup
}

// LocalOption customizes a LocalInvoker
type LocalOption func(*LocalInvoker)

// WithMetrics records admission decisions, queued and in-flight work
func WithMetrics(m *metrics.Metrics) LocalOption {
	return func(l *LocalInvoker) {
		l.metrics = m
	}
}

// NewLocalInvoker creates an in-process invoker from dispatch settings and
// starts its workers. Call Close to stop them.
func NewLocalInvoker(cfg config.DispatchConfig, opts ...LocalOption) *LocalInvoker {
	workers := int(cfg.MaxConcurrent)
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	l := &LocalInvoker{
		handlers: make(map[string]Handler),
		queue:    make(chan invocation, queueSize),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		timeout:  cfg.InvocationTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go l.worker()
	}
	return l
}

// Register sets the handler for a target, replacing any existing one
func (l *LocalInvoker) Register(target string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.handlers[target] = h
}

// InvokeAsync admits and queues an invocation. The invocation outlives ctx:
// it keeps ctx values but not its cancellation, and runs under its own
// deadline.
func (l *LocalInvoker) InvokeAsync(ctx context.Context, target string, payload []byte) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.metrics.ObserveDispatch(target, metrics.ResultRejected)
		return fmt.Errorf("%w: %s: invoker is closed", ErrRejected, target)
	}

	h, ok := l.handlers[target]
	if !ok {
		l.metrics.ObserveDispatch(target, metrics.ResultRejected)
		return fmt.Errorf("%w: unknown target %q", ErrRejected, target)
	}

	if !l.limiter.Allow() {
		l.metrics.ObserveDispatch(target, metrics.ResultRejected)
		return fmt.Errorf("%w: %s: rate limited", ErrRejected, target)
	}

	inv := invocation{
		ctx:     logging.EnsureLogger(context.WithoutCancel(ctx)),
		target:  target,
		handler: h,
		// The caller may reuse its buffer once we return
		payload: append([]byte(nil), payload...),
	}

	l.pending.Add(1)
	select {
	case l.queue <- inv:
		l.metrics.ObserveDispatch(target, metrics.ResultAccepted)
		l.metrics.QueuedAdd(1)
		return nil
	default:
		l.pending.Done()
		l.metrics.ObserveDispatch(target, metrics.ResultRejected)
		return fmt.Errorf("%w: %s: queue is full", ErrRejected, target)
	}
}

// Wait blocks until every accepted invocation has finished
func (l *LocalInvoker) Wait() {
	l.pending.Wait()
}

// Close rejects new invocations, runs everything already queued and stops
// the workers
func (l *LocalInvoker) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.workers.Wait()
}

func (l *LocalInvoker) worker() {
	defer l.workers.Done()

	for inv := range l.queue {
		l.metrics.QueuedAdd(-1)
		l.run(inv)
	}
}

func (l *LocalInvoker) run(inv invocation) {
	ctx := inv.ctx

	defer l.pending.Done()
	defer l.metrics.InflightAdd(-1)
	defer func() {
		// Recover from any panics so the worker keeps draining the queue
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Dispatch: recovered from panic",
				"target", inv.target, "error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			l.metrics.ObserveDispatch(inv.target, metrics.ResultPanicked)
		}
	}()
	l.metrics.InflightAdd(1)

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	if err := inv.handler(ctx, inv.payload); err != nil {
		logging.Warnw(ctx, "Dispatch: invocation failed", "target", inv.target, "error", err)
	}
}
