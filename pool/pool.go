package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Manager creates and health-checks the objects a Pool hands out.
type Manager[T any] interface {
	// Create produces a new object when no idle one is available.
	Create(ctx context.Context) (T, error)

	// Recycle decides whether obj may be handed out again. A non-nil error
	// makes the pool discard the object.
	Recycle(ctx context.Context, obj T) error
}

// Object is a pooled value checked out by a caller. Return it with Release.
type Object[T any] struct {
	value     T
	id        string
	createdAt time.Time
	lastUsed  time.Time
	recycled  int

	pool     *Pool[T]
	returned bool // guarded by pool.mu
}

// Value returns the pooled value.
func (o *Object[T]) Value() T { return o.value }

// ID uniquely identifies the object within the process.
func (o *Object[T]) ID() string { return o.id }

// CreatedAt is when the manager created the value.
func (o *Object[T]) CreatedAt() time.Time { return o.createdAt }

// RecycleCount is how many times the value passed Recycle.
func (o *Object[T]) RecycleCount() int { return o.recycled }

// Release returns the object to its pool.
func (o *Object[T]) Release() {
	o.pool.Put(o)
}

// Detach removes the object from the pool and hands ownership of the value
// to the caller. The pool no longer counts or closes it.
func (o *Object[T]) Detach() T {
	o.pool.detach(o)
	return o.value
}

// Status is a snapshot of pool occupancy and lifetime counters.
type Status struct {
	MaxSize   int
	Size      int
	Available int
	InUse     int
	Waiting   int
	Created   uint64
	Recycled  uint64
	Discarded uint64
}

// Pool is a bounded pool of objects produced by a Manager.
type Pool[T any] struct {
	manager Manager[T]
	config  Config
	logger  *slog.Logger

	slots chan struct{}
	done  chan struct{}

	mu     sync.Mutex
	idle   []*Object[T]
	size   int
	closed bool

	waiting   atomic.Int64
	created   atomic.Uint64
	recycled  atomic.Uint64
	discarded atomic.Uint64
}

// New creates a pool that obtains objects from manager.
func New[T any](manager Manager[T], options ...Option) (*Pool[T], error) {
	if manager == nil {
		return nil, fmt.Errorf("%w: manager is required", ErrInvalidConfiguration)
	}

	s := settings{
		config:       DefaultConfig(),
		logger:       slog.Default(),
		reapInterval: time.Minute,
	}
	for _, opt := range options {
		opt(&s)
	}

	if err := s.config.Validate(); err != nil {
		return nil, err
	}

	p := &Pool[T]{
		manager: manager,
		config:  s.config,
		logger:  s.logger,
		slots:   make(chan struct{}, s.config.MaxSize),
		done:    make(chan struct{}),
	}

	if s.config.IdleTimeout > 0 && s.reapInterval > 0 {
		go p.reapIdle(s.reapInterval)
	}

	return p, nil
}

// Get returns an idle object that still passes Recycle, or a new one from
// the manager. Create errors are returned unchanged.
func (p *Pool[T]) Get(ctx context.Context) (*Object[T], error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}

	if err := p.acquire(ctx); err != nil {
		return nil, err
	}

	for {
		obj := p.popIdle()
		if obj == nil {
			break
		}
		if err := p.recycle(ctx, obj); err != nil {
			p.discard(obj, err)
			continue
		}
		return obj, nil
	}

	obj, err := p.create(ctx)
	if err != nil {
		p.release()
		return nil, err
	}
	return obj, nil
}

// Put returns obj to the pool. Objects that fail Recycle, or are returned
// after Close, are discarded.
func (p *Pool[T]) Put(obj *Object[T]) {
	if obj == nil {
		return
	}

	p.mu.Lock()
	if obj.pool != p || obj.returned {
		p.mu.Unlock()
		return
	}
	obj.returned = true
	closed := p.closed
	p.mu.Unlock()

	defer p.release()

	if closed {
		p.discard(obj, ErrPoolClosed)
		return
	}

	if err := p.recycle(context.Background(), obj); err != nil {
		p.discard(obj, err)
		return
	}

	obj.lastUsed = time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.discard(obj, ErrPoolClosed)
		return
	}
	p.idle = append(p.idle, obj)
	p.mu.Unlock()
}

// Execute runs fn with a pooled value and returns it afterwards
func (p *Pool[T]) Execute(ctx context.Context, fn func(T) error) error {
	obj, err := p.Get(ctx)
	if err != nil {
		return err
	}
	defer p.Put(obj)

	// Run function with panic recovery
	var execErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				execErr = fmt.Errorf("panic in pooled execution: %v", r)
			}
		}()
		execErr = fn(obj.value)
	}()

	return execErr
}

// Close discards every idle object and rejects further Gets. Objects still
// checked out are discarded when they are returned.
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	close(p.done)

	for _, obj := range idle {
		p.discard(obj, ErrPoolClosed)
	}
	return nil
}

// IsClosed reports whether Close has been called.
func (p *Pool[T]) IsClosed() bool {
	return p.isClosed()
}

// Status returns a snapshot of the pool.
func (p *Pool[T]) Status() Status {
	p.mu.Lock()
	size := p.size
	available := len(p.idle)
	p.mu.Unlock()

	return Status{
		MaxSize:   p.config.MaxSize,
		Size:      size,
		Available: available,
		InUse:     size - available,
		Waiting:   int(p.waiting.Load()),
		Created:   p.created.Load(),
		Recycled:  p.recycled.Load(),
		Discarded: p.discarded.Load(),
	}
}

// RetainIdle discards idle objects unused for longer than maxAge and
// returns how many were removed.
func (p *Pool[T]) RetainIdle(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	p.mu.Lock()
	var keep, expired []*Object[T]
	for _, obj := range p.idle {
		if obj.lastUsed.Before(cutoff) {
			expired = append(expired, obj)
		} else {
			keep = append(keep, obj)
		}
	}
	p.idle = keep
	p.mu.Unlock()

	for _, obj := range expired {
		p.discard(obj, errIdleExpired)
	}
	return len(expired)
}

var errIdleExpired = errors.New("pool: idle timeout expired")

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// acquire reserves one of MaxSize slots, waiting up to Timeouts.Wait.
func (p *Pool[T]) acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	default:
	}

	p.waiting.Add(1)
	defer p.waiting.Add(-1)

	var timeout <-chan time.Time
	if p.config.Timeouts.Wait > 0 {
		timer := time.NewTimer(p.config.Timeouts.Wait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case p.slots <- struct{}{}:
		return nil
	case <-timeout:
		return &TimeoutError{Phase: TimeoutWait}
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolClosed
	}
}

func (p *Pool[T]) release() {
	<-p.slots
}

func (p *Pool[T]) popIdle() *Object[T] {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.idle)
	if n == 0 {
		return nil
	}
	obj := p.idle[0]
	p.idle[0] = nil
	p.idle = p.idle[1:]
	obj.returned = false
	return obj
}

func (p *Pool[T]) create(ctx context.Context) (*Object[T], error) {
	cctx, cancel := withOptionalTimeout(ctx, p.config.Timeouts.Create)
	defer cancel()

	value, err := p.manager.Create(cctx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Phase: TimeoutCreate, Err: err}
		}
		return nil, err
	}

	now := time.Now()
	obj := &Object[T]{
		value:     value,
		id:        uuid.New().String(),
		createdAt: now,
		lastUsed:  now,
		pool:      p,
	}

	p.mu.Lock()
	p.size++
	p.mu.Unlock()
	p.created.Add(1)

	return obj, nil
}

func (p *Pool[T]) recycle(ctx context.Context, obj *Object[T]) error {
	rctx, cancel := withOptionalTimeout(ctx, p.config.Timeouts.Recycle)
	defer cancel()

	if err := p.manager.Recycle(rctx, obj.value); err != nil {
		if ctx.Err() == nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
			return &TimeoutError{Phase: TimeoutRecycle, Err: err}
		}
		return err
	}
	obj.recycled++
	p.recycled.Add(1)
	return nil
}

// discard forgets obj and closes its value if it can be closed.
func (p *Pool[T]) discard(obj *Object[T], reason error) {
	p.mu.Lock()
	p.size--
	p.mu.Unlock()
	p.discarded.Add(1)

	p.logger.Debug("discarding pooled object",
		"objectId", obj.id,
		"reason", reason,
		"age", time.Since(obj.createdAt))

	if closer, ok := any(obj.value).(io.Closer); ok {
		if err := closer.Close(); err != nil {
			p.logger.Debug("closing discarded object failed", "objectId", obj.id, "error", err)
		}
	}
}

func (p *Pool[T]) detach(obj *Object[T]) {
	p.mu.Lock()
	if obj.pool != p || obj.returned {
		p.mu.Unlock()
		return
	}
	obj.returned = true
	p.size--
	p.mu.Unlock()
	p.release()
}

// reapIdle periodically evicts idle objects past the idle timeout
func (p *Pool[T]) reapIdle(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := p.RetainIdle(p.config.IdleTimeout); n > 0 {
				p.logger.Debug("evicted idle objects", "count", n)
			}
		case <-p.done:
			return
		}
	}
}

func withOptionalTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
