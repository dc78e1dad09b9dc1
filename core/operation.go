package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

type operationState int32

const (
	statePending operationState = iota
	stateRunning
	stateDone
	stateCancelled
)

// Operation is the handle on a queued unit of work. Its result becomes
// available exactly once, either when the work finishes, when it is
// cancelled before starting, or when the adapter closes.
type Operation[T any] struct {
	id    string
	state atomic.Int32
	fn    func(ctx context.Context, conn Conn) (T, error)

	once  sync.Once
	done  chan struct{}
	mu    sync.Mutex
	value T
	err   error
	hooks []func(T, error)
}

func newOperation[T any](fn func(ctx context.Context, conn Conn) (T, error)) *Operation[T] {
	return &Operation[T]{
		id:   uuid.NewString(),
		fn:   fn,
		done: make(chan struct{}),
	}
}

// Schedule queues fn on adapter and returns its Operation. When the task
// cannot be queued the Operation is returned already completed with the
// enqueue error.
func Schedule[T any](adapter Adapter, fn func(ctx context.Context, conn Conn) (T, error)) *Operation[T] {
	op := newOperation(fn)
	if adapter == nil {
		op.Abort(Errorf(CodeInvalid, "no adapter"))
		return op
	}
	if err := adapter.Enqueue(op); err != nil {
		op.Abort(err)
	}
	return op
}

// Completed returns an Operation that is already done with value and err.
// It never enters a queue.
func Completed[T any](value T, err error) *Operation[T] {
	op := newOperation[T](nil)
	op.state.Store(int32(stateDone))
	op.complete(value, err)
	return op
}

// Failed returns an Operation that is already done with err
func Failed[T any](err error) *Operation[T] {
	var zero T
	return Completed(zero, err)
}

// ID returns the operation ID, used to correlate log lines
func (op *Operation[T]) ID() string {
	return op.id
}

// Done returns a channel closed once the result is available
func (op *Operation[T]) Done() <-chan struct{} {
	return op.done
}

// IsDone reports whether the result is available
func (op *Operation[T]) IsDone() bool {
	select {
	case <-op.done:
		return true
	default:
		return false
	}
}

// Result blocks until the operation completes and returns its result
func (op *Operation[T]) Result() (T, error) {
	<-op.done
	return op.value, op.err
}

// Wait blocks until the operation completes or ctx is done. If ctx ends
// while the operation is still queued, the operation is cancelled and
// ctx.Err() is returned. Once started, Wait keeps waiting for the result.
func (op *Operation[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-op.done:
		return op.value, op.err
	case <-ctx.Done():
	}
	if op.Cancel() {
		var zero T
		return zero, ctx.Err()
	}
	<-op.done
	return op.value, op.err
}

// Cancel cancels the operation if it has not started yet and reports
// whether it did. A cancelled operation completes with ErrCancelled.
func (op *Operation[T]) Cancel() bool {
	if !op.state.CompareAndSwap(int32(statePending), int32(stateCancelled)) {
		return false
	}
	var zero T
	op.complete(zero, Errorf(CodeCancelled, "operation %s cancelled before it started", op.id))
	return true
}

// OnComplete registers fn to be called with the result. If the operation is
// already done fn runs immediately on the calling goroutine; otherwise it
// runs on the goroutine that completes the operation.
func (op *Operation[T]) OnComplete(fn func(T, error)) {
	op.mu.Lock()
	select {
	case <-op.done:
		op.mu.Unlock()
		fn(op.value, op.err)
		return
	default:
	}
	op.hooks = append(op.hooks, fn)
	op.mu.Unlock()
}

// Begin implements Task
func (op *Operation[T]) Begin() bool {
	return op.state.CompareAndSwap(int32(statePending), int32(stateRunning))
}

// Run implements Task
func (op *Operation[T]) Run(ctx context.Context, conn Conn) {
	value, err := op.fn(ctx, conn)
	if err != nil && errors.Is(context.Cause(ctx), ErrClosed) {
		err = NewError(CodeClosed, "adapter closed while operation was running", err)
	}
	op.state.Store(int32(stateDone))
	op.complete(value, err)
}

// Abort implements Task
func (op *Operation[T]) Abort(err error) {
	op.state.Store(int32(stateDone))
	var zero T
	op.complete(zero, err)
}

func (op *Operation[T]) complete(value T, err error) {
	op.once.Do(func() {
		op.mu.Lock()
		op.value = value
		op.err = err
		hooks := op.hooks
		op.hooks = nil
		close(op.done)
		op.mu.Unlock()

		for _, fn := range hooks {
			fn(value, err)
		}
	})
}

// Then returns an Operation completing with fn applied to op's result. fn
// runs on the goroutine that completes op and must not block.
func Then[T, U any](op *Operation[T], fn func(T, error) (U, error)) *Operation[U] {
	next := newOperation[U](nil)
	next.state.Store(int32(stateRunning))
	op.OnComplete(func(v T, err error) {
		u, err := fn(v, err)
		next.state.Store(int32(stateDone))
		next.complete(u, err)
	})
	return next
}
