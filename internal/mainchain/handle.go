package mainchain

import (
	"context"
	"sync/atomic"

	"github.com/thunder-project/thunder/internal/archive"
)

// Handle is a refcounted reference to a running Task. Cloning increments
// the shared count; Release decrements it, cancelling the task's context
// (and so stopping its goroutine) when the last handle is released — the
// Go equivalent of "last owner aborts the task on drop".
type Handle struct {
	*Task
	cancel context.CancelFunc
	refs   *int32
}

// NewHandle starts a Task bound to client and ar, returning the first
// handle to it with a reference count of one.
func NewHandle(client ValidatorClient, ar *archive.Archive) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	refs := new(int32)
	*refs = 1
	return &Handle{
		Task:   NewTask(ctx, client, ar),
		cancel: cancel,
		refs:   refs,
	}
}

// Clone returns a new Handle to the same underlying Task, incrementing the
// shared reference count.
func (h *Handle) Clone() *Handle {
	atomic.AddInt32(h.refs, 1)
	return &Handle{Task: h.Task, cancel: h.cancel, refs: h.refs}
}

// Release decrements the reference count, cancelling the task's context
// when it reaches zero. Calling Release more than once per Clone/NewHandle
// is a caller bug; the task is stopped at most once regardless.
func (h *Handle) Release() {
	if atomic.AddInt32(h.refs, -1) <= 0 {
		h.cancel()
	}
}
