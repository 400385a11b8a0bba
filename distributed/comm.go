package distributed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

var (
	ErrWorldAborted = errors.New("message-passing world aborted")
	ErrSizeMismatch = errors.New("message size mismatch")
	ErrBadPeer      = errors.New("peer rank out of range")

	errWorldClosed = errors.New("world closed")
)

// TransportError is a failed send or receive. Size mismatches carry the
// expected and actual number of values.
type TransportError struct {
	Rank, Peer, Tag  int
	Expected, Actual int
	Err              error
}

func (e *TransportError) Error() string {
	if errors.Is(e.Err, ErrSizeMismatch) {
		return fmt.Sprintf("rank %d, peer %d, tag %d: %v: expected %d values, received %d",
			e.Rank, e.Peer, e.Tag, e.Err, e.Expected, e.Actual)
	}
	return fmt.Sprintf("rank %d, peer %d, tag %d: %v", e.Rank, e.Peer, e.Tag, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type message struct {
	floats []float64
	ints   []int
}

type mailboxKey struct {
	src, dst, tag int
}

type receiver struct {
	req     *Request
	err     func() error // failure on abort
	deliver func(req *Request, msg message) error
}

// mailbox matches the messages of one (src, dst, tag) with receives in
// posting order. At most one of queue and waiting is non-empty.
type mailbox struct {
	mu      sync.Mutex
	queue   []message
	waiting []receiver
}

// World connects a fixed number of ranks running in one process. Messages
// between a pair of ranks on one tag are delivered in order. Sends complete
// as soon as the message is queued, so a rank may post all its sends before
// receiving anything.
type World struct {
	size      int
	mu        sync.Mutex
	mailboxes map[mailboxKey]*mailbox
	done      chan struct{}
	once      sync.Once
	cause     error
}

func NewWorld(size int) *World {
	if size < 1 {
		panic(fmt.Sprintf("world size must be positive, have %d", size))
	}
	return &World{
		size:      size,
		mailboxes: make(map[mailboxKey]*mailbox),
		done:      make(chan struct{}),
	}
}

func (w *World) Size() int { return w.size }

func (w *World) Comm(rank int) *Comm {
	if rank < 0 || rank >= w.size {
		panic(fmt.Sprintf("rank %d outside world of %d", rank, w.size))
	}
	return &Comm{world: w, rank: rank}
}

// Abort fails every pending and future blocking request. The first cause
// wins.
func (w *World) Abort(cause error) {
	w.once.Do(func() {
		w.cause = cause
		close(w.done)
		w.mu.Lock()
		boxes := make([]*mailbox, 0, len(w.mailboxes))
		for _, mb := range w.mailboxes {
			boxes = append(boxes, mb)
		}
		w.mu.Unlock()
		for _, mb := range boxes {
			mb.mu.Lock()
			waiting := mb.waiting
			mb.waiting = nil
			mb.mu.Unlock()
			for _, r := range waiting {
				r.req.complete(r.err())
			}
		}
	})
}

// Err is the abort cause, nil while the world is running.
func (w *World) Err() error {
	select {
	case <-w.done:
		return w.cause
	default:
		return nil
	}
}

func (w *World) aborted() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *World) abortError() error {
	return fmt.Errorf("%w: %w", ErrWorldAborted, w.cause)
}

func (w *World) mailbox(src, dst, tag int) *mailbox {
	w.mu.Lock()
	defer w.mu.Unlock()
	key := mailboxKey{src, dst, tag}
	mb, ok := w.mailboxes[key]
	if !ok {
		mb = &mailbox{}
		w.mailboxes[key] = mb
	}
	return mb
}

// RunWorld runs fn on size ranks concurrently and returns the first error.
// A failing rank aborts the world, so peers blocked on it fail instead of
// hanging.
func RunWorld(ctx context.Context, size int, fn func(ctx context.Context, c *Comm) error) (err error) {
	var (
		w       = NewWorld(size)
		eg, gtx = errgroup.WithContext(ctx)
	)
	stop := context.AfterFunc(gtx, func() { w.Abort(context.Cause(gtx)) })
	defer stop()
	for rank := 0; rank < size; rank++ {
		rank := rank
		eg.Go(func() (err error) {
			if err = fn(gtx, w.Comm(rank)); err != nil {
				w.Abort(fmt.Errorf("rank %d: %w", rank, err))
			}
			return
		})
	}
	err = eg.Wait()
	w.Abort(errWorldClosed)
	return
}

// Comm is one rank's endpoint in a World.
type Comm struct {
	world *World
	rank  int
}

func (c *Comm) Rank() int { return c.rank }

func (c *Comm) Size() int { return c.world.size }

// Request is a pending send or receive.
type Request struct {
	done chan struct{}
	err  error
	ints []int
}

func newRequest() *Request { return &Request{done: make(chan struct{})} }

func (r *Request) complete(err error) {
	r.err = err
	close(r.done)
}

// Wait blocks until the request completes.
func (r *Request) Wait() error {
	<-r.done
	return r.err
}

// Ints is the payload of a completed IrecvInts.
func (r *Request) Ints() []int { return r.ints }

// WaitAll waits for every request and reports all failures.
func WaitAll(reqs []*Request) error {
	var result *multierror.Error
	for _, r := range reqs {
		if err := r.Wait(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *Comm) failed(peer, tag int, err error) *Request {
	req := newRequest()
	req.complete(&TransportError{Rank: c.rank, Peer: peer, Tag: tag, Err: err})
	return req
}

func (c *Comm) isend(dst, tag int, msg message) *Request {
	if dst < 0 || dst >= c.world.size {
		return c.failed(dst, tag, ErrBadPeer)
	}
	if c.world.aborted() {
		return c.failed(dst, tag, c.world.abortError())
	}
	mb := c.world.mailbox(c.rank, dst, tag)
	mb.mu.Lock()
	if len(mb.waiting) == 0 {
		mb.queue = append(mb.queue, msg)
		mb.mu.Unlock()
	} else {
		r := mb.waiting[0]
		mb.waiting = mb.waiting[1:]
		mb.mu.Unlock()
		r.req.complete(r.deliver(r.req, msg))
	}
	req := newRequest()
	req.complete(nil)
	return req
}

// Isend sends a copy of buf to rank dst.
func (c *Comm) Isend(dst, tag int, buf []float64) *Request {
	return c.isend(dst, tag, message{floats: append([]float64(nil), buf...)})
}

func (c *Comm) IsendInts(dst, tag int, buf []int) *Request {
	return c.isend(dst, tag, message{ints: append([]int(nil), buf...)})
}

func (c *Comm) irecv(src, tag int, deliver func(req *Request, msg message) error) *Request {
	if src < 0 || src >= c.world.size {
		return c.failed(src, tag, ErrBadPeer)
	}
	var (
		req = newRequest()
		mb  = c.world.mailbox(src, c.rank, tag)
		err = func() error {
			return &TransportError{Rank: c.rank, Peer: src, Tag: tag, Err: c.world.abortError()}
		}
	)
	mb.mu.Lock()
	switch {
	case c.world.aborted():
		mb.mu.Unlock()
		req.complete(err())
	case len(mb.queue) > 0:
		msg := mb.queue[0]
		mb.queue = mb.queue[1:]
		mb.mu.Unlock()
		req.complete(deliver(req, msg))
	default:
		mb.waiting = append(mb.waiting, receiver{req: req, err: err, deliver: deliver})
		mb.mu.Unlock()
	}
	return req
}

// Irecv receives exactly len(buf) values from rank src into buf. buf must
// not be touched until the request completes.
func (c *Comm) Irecv(src, tag int, buf []float64) *Request {
	return c.irecv(src, tag, func(_ *Request, msg message) error {
		if len(msg.floats) != len(buf) || msg.ints != nil {
			return &TransportError{Rank: c.rank, Peer: src, Tag: tag,
				Expected: len(buf), Actual: len(msg.floats), Err: ErrSizeMismatch}
		}
		copy(buf, msg.floats)
		return nil
	})
}

// IrecvInts receives an integer list of any length, available from Ints
// once the request completes.
func (c *Comm) IrecvInts(src, tag int) *Request {
	return c.irecv(src, tag, func(req *Request, msg message) error {
		if msg.floats != nil {
			return &TransportError{Rank: c.rank, Peer: src, Tag: tag,
				Actual: len(msg.floats), Err: ErrSizeMismatch}
		}
		req.ints = msg.ints
		return nil
	})
}
