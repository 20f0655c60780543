// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package render

import (
	"container/heap"
	"context"
	"errors"
	"sync"

	"github.com/gogpu/docview/pagecache"
)

// ErrQueueClosed is returned by TakeNext after Close.
var ErrQueueClosed = errors.New("render: queue closed")

// Request is a pending rasterization request.
type Request struct {
	Key      pagecache.Key
	Priority int64

	seq   uint64 // Submission order, breaks priority ties (FIFO)
	index int    // Heap index
}

// requestHeap orders requests by priority, then submission order.
type requestHeap []*Request

func (h requestHeap) Len() int { return len(h) }

func (h requestHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h requestHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *requestHeap) Push(x any) {
	r := x.(*Request)
	r.index = len(*h)
	*h = append(*h, r)
}

func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*h = old[:n-1]
	return r
}

// Queue is the ordered set of page requests waiting for a worker.
//
// At most one request per key is outstanding: a key is either queued or in
// flight (taken by a worker and not yet Done). Submitting it again is a no-op.
//
// Queue is safe for concurrent use by any number of producers and consumers.
type Queue struct {
	mu       sync.Mutex
	heap     requestHeap
	queued   map[pagecache.Key]*Request
	inFlight map[pagecache.Key]struct{}
	seq      uint64
	closed   bool

	// ready carries a wake-up token while requests are queued.
	ready chan struct{}
	done  chan struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		queued:   make(map[pagecache.Key]*Request),
		inFlight: make(map[pagecache.Key]struct{}),
		ready:    make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Submit enqueues a request for key unless one is already queued or in
// flight. A duplicate with a higher priority raises the queued request.
// Submit reports whether a new request was added.
func (q *Queue) Submit(key pagecache.Key, priority int64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	if _, ok := q.inFlight[key]; ok {
		return false
	}
	if r, ok := q.queued[key]; ok {
		if priority > r.Priority {
			r.Priority = priority
			heap.Fix(&q.heap, r.index)
		}
		return false
	}

	q.seq++
	r := &Request{Key: key, Priority: priority, seq: q.seq}
	heap.Push(&q.heap, r)
	q.queued[key] = r
	q.signal()
	return true
}

// signal leaves a wake-up token for a waiting consumer.
// Caller must hold q.mu.
func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// TakeNext blocks until a request is available and returns its key, highest
// priority first, ties in submission order. The key stays in flight until
// Done is called.
//
// TakeNext returns ErrQueueClosed once the queue is closed, or ctx.Err() if
// the context is cancelled first.
func (q *Queue) TakeNext(ctx context.Context) (pagecache.Key, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return pagecache.Key{}, ErrQueueClosed
		}
		if q.heap.Len() > 0 {
			r := heap.Pop(&q.heap).(*Request)
			delete(q.queued, r.Key)
			q.inFlight[r.Key] = struct{}{}
			if q.heap.Len() > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return r.Key, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return pagecache.Key{}, ctx.Err()
		case <-q.done:
		case <-q.ready:
		}
	}
}

// Done marks an in-flight key as finished, whatever the outcome.
func (q *Queue) Done(key pagecache.Key) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.inFlight, key)
}

// Cancel removes a queued request. A request already taken by a worker
// cannot be cancelled; its result is discarded on arrival instead.
// Cancel reports whether a queued request was removed.
func (q *Queue) Cancel(key pagecache.Key) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.queued[key]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, r.index)
	delete(q.queued, key)
	return true
}

// CancelDocument removes every queued request of doc and returns how many
// were removed.
func (q *Queue) CancelDocument(doc pagecache.DocID) int {
	return len(q.CancelFunc(func(key pagecache.Key) bool {
		return key.Doc == doc
	}))
}

// CancelFunc removes every queued request whose key satisfies match and
// returns the removed keys. Requests in flight are not affected.
func (q *Queue) CancelFunc(match func(pagecache.Key) bool) []pagecache.Key {
	q.mu.Lock()
	defer q.mu.Unlock()

	var removed []pagecache.Key
	for key, r := range q.queued {
		if !match(key) {
			continue
		}
		heap.Remove(&q.heap, r.index)
		delete(q.queued, key)
		removed = append(removed, key)
	}
	return removed
}

// Contains reports whether key is queued or in flight.
func (q *Queue) Contains(key pagecache.Key) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[key]; ok {
		return true
	}
	_, ok := q.inFlight[key]
	return ok
}

// Len returns the number of queued requests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.heap.Len()
}

// InFlight returns the number of requests taken but not yet Done.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.inFlight)
}

// Close wakes every waiting consumer and rejects further submissions.
// Close is safe to call multiple times.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}
