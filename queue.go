// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package linelock

import (
	"sync"
	"sync/atomic"
)

// activationQueue is an unbounded intrusive MPSC FIFO of activations.
//
// Producers (threads entering an armed site) are wait-free: one Swap and
// one Store. The consumer side is serialized by mu because both the
// controller and Disarm drain the queue.
//
// A producer that has swapped head but not yet linked its node leaves the
// queue momentarily unreadable past that point; pop reports empty rather
// than spinning.
type activationQueue struct {
	head atomic.Pointer[queueNode] // producers
	mu   sync.Mutex
	tail *queueNode // consumer, guarded by mu
	stub queueNode
}

type queueNode struct {
	next atomic.Pointer[queueNode]
	act  *Activation
}

func (q *activationQueue) init() {
	q.head.Store(&q.stub)
	q.tail = &q.stub
}

func (q *activationQueue) push(a *Activation) {
	q.pushNode(&queueNode{act: a})
}

func (q *activationQueue) pushNode(n *queueNode) {
	n.next.Store(nil)
	prev := q.head.Swap(n)
	prev.next.Store(n)
}

// pop removes and returns the oldest activation, or nil.
func (q *activationQueue) pop() *Activation {
	q.mu.Lock()
	defer q.mu.Unlock()

	tail := q.tail
	next := tail.next.Load()
	if tail == &q.stub {
		if next == nil {
			return nil
		}
		q.tail = next
		tail = next
		next = next.next.Load()
	}
	if next != nil {
		q.tail = next
		return tail.act
	}
	if tail != q.head.Load() {
		// producer mid-push
		return nil
	}
	q.pushNode(&q.stub)
	next = tail.next.Load()
	if next != nil {
		q.tail = next
		return tail.act
	}
	return nil
}
