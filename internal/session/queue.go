package session

import "sync/atomic"

// handoff is the bounded queue between the audio callback and the worker.
// offer never blocks; a full queue drops a chunk according to policy.
type handoff struct {
	ch     chan []float32
	policy DropPolicy

	enqueued atomic.Uint64
	dropped  atomic.Uint64
}

func newHandoff(capacity int, policy DropPolicy) *handoff {
	return &handoff{
		ch:     make(chan []float32, capacity),
		policy: policy,
	}
}

// offer is called from the real-time callback.
func (q *handoff) offer(chunk []float32) {
	select {
	case q.ch <- chunk:
		q.enqueued.Add(1)
		return
	default:
	}

	if q.policy == DropOldest {
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
		}
		select {
		case q.ch <- chunk:
			q.enqueued.Add(1)
			return
		default:
		}
	}

	q.dropped.Add(1)
}

// close must only be called once the producer has stopped.
func (q *handoff) close() {
	close(q.ch)
}
