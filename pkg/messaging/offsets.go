package messaging

import (
	"sync"

	"github.com/segmentio/kafka-go"
)

type inflight struct {
	msg  kafka.Message
	done bool
}

// offsetTracker releases a partition's offsets for commit only in fetch order, so a
// commit never moves past a message that is still being handled.
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int][]*inflight
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: map[int][]*inflight{}}
}

// track registers a fetched message and returns the token passed to done.
func (t *offsetTracker) track(msg kafka.Message) *inflight {
	t.mu.Lock()
	defer t.mu.Unlock()
	f := &inflight{msg: msg}
	t.partitions[msg.Partition] = append(t.partitions[msg.Partition], f)
	return f
}

// done marks f handled and runs commit with the highest message whose predecessors on
// the partition are all handled. commit runs under the lock so commits stay ordered.
func (t *offsetTracker) done(f *inflight, commit func(kafka.Message)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f.done = true

	queue := t.partitions[f.msg.Partition]
	n := 0
	for n < len(queue) && queue[n].done {
		n++
	}
	if n == 0 {
		return
	}
	last := queue[n-1].msg
	t.partitions[f.msg.Partition] = queue[n:]
	commit(last)
}
