package heap

import "github.com/purc-go/purc/internal/coroutine"

// wakeEntry is one pending deadline in the wake structure (spec §9
// "The AVL can be any ordered map indexed by stopped_timeout" —
// container/heap's binary heap is the idiomatic Go substitute).
type wakeEntry struct {
	co       *coroutine.Coroutine
	deadline int64 // absolute UnixNano
}

// wakeQueue is a min-heap of wakeEntry ordered by deadline, implementing
// container/heap.Interface.
type wakeQueue []*wakeEntry

func (q wakeQueue) Len() int            { return len(q) }
func (q wakeQueue) Less(i, j int) bool  { return q[i].deadline < q[j].deadline }
func (q wakeQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *wakeQueue) Push(x interface{}) { *q = append(*q, x.(*wakeEntry)) }

func (q *wakeQueue) Pop() interface{} {
	old := *q
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return entry
}
