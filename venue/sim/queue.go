package sim

import (
	"sort"

	"github.com/forgequant/backtestcore/core/id"
	"github.com/forgequant/backtestcore/model/order"
)

// orderQueue is an insertion-ordered order set with O(1) lookup and
// removal. Iteration order on ties is part of the engine's determinism
// contract, so plain Go maps (randomized iteration) cannot be used for
// the resting/stop/trailing queues.
type orderQueue struct {
	byID map[id.ClientOrderID]*order.Order
	seq  map[id.ClientOrderID]int64
	next int64
}

func newOrderQueue() *orderQueue {
	return &orderQueue{
		byID: make(map[id.ClientOrderID]*order.Order),
		seq:  make(map[id.ClientOrderID]int64),
	}
}

func (q *orderQueue) add(o *order.Order) {
	if _, ok := q.byID[o.ClientOrderID]; ok {
		return
	}
	q.byID[o.ClientOrderID] = o
	q.next++
	q.seq[o.ClientOrderID] = q.next
}

func (q *orderQueue) remove(oid id.ClientOrderID) {
	delete(q.byID, oid)
	delete(q.seq, oid)
}

func (q *orderQueue) get(oid id.ClientOrderID) (*order.Order, bool) {
	o, ok := q.byID[oid]
	return o, ok
}

func (q *orderQueue) contains(oid id.ClientOrderID) bool {
	_, ok := q.byID[oid]
	return ok
}

func (q *orderQueue) len() int { return len(q.byID) }

// snapshot returns the queued orders in insertion order. Callers may
// mutate the queue while ranging over the result.
func (q *orderQueue) snapshot() []*order.Order {
	out := make([]*order.Order, 0, len(q.byID))
	for oid := range q.byID {
		out = append(out, q.byID[oid])
	}
	sort.Slice(out, func(i, j int) bool {
		return q.seq[out[i].ClientOrderID] < q.seq[out[j].ClientOrderID]
	})
	return out
}

func (q *orderQueue) clear() {
	q.byID = make(map[id.ClientOrderID]*order.Order)
	q.seq = make(map[id.ClientOrderID]int64)
	q.next = 0
}
