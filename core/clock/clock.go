// Package clock implements the simulation clock: a TestClock that a
// backtest run advances tick-by-tick, firing one-shot alarms and
// repeating timers along the way via a fire_at-ordered min-heap.
package clock

import "container/heap"

// Callback is invoked with the fired TimeEvent.
type Callback func(ev TimeEvent)

// TimeEvent is produced whenever a timer or alarm fires.
type TimeEvent struct {
	Name    string
	TsEvent int64
}

type timer struct {
	name       string
	fireAt     int64
	intervalNs int64 // 0 for one-shot alarms
	repeat     bool
	callback   Callback
	seq        int64 // insertion order, for stable heap ordering on ties
}

// timerHeap orders by fireAt ascending, then by insertion order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].fireAt != h[j].fireAt {
		return h[i].fireAt < h[j].fireAt
	}
	return h[i].seq < h[j].seq
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(*timer)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}

// TestClock is the deterministic simulation clock driven by the event
// loop's advance calls, mirroring original_source's TestClock.
type TestClock struct {
	nowNs  int64
	heap   timerHeap
	byName map[string]*timer
	seq    int64
}

// New constructs a TestClock starting at time zero.
func New() *TestClock {
	return &TestClock{byName: make(map[string]*timer)}
}

// TimestampNs returns the clock's current simulation time in nanoseconds.
func (c *TestClock) TimestampNs() int64 { return c.nowNs }

// SetTime forces the clock to ts without firing any timers. Used only at
// initialization; during a run use AdvanceTime.
func (c *TestClock) SetTime(ts int64) { c.nowNs = ts }

// SetTimeAlert schedules a one-shot callback at alertTimeNs.
func (c *TestClock) SetTimeAlert(name string, alertTimeNs int64, cb Callback) {
	c.cancelByName(name)
	t := &timer{name: name, fireAt: alertTimeNs, callback: cb, seq: c.nextSeq()}
	c.byName[name] = t
	heap.Push(&c.heap, t)
}

// SetTimer schedules a repeating (or one-shot, if repeat=false) timer
// with the given interval, first firing at startNs.
func (c *TestClock) SetTimer(name string, intervalNs, startNs int64, cb Callback, repeat bool) {
	c.cancelByName(name)
	t := &timer{name: name, fireAt: startNs, intervalNs: intervalNs, repeat: repeat, callback: cb, seq: c.nextSeq()}
	c.byName[name] = t
	heap.Push(&c.heap, t)
}

// CancelTimer removes a named timer/alert if present.
func (c *TestClock) CancelTimer(name string) { c.cancelByName(name) }

func (c *TestClock) cancelByName(name string) {
	old, ok := c.byName[name]
	if !ok {
		return
	}
	delete(c.byName, name)
	for i, t := range c.heap {
		if t == old {
			heap.Remove(&c.heap, i)
			break
		}
	}
}

// CancelAllTimers clears every scheduled timer/alert.
func (c *TestClock) CancelAllTimers() {
	c.heap = nil
	c.byName = make(map[string]*timer)
}

// TimerNames returns the names of all currently scheduled timers/alerts.
func (c *TestClock) TimerNames() []string {
	names := make([]string, 0, len(c.byName))
	for n := range c.byName {
		names = append(names, n)
	}
	return names
}

func (c *TestClock) nextSeq() int64 {
	c.seq++
	return c.seq
}

// AdvanceTime moves the clock forward to tsNs, firing every timer with
// fire_at <= tsNs in ascending fire_at (ties broken by insertion order),
// rescheduling repeating timers at fire_at+interval, and returns the
// fired events in the same chronological order.
func (c *TestClock) AdvanceTime(tsNs int64) []TimeEvent {
	var fired []TimeEvent
	for c.heap.Len() > 0 && c.heap[0].fireAt <= tsNs {
		t := heap.Pop(&c.heap).(*timer)
		fired = append(fired, TimeEvent{Name: t.name, TsEvent: t.fireAt})
		if t.callback != nil {
			t.callback(TimeEvent{Name: t.name, TsEvent: t.fireAt})
		}
		if t.repeat {
			t.fireAt += t.intervalNs
			t.seq = c.nextSeq()
			heap.Push(&c.heap, t)
		} else {
			delete(c.byName, t.name)
		}
	}
	c.nowNs = tsNs
	return fired
}
