package clock

import (
	"reflect"
	"testing"
)

func TestAdvanceFiresDueAlarmsInOrder(t *testing.T) {
	c := New()
	var fired []string
	c.SetTimeAlert("b", 20, func(ev TimeEvent) { fired = append(fired, ev.Name) })
	c.SetTimeAlert("a", 10, func(ev TimeEvent) { fired = append(fired, ev.Name) })
	c.SetTimeAlert("late", 100, func(ev TimeEvent) { fired = append(fired, ev.Name) })

	events := c.AdvanceTime(50)

	if want := []string{"a", "b"}; !reflect.DeepEqual(fired, want) {
		t.Errorf("fired = %v, want %v", fired, want)
	}
	if len(events) != 2 || events[0].TsEvent != 10 || events[1].TsEvent != 20 {
		t.Errorf("events = %+v", events)
	}
	if c.TimestampNs() != 50 {
		t.Errorf("clock = %d, want 50", c.TimestampNs())
	}

	// The late alarm is still pending.
	events = c.AdvanceTime(100)
	if len(events) != 1 || events[0].Name != "late" {
		t.Errorf("late events = %+v", events)
	}
}

func TestTieBreakByInsertionOrder(t *testing.T) {
	c := New()
	var fired []string
	c.SetTimeAlert("first", 10, func(ev TimeEvent) { fired = append(fired, ev.Name) })
	c.SetTimeAlert("second", 10, func(ev TimeEvent) { fired = append(fired, ev.Name) })
	c.AdvanceTime(10)
	if want := []string{"first", "second"}; !reflect.DeepEqual(fired, want) {
		t.Errorf("fired = %v, want %v", fired, want)
	}
}

func TestRepeatingTimerReschedules(t *testing.T) {
	c := New()
	var stamps []int64
	c.SetTimer("tick", 10, 10, func(ev TimeEvent) { stamps = append(stamps, ev.TsEvent) }, true)

	c.AdvanceTime(35)

	if want := []int64{10, 20, 30}; !reflect.DeepEqual(stamps, want) {
		t.Errorf("stamps = %v, want %v", stamps, want)
	}
	// Next firing is queued at 40.
	c.AdvanceTime(40)
	if len(stamps) != 4 || stamps[3] != 40 {
		t.Errorf("stamps after second advance = %v", stamps)
	}
}

func TestCancelTimer(t *testing.T) {
	c := New()
	fired := false
	c.SetTimeAlert("x", 10, func(TimeEvent) { fired = true })
	c.CancelTimer("x")
	c.AdvanceTime(20)
	if fired {
		t.Error("canceled alarm must not fire")
	}
	if names := c.TimerNames(); len(names) != 0 {
		t.Errorf("TimerNames = %v, want empty", names)
	}
}
