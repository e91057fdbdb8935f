package watcher

import (
	"reflect"
	"testing"
	"time"
)

func TestDeadlineQueue_PopDueInDeadlineOrder(t *testing.T) {
	q := newDeadlineQueue()
	q.Touch("c", epoch.Add(3*time.Second))
	q.Touch("a", epoch.Add(1*time.Second))
	q.Touch("b", epoch.Add(2*time.Second))

	if got := q.PopDue(epoch); len(got) != 0 {
		t.Errorf("nothing is due yet, got %v", got)
	}
	if got := q.PopDue(epoch.Add(2 * time.Second)); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("PopDue = %v", got)
	}
	if q.Len() != 1 || !q.items[0].at.Equal(epoch.Add(3*time.Second)) {
		t.Errorf("remaining deadline = %+v", q.items)
	}
	if got := q.PopDue(epoch.Add(time.Hour)); !reflect.DeepEqual(got, []string{"c"}) {
		t.Errorf("PopDue = %v", got)
	}
	if q.Len() != 0 {
		t.Errorf("queue should be empty, len=%d", q.Len())
	}
}

func TestDeadlineQueue_TouchMovesDirectoryBack(t *testing.T) {
	q := newDeadlineQueue()
	q.Touch("a", epoch.Add(1*time.Second))
	q.Touch("b", epoch.Add(2*time.Second))
	q.Touch("a", epoch.Add(5*time.Second))

	if got := q.PopDue(epoch.Add(4 * time.Second)); !reflect.DeepEqual(got, []string{"b"}) {
		t.Errorf("PopDue = %v", got)
	}
	if q.Len() != 1 {
		t.Errorf("refreshed directory must not be duplicated, len=%d", q.Len())
	}
}

func TestDeadlineQueue_TiesKeepActivityOrder(t *testing.T) {
	q := newDeadlineQueue()
	at := epoch.Add(time.Second)
	for _, dir := range []string{"x", "y", "z"} {
		q.Touch(dir, at)
	}
	if got := q.PopDue(at); !reflect.DeepEqual(got, []string{"x", "y", "z"}) {
		t.Errorf("PopDue = %v", got)
	}
}

func TestDeadlineQueue_Reset(t *testing.T) {
	q := newDeadlineQueue()
	q.Touch("a", epoch)
	q.Touch("b", epoch)
	q.Reset()
	if got := q.PopDue(epoch); len(got) != 0 {
		t.Errorf("PopDue after Reset = %v", got)
	}

	q.Touch("a", epoch)
	if got := q.PopDue(epoch); !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("PopDue = %v", got)
	}
}

func TestGapBuffer(t *testing.T) {
	var g GapBuffer
	if !g.Active() {
		t.Fatal("new buffer should be active")
	}
	g.Append(Event{Kind: EventCreate, Path: "/a"})
	g.Append(Event{Kind: EventDelete, Path: "/b"})
	events := g.Drain()
	if len(events) != 2 || events[0].Path != "/a" || events[1].Kind != EventDelete {
		t.Errorf("Drain = %+v", events)
	}
	if g.Active() || g.Append(Event{Path: "/c"}) || g.Drain() != nil {
		t.Error("drained buffer must stay retired")
	}
}

func TestBatchDeduplicates(t *testing.T) {
	b := newBatch("/d")
	b.add("/d/a", epoch)
	b.add("/d/b", epoch.Add(time.Second))
	b.add("/d/a", epoch.Add(2*time.Second))

	snap := b.snapshot()
	if !reflect.DeepEqual(snap.Paths, []string{"/d/a", "/d/b"}) {
		t.Errorf("Paths = %v", snap.Paths)
	}
	if !snap.LastActivity.Equal(epoch.Add(2 * time.Second)) {
		t.Errorf("LastActivity = %v", snap.LastActivity)
	}
	snap.Paths[0] = "changed"
	if b.Paths[0] != "/d/a" {
		t.Error("snapshot must not alias the batch")
	}
}

func TestFakeClockTicker(t *testing.T) {
	c := NewFakeClock(epoch)
	tk := c.NewTicker(time.Second)

	c.Advance(500 * time.Millisecond)
	select {
	case <-tk.C():
		t.Fatal("ticker fired early")
	default:
	}

	c.Advance(3 * time.Second)
	select {
	case got := <-tk.C():
		if !got.Equal(epoch.Add(time.Second)) {
			t.Errorf("tick time = %v", got)
		}
	default:
		t.Fatal("ticker did not fire")
	}

	tk.Stop()
	c.Advance(time.Minute)
	select {
	case <-tk.C():
		t.Error("stopped ticker fired")
	default:
	}
	if !c.Now().Equal(epoch.Add(time.Minute + 3500*time.Millisecond)) {
		t.Errorf("Now = %v", c.Now())
	}
}

func TestEventKindString(t *testing.T) {
	if EventCreate.String() != "create" || EventDelete.String() != "delete" || EventKind(9).String() != "unknown" {
		t.Error("unexpected EventKind names")
	}
}
