/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package clock

import (
	"testing"
	"time"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var order []int
	var seen []time.Duration
	m.AfterFunc(30*time.Millisecond, func() {
		order = append(order, 3)
		seen = append(seen, m.Now().Sub(start))
	})
	m.AfterFunc(10*time.Millisecond, func() {
		order = append(order, 1)
		seen = append(seen, m.Now().Sub(start))
	})
	m.AfterFunc(20*time.Millisecond, func() {
		order = append(order, 2)
		seen = append(seen, m.Now().Sub(start))
	})

	m.Advance(25 * time.Millisecond)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected firing order after 25ms: %v", order)
	}
	if seen[0] != 10*time.Millisecond || seen[1] != 20*time.Millisecond {
		t.Fatalf("timers should observe their own deadline, got %v", seen)
	}
	if got := m.Now().Sub(start); got != 25*time.Millisecond {
		t.Fatalf("expected clock at 25ms, got %s", got)
	}

	m.Advance(5 * time.Millisecond)
	if len(order) != 3 {
		t.Fatalf("expected third timer to fire, got %v", order)
	}
	if m.Pending() != 0 {
		t.Fatalf("expected no pending timers, got %d", m.Pending())
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	fired := false
	timer := m.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatalf("expected first Stop to report true")
	}
	if timer.Stop() {
		t.Fatalf("expected second Stop to report false")
	}

	m.Advance(2 * time.Second)
	if fired {
		t.Fatalf("stopped timer fired")
	}
}

func TestManualTimerScheduledFromCallback(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	count := 0
	var schedule func()
	schedule = func() {
		count++
		if count < 3 {
			m.AfterFunc(10*time.Millisecond, schedule)
		}
	}
	m.AfterFunc(10*time.Millisecond, schedule)

	m.Advance(100 * time.Millisecond)
	if count != 3 {
		t.Fatalf("expected chained timers to fire 3 times, got %d", count)
	}
}
