package sched

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWallTimer_LeadingEdgeOnly(t *testing.T) {
	var fires atomic.Int32
	w := NewTimer()
	for i := 0; i < 10; i++ {
		w.Arm(10*time.Millisecond, func() { fires.Add(1) })
	}
	if !w.Armed() {
		t.Fatal("timer not armed after Arm")
	}

	deadline := time.Now().Add(time.Second)
	for fires.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := fires.Load(); got != 1 {
		t.Fatalf("fires = %d, want 1", got)
	}
	if w.Armed() {
		t.Error("timer still armed after fire")
	}
}

func TestWallTimer_Stop(t *testing.T) {
	var fires atomic.Int32
	w := NewTimer()
	w.Arm(20*time.Millisecond, func() { fires.Add(1) })
	w.Stop()
	time.Sleep(50 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Errorf("fires = %d after Stop, want 0", got)
	}
	if w.Armed() {
		t.Error("timer armed after Stop")
	}
}

func TestManual_FireOnce(t *testing.T) {
	m := NewManual()
	count := 0
	m.Arm(0, func() { count++ })
	m.Arm(0, func() { count += 100 }) // absorbed

	m.Fire()
	m.Fire() // disarmed, no-op
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
	if m.Armed() {
		t.Error("manual timer armed after fire")
	}
}
