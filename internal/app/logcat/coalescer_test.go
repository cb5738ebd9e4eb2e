package logcat

import (
	"sort"
	"testing"

	"github.com/fleetdeck/fleetdeck/internal/infra/sched"
)

func newTestBuffer(t *testing.T, maxVisible int) (*Buffer, *sched.Manual) {
	t.Helper()
	timer := sched.NewManual()
	b := New(Config{MaxVisible: maxVisible, Timer: timer})
	return b, timer
}

func texts(lines []Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func TestBuffer_FlushAssignsSequentialIDs(t *testing.T) {
	b, timer := newTestBuffer(t, 100)
	for _, l := range []string{"a", "b", "c"} {
		b.Append("X", l)
	}
	if got := b.Lines("X", 0); len(got) != 0 {
		t.Fatalf("lines visible before flush: %v", got)
	}

	timer.Fire()
	got := b.Lines("X", 0)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []Line{{1, "a"}, {2, "b"}, {3, "c"}} {
		if got[i] != want {
			t.Errorf("line[%d] = %+v, want %+v", i, got[i], want)
		}
	}

	// Next batch continues the sequence, never reusing 1–3.
	b.Append("X", "d")
	timer.Fire()
	got = b.Lines("X", 0)
	if last := got[len(got)-1]; last.ID != 4 || last.Text != "d" {
		t.Errorf("last = %+v, want {4 d}", last)
	}
}

func TestBuffer_TimerArmedOnFirstLineOnly(t *testing.T) {
	b, timer := newTestBuffer(t, 100)
	b.Append("X", "a")
	if !timer.Armed() {
		t.Fatal("timer not armed by first line")
	}
	b.Append("X", "b")
	b.Append("Y", "c")

	timer.Fire()
	if timer.Armed() {
		t.Error("timer re-armed without new lines")
	}
	if got := texts(b.Lines("X", 0)); len(got) != 2 {
		t.Errorf("X lines = %v, want [a b]", got)
	}
	if got := texts(b.Lines("Y", 0)); len(got) != 1 || got[0] != "c" {
		t.Errorf("Y lines = %v, want [c]", got)
	}
}

func TestBuffer_RingCap(t *testing.T) {
	b, timer := newTestBuffer(t, 5)
	for i := 0; i < 12; i++ {
		b.Append("X", "line")
		timer.Fire()
	}
	got := b.Lines("X", 0)
	if len(got) != 5 {
		t.Fatalf("len = %d, want 5", len(got))
	}
	for i, l := range got {
		if want := int64(8 + i); l.ID != want {
			t.Errorf("line[%d].ID = %d, want %d", i, l.ID, want)
		}
	}
}

func TestBuffer_ClearKeepsCounter(t *testing.T) {
	b, timer := newTestBuffer(t, 100)
	b.Append("X", "a")
	b.Append("X", "b")
	timer.Fire()

	b.Clear("X")
	if got := b.Lines("X", 0); len(got) != 0 {
		t.Fatalf("lines after clear: %v", got)
	}

	b.Append("X", "c")
	timer.Fire()
	got := b.Lines("X", 0)
	if len(got) != 1 || got[0].ID != 3 {
		t.Fatalf("line after clear = %+v, want id 3 (counter preserved)", got)
	}
}

func TestBuffer_MonotonicAcrossManyCycles(t *testing.T) {
	b, timer := newTestBuffer(t, 3)
	var highest int64
	for cycle := 0; cycle < 10; cycle++ {
		b.Append("X", "l1")
		b.Append("X", "l2")
		timer.Fire()
		if cycle == 4 {
			b.Clear("X")
			continue
		}
		lines := b.Lines("X", 0)
		for i := 1; i < len(lines); i++ {
			if lines[i].ID <= lines[i-1].ID {
				t.Fatalf("ids not strictly increasing: %v", lines)
			}
		}
		newest := lines[len(lines)-1].ID
		if newest <= highest {
			t.Fatalf("newest id %d did not advance past %d", newest, highest)
		}
		highest = newest
	}
}

func TestBuffer_LinesAfterAnchor(t *testing.T) {
	b, timer := newTestBuffer(t, 100)
	for _, l := range []string{"a", "b", "c", "d"} {
		b.Append("X", l)
	}
	timer.Fire()
	got := b.Lines("X", 2)
	if want := []string{"c", "d"}; len(got) != 2 || got[0].Text != want[0] || got[1].Text != want[1] {
		t.Errorf("Lines(after=2) = %v, want ids 3,4", got)
	}
}

func TestBuffer_OnFlushReportsTouchedSerials(t *testing.T) {
	timer := sched.NewManual()
	var reported []string
	b := New(Config{Timer: timer, OnFlush: func(serials []string) {
		reported = append(reported, serials...)
	}})

	b.Append("X", "a")
	b.Append("Y", "b")
	timer.Fire()

	sort.Strings(reported)
	if len(reported) != 2 || reported[0] != "X" || reported[1] != "Y" {
		t.Errorf("reported = %v, want [X Y]", reported)
	}

	reported = nil
	b.Flush() // nothing pending
	if len(reported) != 0 {
		t.Errorf("OnFlush fired with no pending lines: %v", reported)
	}
}
