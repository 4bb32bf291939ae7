package profiling

import (
	"strings"
	"testing"
	"time"
)

func TestTopOrdersByDuration(t *testing.T) {
	p := New()
	p.mu.Lock()
	p.totals["a"] = 2 * time.Millisecond
	p.totals["b"] = 5 * time.Millisecond
	p.totals["c"] = time.Millisecond
	p.mu.Unlock()

	top := p.Top(2)
	if len(top) != 2 || top[0].Name != "b" || top[1].Name != "a" {
		t.Fatalf("Top(2): got %+v", top)
	}
	if got := p.TopN(1); got != "b:5.0ms" {
		t.Fatalf("TopN(1): got %q", got)
	}
}

func TestTrackAndReset(t *testing.T) {
	p := New()
	stop := p.Track("x")
	stop()
	if !strings.HasPrefix(p.TopN(5), "x:") {
		t.Fatalf("tracked section missing: %q", p.TopN(5))
	}
	p.ResetFrame()
	if got := p.TopN(5); got != "" {
		t.Fatalf("after reset: got %q", got)
	}
}

func TestNilProfiler(t *testing.T) {
	var p *Profiler
	p.Track("x")()
	p.ResetFrame()
	if p.Top(3) != nil || p.FrameTime() != 0 {
		t.Fatalf("nil profiler recorded something")
	}
}
