// Package profiling accumulates per-frame CPU time by named section.
package profiling

import (
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Profiler sums elapsed time per section name until the next ResetFrame.
// A nil *Profiler is valid and records nothing.
type Profiler struct {
	mu     sync.Mutex
	totals map[string]time.Duration
	start  time.Time
}

// Section is one named total.
type Section struct {
	Name string
	Dur  time.Duration
}

func New() *Profiler {
	return &Profiler{totals: make(map[string]time.Duration), start: time.Now()}
}

func noop() {}

// Track returns a stop function that records the elapsed time under name.
// Usage: defer prof.Track("lifecycle.Update")()
func (p *Profiler) Track(name string) func() {
	if p == nil {
		return noop
	}
	start := time.Now()
	return func() {
		d := time.Since(start)
		p.mu.Lock()
		p.totals[name] += d
		p.mu.Unlock()
	}
}

// ResetFrame clears the totals and restarts the frame clock.
func (p *Profiler) ResetFrame() {
	if p == nil {
		return
	}
	p.mu.Lock()
	clear(p.totals)
	p.start = time.Now()
	p.mu.Unlock()
}

// FrameTime is the wall time since the last ResetFrame.
func (p *Profiler) FrameTime() time.Duration {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Since(p.start)
}

// Top returns the n largest sections of the current frame, largest first.
func (p *Profiler) Top(n int) []Section {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	out := make([]Section, 0, len(p.totals))
	for k, v := range p.totals {
		out = append(out, Section{Name: k, Dur: v})
	}
	p.mu.Unlock()
	slices.SortFunc(out, func(a, b Section) int {
		if a.Dur != b.Dur {
			if a.Dur > b.Dur {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Name, b.Name)
	})
	if n < len(out) {
		out = out[:n]
	}
	return out
}

// TopN formats the n largest sections, e.g. "lifecycle.Update:4.2ms, streaming.Pump:2.1ms".
func (p *Profiler) TopN(n int) string {
	top := p.Top(n)
	parts := make([]string, 0, len(top))
	for _, s := range top {
		parts = append(parts, s.Name+":"+formatMs(s.Dur))
	}
	return strings.Join(parts, ", ")
}

// Field renders the n largest sections as one log field.
func (p *Profiler) Field(n int) zap.Field {
	return zap.String("top", p.TopN(n))
}

func formatMs(d time.Duration) string {
	ms := float64(d.Microseconds()) / 1000
	return strconv.FormatFloat(ms, 'f', 1, 64) + "ms"
}
