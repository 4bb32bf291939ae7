package meshing

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func drainUntil[T comparable](t *testing.T, q *Queue[T], want int) map[T]Mesh {
	t.Helper()
	got := make(map[T]Mesh)
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < want {
		if time.Now().After(deadline) {
			t.Fatalf("timed out with %d of %d results", len(got), want)
		}
		for target, m := range q.DrainCompleted() {
			got[target] = m
		}
		time.Sleep(time.Millisecond)
	}
	return got
}

func quadMesh() Mesh {
	return Mesh{Vertices: make([]float32, 4*VertexStride), Indices: []uint32{0, 1, 2, 2, 3, 0}}
}

func TestQueueRunsJobs(t *testing.T) {
	q := NewQueue[int](2, 16, zap.NewNop())
	defer q.Shutdown()
	for i := range 8 {
		if !q.Submit(Job[int]{Target: i, Build: func() (Mesh, error) { return quadMesh(), nil }}) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	got := drainUntil(t, q, 8)
	for i := range 8 {
		if got[i].Empty() {
			t.Fatalf("job %d produced an empty mesh", i)
		}
	}
}

func TestPanicBecomesEmptyMesh(t *testing.T) {
	q := NewQueue[string](1, 4, zap.NewNop())
	defer q.Shutdown()
	q.Submit(Job[string]{Target: "bad", Build: func() (Mesh, error) { panic("corrupt grid") }})
	q.Submit(Job[string]{Target: "err", Build: func() (Mesh, error) { return quadMesh(), errors.New("boom") }})
	q.Submit(Job[string]{Target: "good", Build: func() (Mesh, error) { return quadMesh(), nil }})

	got := drainUntil(t, q, 3)
	if !got["bad"].Empty() || !got["err"].Empty() {
		t.Fatalf("failed jobs should yield empty meshes")
	}
	if got["good"].Empty() {
		t.Fatalf("job after a panic did not run")
	}
}

func TestSubmitFullQueueDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue[int](1, 1, zap.NewNop())
	defer q.Shutdown()
	defer close(release)
	block := func() (Mesh, error) { <-release; return Mesh{}, nil }

	accepted := 0
	for i := range 10 {
		if q.Submit(Job[int]{Target: i, Build: block}) {
			accepted++
		}
	}
	// one job may be held by the worker, one sits in the queue
	if accepted > 2 {
		t.Fatalf("accepted %d jobs into a queue of 1 with 1 worker", accepted)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	q := NewQueue[int](1, 1, zap.NewNop())
	q.Shutdown()
	q.Shutdown()
	if q.Submit(Job[int]{Target: 1, Build: func() (Mesh, error) { return Mesh{}, nil }}) {
		t.Fatalf("submit accepted after shutdown")
	}
}
