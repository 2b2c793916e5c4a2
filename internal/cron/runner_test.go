package cronrunner

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRun_SkipsOverlappingTick(t *testing.T) {
	r := New(nil, nil, context.Background())
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int32
	job := func(context.Context) {
		atomic.AddInt32(&calls, 1)
		close(started)
		<-release
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		r.run("analysis", job)
	}()
	<-started
	if r.run("analysis", job) {
		t.Fatalf("overlapping tick ran")
	}
	// other names are independent
	if !r.run("lifecycle", func(context.Context) {}) {
		t.Fatalf("independent job skipped")
	}
	close(release)
	wg.Wait()
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls=%d want 1", n)
	}
	if !r.run("analysis", func(context.Context) {}) {
		t.Fatalf("guard not released")
	}
}

func TestRun_RecoversPanicAndReleases(t *testing.T) {
	r := New(nil, nil, context.Background())
	r.run("boom", func(context.Context) { panic("x") })
	if !r.run("boom", func(context.Context) {}) {
		t.Fatalf("guard not released after panic")
	}
}

func TestAddJob_RejectsBadSpec(t *testing.T) {
	r := New(nil, nil, context.Background())
	if _, err := r.AddJob("bad", "not a spec", func(context.Context) {}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := r.AddJob("ok", "@every 1m", func(context.Context) {}); err != nil {
		t.Fatalf("err=%v", err)
	}
}
