package goSession

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestProviderBuildsOnce(t *testing.T) {
	var builds atomic.Int32
	p := NewProvider(func() (*Manager, error) {
		builds.Add(1)
		return New().WithConfig(testConfig()).Build()
	})

	const n = 16
	managers := make(chan *Manager, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			m, err := p.Get()
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			managers <- m
		}()
	}
	wg.Wait()
	close(managers)

	first := p.MustGet()
	defer first.Close()
	for m := range managers {
		if m != first {
			t.Fatalf("provider returned distinct managers")
		}
	}
	if got := builds.Load(); got != 1 {
		t.Fatalf("build ran %d times", got)
	}
}

func TestProviderCachesError(t *testing.T) {
	wantErr := errors.New("boom")
	var builds atomic.Int32
	p := NewProvider(func() (*Manager, error) {
		builds.Add(1)
		return nil, wantErr
	})

	for i := 0; i < 3; i++ {
		if _, err := p.Get(); !errors.Is(err, wantErr) {
			t.Fatalf("expected cached error, got %v", err)
		}
	}
	if builds.Load() != 1 {
		t.Fatalf("build ran %d times", builds.Load())
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("MustGet should panic on build error")
		}
	}()
	p.MustGet()
}
