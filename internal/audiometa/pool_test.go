package audiometa

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestPoolRunsJobs(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte("junk"), 0644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	pool := NewPool(newTestExtractor(), 2, 8, nil)

	var mu sync.Mutex
	titles := make(map[string]bool)
	for _, p := range paths {
		err := pool.Submit(Job{Path: p, Done: func(info Info, err error) {
			mu.Lock()
			titles[info.Title] = true
			mu.Unlock()
		}})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	pool.Stop()

	for _, want := range []string{"a", "b", "c"} {
		if !titles[want] {
			t.Errorf("missing result for %s", want)
		}
	}
}

func TestPoolSubmitAfterStop(t *testing.T) {
	pool := NewPool(newTestExtractor(), 1, 1, nil)
	pool.Stop()
	pool.Stop()

	if err := pool.Submit(Job{Path: "x.mp3"}); err != ErrQueueClosed {
		t.Errorf("Submit() error = %v, want ErrQueueClosed", err)
	}
}

func TestPoolReportsErrors(t *testing.T) {
	pool := NewPool(newTestExtractor(), 1, 1, nil)

	done := make(chan error, 1)
	if err := pool.Submit(Job{Path: "/does/not/exist.mp3", Done: func(_ Info, err error) { done <- err }}); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err == nil {
		t.Error("expected extraction error for missing file")
	}
	pool.Stop()
}
