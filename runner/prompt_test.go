package runner

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestPromptFirstCallerWins(t *testing.T) {
	p := newPrompt()
	if !p.Complete() {
		t.Fatal("first Complete() = false; want true")
	}
	if p.Complete() {
		t.Error("second Complete() = true; want no-op")
	}
	if p.Cancel() {
		t.Error("Cancel() after Complete() = true; want no-op")
	}
	if got := <-p.outcome; got != outcomeComplete {
		t.Errorf("outcome = %v; want complete", got)
	}
}

func TestPromptCancelWins(t *testing.T) {
	p := newPrompt()
	if !p.Cancel() {
		t.Fatal("first Cancel() = false; want true")
	}
	if p.Complete() {
		t.Error("Complete() after Cancel() = true; want no-op")
	}
	if got := <-p.outcome; got != outcomeCancel {
		t.Errorf("outcome = %v; want cancel", got)
	}
}

func TestPromptConcurrentResolution(t *testing.T) {
	p := newPrompt()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var won bool
			if i%2 == 0 {
				won = p.Complete()
			} else {
				won = p.Cancel()
			}
			if won {
				wins.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if n := wins.Load(); n != 1 {
		t.Errorf("winning continuations = %d; want exactly 1", n)
	}
	select {
	case <-p.outcome:
	default:
		t.Error("no outcome delivered")
	}
}
