package lifecycle

import (
	"testing"
	"time"
)

func TestGroupStopWaitsForInFlightWork(t *testing.T) {
	g := NewGroup()
	if err := g.Add(); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer g.Done()
		<-g.StopChan()
		time.Sleep(20 * time.Millisecond)
		close(done)
	}()

	if err := g.Stop(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	default:
		t.Fatal("Stop must not return before in-flight work finishes")
	}
}

func TestGroupAddAfterStopFails(t *testing.T) {
	g := NewGroup()
	if err := g.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := g.Add(); err != ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestGroupStopIsIdempotent(t *testing.T) {
	g := NewGroup()
	if err := g.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := g.Stop(); err != nil {
		t.Fatal("calling Stop a second time must not error")
	}
}

func TestGroupOnStopRunsBeforeWaitReturns(t *testing.T) {
	g := NewGroup()
	var ran bool
	g.OnStop(func() { ran = true })
	if err := g.Stop(); err != nil {
		t.Fatal(err)
	}
	if !ran {
		t.Fatal("expected the OnStop hook to run during Stop")
	}
}

func TestGroupFlushDoesNotStopTheGroup(t *testing.T) {
	g := NewGroup()
	if err := g.Add(); err != nil {
		t.Fatal(err)
	}
	g.Done()
	if err := g.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := g.Add(); err != nil {
		t.Fatal("Flush must not mark the group stopped")
	}
	g.Done()
}
