package crawler

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestDomainTimersNoPriorRequest(t *testing.T) {
	timers := NewDomainTimers(clock.NewMock())
	if wait := timers.TimeUntilNextRequest("example.test", time.Second); wait != 0 {
		t.Fatalf("expected 0 wait with no prior request, got %s", wait)
	}
}

func TestDomainTimersEnforcesDelay(t *testing.T) {
	mock := clock.NewMock()
	timers := NewDomainTimers(mock)

	timers.SetTimer("example.test")
	wait := timers.TimeUntilNextRequest("example.test", time.Second)
	if wait != time.Second {
		t.Fatalf("expected full delay immediately after SetTimer, got %s", wait)
	}

	mock.Add(600 * time.Millisecond)
	wait = timers.TimeUntilNextRequest("example.test", time.Second)
	if wait != 400*time.Millisecond {
		t.Fatalf("expected 400ms remaining, got %s", wait)
	}

	mock.Add(400 * time.Millisecond)
	wait = timers.TimeUntilNextRequest("example.test", time.Second)
	if wait != 0 {
		t.Fatalf("expected delay elapsed, got %s", wait)
	}
}

func TestDomainTimersPerDomainIsolation(t *testing.T) {
	mock := clock.NewMock()
	timers := NewDomainTimers(mock)
	timers.SetTimer("a.test")

	if wait := timers.TimeUntilNextRequest("b.test", time.Second); wait != 0 {
		t.Fatalf("expected independent domains, got wait %s", wait)
	}
}
