package rtc

import "testing"

func TestTeardown_AllCallbacksRunOnce(t *testing.T) {
	td := &teardown{}
	var calls []string
	td.add(func() { calls = append(calls, "transcript") })
	td.add(func() { calls = append(calls, "vad") })
	td.add(func() { calls = append(calls, "session") })

	// Disconnected and Closed both fire the registry; only the first counts.
	td.run()
	td.run()

	if len(calls) != 3 {
		t.Fatalf("expected all 3 callbacks to run exactly once, got %v", calls)
	}
}

func TestTeardown_RunsNewestFirst(t *testing.T) {
	td := &teardown{}
	var calls []string
	td.add(func() { calls = append(calls, "base") })
	td.add(func() { calls = append(calls, "session") })

	td.run()

	if len(calls) != 2 || calls[0] != "session" || calls[1] != "base" {
		t.Fatalf("expected session cleanup before base close, got %v", calls)
	}
}

func TestTeardown_AddAfterRunFiresImmediately(t *testing.T) {
	td := &teardown{}
	td.run()

	ran := false
	td.add(func() { ran = true })
	if !ran {
		t.Fatalf("expected late-registered callback to run immediately")
	}
}

func TestTeardown_ReentrantRunDoesNotDeadlock(t *testing.T) {
	td := &teardown{}
	count := 0
	td.add(func() {
		count++
		// closing the peer connection re-fires the state handler
		td.run()
	})
	td.run()
	if count != 1 {
		t.Fatalf("expected callback to run once under reentrant run, got %d", count)
	}
}
