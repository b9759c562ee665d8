package jobs

import "testing"

func TestCanTransition(t *testing.T) {
	allowed := [][2]string{
		{StatusWaiting, StatusRunning},
		{StatusWaiting, StatusAborted},
		{StatusRunning, StatusRunning},
		{StatusRunning, StatusFinished},
		{StatusRunning, StatusError},
		{StatusRunning, StatusAborted},
	}
	for _, p := range allowed {
		if !CanTransition(p[0], p[1]) {
			t.Fatalf("%s -> %s should be allowed", p[0], p[1])
		}
	}
	for _, from := range TerminalStatuses {
		for _, to := range []string{StatusWaiting, StatusRunning, StatusFinished, StatusError, StatusAborted} {
			if CanTransition(from, to) {
				t.Fatalf("%s -> %s should be rejected", from, to)
			}
		}
	}
	if CanTransition(StatusRunning, StatusWaiting) {
		t.Fatalf("running -> waiting should be rejected")
	}
}
