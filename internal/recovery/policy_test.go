package recovery

import (
	"testing"

	"github.com/browseragent/control-plane/internal/errs"
)

func TestPageCrashedAborts(t *testing.T) {
	d := Decide(Input{ErrorCode: errs.PageCrashed})
	if d.Action != ActionAbort {
		t.Fatalf("action = %s, want abort", d.Action)
	}
}

func TestNavigationTimeoutEscalatesAfterThreeConsecutive(t *testing.T) {
	d := Decide(Input{ErrorCode: errs.NavigationTimeout, ConsecutiveErrors: 2})
	if d.Action != ActionRetry {
		t.Fatalf("action = %s, want retry below threshold", d.Action)
	}
	d = Decide(Input{ErrorCode: errs.NavigationTimeout, ConsecutiveErrors: 3})
	if d.Action != ActionInjectHint {
		t.Fatalf("action = %s, want inject_hint at threshold", d.Action)
	}
}

func TestBackoffCapsAt16000(t *testing.T) {
	if got := Backoff(1); got != 2000 {
		t.Fatalf("backoff(1) = %d, want 2000", got)
	}
	if got := Backoff(10); got != 16000 {
		t.Fatalf("backoff(10) = %d, want 16000 (capped)", got)
	}
}

func TestTransientMessageRetries(t *testing.T) {
	d := Decide(Input{ErrorMessage: "upstream returned 503", ConsecutiveErrors: 1})
	if d.Action != ActionRetry {
		t.Fatalf("action = %s, want retry for transient 5xx", d.Action)
	}
}
