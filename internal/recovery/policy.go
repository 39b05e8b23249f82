// Package recovery implements the Agent Loop's error-recovery decision
// table.
package recovery

import (
	"math"
	"regexp"

	"github.com/browseragent/control-plane/internal/errs"
)

// Action is the recovery decision kind.
type Action string

const (
	ActionRetry      Action = "retry"
	ActionInjectHint Action = "inject_hint"
	ActionAbort      Action = "abort"
)

// Decision is the result of evaluating the policy.
type Decision struct {
	Action  Action
	DelayMs int
	Message string
}

// Input bundles the facts the policy keys on.
type Input struct {
	ErrorCode         errs.Code
	ErrorMessage      string
	ToolName          string
	ConsecutiveErrors int
}

var transientPattern = regexp.MustCompile(`(?i)ECONNREFUSED|ETIMEDOUT|\b429\b|\b5\d\d\b`)

// Decide applies the decision table in spec order.
func Decide(in Input) Decision {
	switch in.ErrorCode {
	case errs.PageCrashed, errs.SessionNotFound:
		return Decision{Action: ActionAbort, Message: "unrecoverable: " + string(in.ErrorCode)}
	case errs.ElementNotFound:
		return Decision{Action: ActionInjectHint, Message: "Element not found; refresh the page info snapshot before retrying the selector."}
	case errs.NavigationTimeout:
		if in.ConsecutiveErrors < 3 {
			return Decision{Action: ActionRetry, DelayMs: Backoff(in.ConsecutiveErrors)}
		}
		return Decision{Action: ActionInjectHint, Message: "Navigation keeps timing out; switch strategy (different URL, wait_for_stable, or smaller steps)."}
	case errs.ExecutionError:
		return Decision{Action: ActionInjectHint, Message: "The script raised an error; inspect the diagnostics and adjust before re-running."}
	case errs.InvalidParameter:
		return Decision{Action: ActionInjectHint, Message: "The arguments for that tool call were invalid; correct them and retry."}
	}

	if transientPattern.MatchString(in.ErrorMessage) {
		return Decision{Action: ActionRetry, DelayMs: Backoff(in.ConsecutiveErrors)}
	}

	return Decision{Action: ActionRetry, DelayMs: Backoff(in.ConsecutiveErrors)}
}

// Backoff is min(2000*2^(consecutiveErrors-1), 16000) ms.
func Backoff(consecutiveErrors int) int {
	if consecutiveErrors < 1 {
		consecutiveErrors = 1
	}
	delay := 2000 * math.Pow(2, float64(consecutiveErrors-1))
	if delay > 16000 {
		delay = 16000
	}
	return int(delay)
}
