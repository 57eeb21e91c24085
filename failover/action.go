package failover

import (
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/model"
)

// DefaultRateLimitWait is used when a rate-limited response carries no
// retry hint.
const DefaultRateLimitWait = 5 * time.Second

// ActionKind enumerates the recovery actions.
type ActionKind int

const (
	// Abort terminates the run and surfaces the error.
	Abort ActionKind = iota
	// RetryWithNextAuth retries the same model with the next credential.
	RetryWithNextAuth
	// WaitAndRetry retries the same model after Action.Wait.
	WaitAndRetry
	// CompactAndRetry compacts the transcript and retries the same model.
	CompactAndRetry
	// FailoverToNext advances to the next model of the chain.
	FailoverToNext
)

// String returns the action name.
func (k ActionKind) String() string {
	switch k {
	case RetryWithNextAuth:
		return "retry_with_next_auth"
	case WaitAndRetry:
		return "wait_and_retry"
	case CompactAndRetry:
		return "compact_and_retry"
	case FailoverToNext:
		return "failover_to_next"
	default:
		return "abort"
	}
}

// Action is the pure output of Classify. Wait is only set for WaitAndRetry.
type Action struct {
	Kind ActionKind
	Wait time.Duration
}

// String renders the action, including the wait for WaitAndRetry.
func (a Action) String() string {
	if a.Kind == WaitAndRetry {
		return fmt.Sprintf("%s(%s)", a.Kind, a.Wait)
	}
	return a.Kind.String()
}

// RetriesSameModel reports whether the action keeps the current model.
func (a Action) RetriesSameModel() bool {
	switch a.Kind {
	case RetryWithNextAuth, WaitAndRetry, CompactAndRetry:
		return true
	default:
		return false
	}
}

// Classify maps a provider error to its recovery action. A nil error or
// one outside the taxonomy aborts.
func Classify(err model.ProviderError) Action {
	switch e := err.(type) {
	case *model.AuthenticationFailedError, *model.NetworkError:
		return Action{Kind: RetryWithNextAuth}
	case *model.RateLimitedError:
		if e.RetryAfter != nil {
			return Action{Kind: WaitAndRetry, Wait: *e.RetryAfter}
		}
		return Action{Kind: WaitAndRetry, Wait: DefaultRateLimitWait}
	case *model.ContextLengthExceededError, *model.InvalidRequestError:
		return Action{Kind: CompactAndRetry}
	case *model.ModelNotFoundError, *model.ServerError, *model.StreamClosedError:
		return Action{Kind: FailoverToNext}
	default:
		return Action{Kind: Abort}
	}
}

// ClassifyError extracts the provider error from err's chain and classifies it.
func ClassifyError(err error) Action {
	return Classify(model.AsProviderError(err))
}
