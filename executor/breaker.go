package executor

// DefaultFailureThreshold is the number of consecutive reasoning/action
// failures after which an executor stops instead of retrying.
const DefaultFailureThreshold = 3

// breaker tracks consecutive THINK/ACT failures. When the threshold is
// reached the executor refuses further reasoning and terminates the run; it
// is a hard stop, not a retry-with-backoff. Not safe for concurrent use; each
// executor owns exactly one breaker and only its run task touches it.
type breaker struct {
	consecutiveFailures int
	lastCallSuccess     bool
	threshold           int
}

func newBreaker(threshold int) *breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	return &breaker{lastCallSuccess: true, threshold: threshold}
}

// Open reports whether the failure threshold has been reached.
func (b *breaker) Open() bool {
	return b.consecutiveFailures >= b.threshold
}

// Failure records a failed call.
func (b *breaker) Failure() {
	b.lastCallSuccess = false
	b.consecutiveFailures++
}

// Success records a successful call and resets the consecutive counter.
func (b *breaker) Success() {
	b.lastCallSuccess = true
	b.consecutiveFailures = 0
}

// Reset restores the pristine state.
func (b *breaker) Reset() {
	b.consecutiveFailures = 0
	b.lastCallSuccess = true
}

// Failures returns the current consecutive failure count.
func (b *breaker) Failures() int { return b.consecutiveFailures }

// Threshold returns the configured hard-stop threshold.
func (b *breaker) Threshold() int { return b.threshold }
