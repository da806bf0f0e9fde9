package llm

// limiter is a counting semaphore bounding the number of concurrent
// outbound LLM calls across the whole process.
type limiter struct {
	slots chan struct{}
}

func newLimiter(max int) *limiter {
	if max <= 0 {
		max = 1
	}
	return &limiter{slots: make(chan struct{}, max)}
}

func (l *limiter) acquire() { l.slots <- struct{}{} }
func (l *limiter) release() { <-l.slots }
