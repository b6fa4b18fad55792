package circuit_breaker

import (
	"errors"
	"sync"
	"time"
)

type Status uint8

const (
	Closed Status = iota + 1
	Open
	HalfOpen
)

func (s Status) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrOpenCB = errors.New("circuit breaker is open")

type CircuitBreaker interface {
	Call(fn func() error) error
	State() Status
	Reset()
}

const (
	DefaultWindow       = 100
	DefaultOpenTimeout  = 10 * time.Second
	DefaultFailureRatio = 0.2
	DefaultRecovery     = 2
)

type Option func(cb *circuitBreaker)

// WithWindow sets how many recent calls the failure ratio is taken over.
func WithWindow(n int) Option {
	return func(cb *circuitBreaker) {
		cb.window = n
	}
}

// WithOpenTimeout sets how long the breaker rejects calls before letting one through.
func WithOpenTimeout(d time.Duration) Option {
	return func(cb *circuitBreaker) {
		cb.openTimeout = d
	}
}

// WithFailureRatio sets the share of failed calls in the window that opens the breaker.
func WithFailureRatio(r float64) Option {
	return func(cb *circuitBreaker) {
		cb.failureRatio = r
	}
}

// WithRecovery sets the successes in a row that close a half-open breaker.
func WithRecovery(n int) Option {
	return func(cb *circuitBreaker) {
		cb.recovery = n
	}
}

// WithOnStateChange registers fn to run after every transition.
func WithOnStateChange(fn func(from, to Status)) Option {
	return func(cb *circuitBreaker) {
		cb.onStateChange = fn
	}
}

type circuitBreaker struct {
	mu    sync.Mutex
	state Status

	window       int
	openTimeout  time.Duration
	failureRatio float64
	recovery     int

	// ring of the last window outcomes, true is a failure
	outcomes  []bool
	next      int
	failures  int
	openedAt  time.Time
	successes int

	onStateChange func(from, to Status)
}

func New(opts ...Option) CircuitBreaker {
	cb := &circuitBreaker{
		state:        Closed,
		window:       DefaultWindow,
		openTimeout:  DefaultOpenTimeout,
		failureRatio: DefaultFailureRatio,
		recovery:     DefaultRecovery,
	}
	for _, opt := range opts {
		opt(cb)
	}
	if cb.window < 1 {
		cb.window = 1
	}
	if cb.recovery < 1 {
		cb.recovery = 1
	}
	cb.outcomes = make([]bool, cb.window)
	return cb
}

func (cb *circuitBreaker) Call(fn func() error) error {
	if !cb.allow() {
		return ErrOpenCB
	}
	err := fn()
	cb.record(err != nil)
	return err
}

func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	if cb.state != Open {
		cb.mu.Unlock()
		return true
	}
	if time.Since(cb.openedAt) <= cb.openTimeout {
		cb.mu.Unlock()
		return false
	}
	from := cb.transition(HalfOpen)
	cb.mu.Unlock()
	cb.notify(from, HalfOpen)
	return true
}

func (cb *circuitBreaker) record(failed bool) {
	cb.mu.Lock()
	if cb.outcomes[cb.next] {
		cb.failures--
	}
	cb.outcomes[cb.next] = failed
	if failed {
		cb.failures++
	}
	cb.next = (cb.next + 1) % cb.window

	to := cb.state
	switch cb.state {
	case HalfOpen:
		if failed {
			to = Open
			break
		}
		cb.successes++
		if cb.successes >= cb.recovery {
			to = Closed
		}
	case Closed:
		if float64(cb.failures)/float64(cb.window) >= cb.failureRatio {
			to = Open
		}
	}
	if to == cb.state {
		cb.mu.Unlock()
		return
	}
	from := cb.transition(to)
	cb.mu.Unlock()
	cb.notify(from, to)
}

// transition must be called with mu held.
func (cb *circuitBreaker) transition(to Status) Status {
	from := cb.state
	cb.state = to
	cb.successes = 0
	switch to {
	case Open:
		cb.openedAt = time.Now()
	case Closed:
		cb.clearOutcomes()
	}
	return from
}

func (cb *circuitBreaker) clearOutcomes() {
	for i := range cb.outcomes {
		cb.outcomes[i] = false
	}
	cb.next = 0
	cb.failures = 0
}

func (cb *circuitBreaker) notify(from, to Status) {
	if cb.onStateChange != nil && from != to {
		cb.onStateChange(from, to)
	}
}

func (cb *circuitBreaker) State() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *circuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.transition(Closed)
	cb.mu.Unlock()
	cb.notify(from, Closed)
}
