package retry

import (
	"math"
	"math/rand"
	"time"

	errs "instadb/pkg/errors"
)

// BackoffStrategy yields the wait after the given failed attempt (1-based)
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ErrorAwareBackoff picks its delay from the failure that caused the retry
type ErrorAwareBackoff interface {
	NextDelayFor(attempt int, err error) time.Duration
}

func nextDelay(b BackoffStrategy, attempt int, err error) time.Duration {
	if attempt <= 0 {
		return 0
	}
	if eb, ok := b.(ErrorAwareBackoff); ok {
		return eb.NextDelayFor(attempt, err)
	}
	return b.NextDelay(attempt)
}

// ExponentialBackoff grows Base by Factor per attempt up to Max. Jitter is
// the fraction of the delay added or removed at random.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
	Jitter float64
}

// DefaultExponentialBackoff doubles from one second up to a minute
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{Base: time.Second, Max: time.Minute, Factor: 2, Jitter: 0.1}
}

func (b *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt-1))
	d = math.Min(d, float64(b.Max))
	if b.Jitter > 0 {
		d += d * b.Jitter * (2*rand.Float64() - 1)
	}
	return time.Duration(math.Max(d, 0))
}

// ConstantBackoff waits the same Delay after every failure
type ConstantBackoff struct {
	Delay time.Duration
}

func (b *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return b.Delay
}

// ErrorTypeBackoff waits according to the type of the failure. Types
// without an entry use Fallback.
type ErrorTypeBackoff struct {
	ByType   map[errs.ErrorType]BackoffStrategy
	Fallback BackoffStrategy
}

// NewErrorTypeBackoff is tuned for the media CDN: a 429 backs off for
// minutes, a dropped connection for seconds.
func NewErrorTypeBackoff() *ErrorTypeBackoff {
	return &ErrorTypeBackoff{
		ByType: map[errs.ErrorType]BackoffStrategy{
			errs.ErrorTypeNetwork:     &ExponentialBackoff{Base: time.Second, Max: 30 * time.Second, Factor: 2, Jitter: 0.2},
			errs.ErrorTypeRateLimit:   &ExponentialBackoff{Base: 30 * time.Second, Max: 5 * time.Minute, Factor: 1.5, Jitter: 0.3},
			errs.ErrorTypeServerError: &ExponentialBackoff{Base: 5 * time.Second, Max: time.Minute, Factor: 2, Jitter: 0.1},
		},
		Fallback: DefaultExponentialBackoff(),
	}
}

func (b *ErrorTypeBackoff) NextDelay(attempt int) time.Duration {
	return b.Fallback.NextDelay(attempt)
}

func (b *ErrorTypeBackoff) NextDelayFor(attempt int, err error) time.Duration {
	return b.ForType(errs.TypeOf(err)).NextDelay(attempt)
}

// ForType returns the strategy used for failures of type t
func (b *ErrorTypeBackoff) ForType(t errs.ErrorType) BackoffStrategy {
	if s, ok := b.ByType[t]; ok && s != nil {
		return s
	}
	return b.Fallback
}
