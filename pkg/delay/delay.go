package delay

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	ErrInvalidDelay     = errors.New("invalid delay configuration")
	ErrUnknownDelayKind = errors.New("unknown delay kind")
)

// Kind identifies a delay variant
type Kind string

const (
	KindFixed       Kind = "fixed"
	KindProgressive Kind = "progressive"
	KindExponential Kind = "exponential"
)

const (
	// DefaultIncrement is the progressive step used by records created without a delay
	DefaultIncrement = 5 * time.Minute
	// DefaultMax caps the default progressive delay
	DefaultMax = 3 * time.Hour

	// DefaultMultiplier is the growth factor of the exponential delay
	DefaultMultiplier = 2.0
)

// Strategy computes the wait before a retry is resubmitted.
// attempt is 0 for the first retry. Implementations must not hold state mutated by Delay.
type Strategy interface {
	Delay(attempt int) time.Duration
	Kind() Kind
}

// Fixed waits the same duration before every retry
type Fixed struct {
	Wait time.Duration
}

var _ Strategy = Fixed{}

func (f Fixed) Delay(_ int) time.Duration { return f.Wait }
func (f Fixed) Kind() Kind                { return KindFixed }

// Progressive grows linearly by Increment per attempt and never exceeds Max
type Progressive struct {
	Increment time.Duration
	Max       time.Duration
}

var _ Strategy = Progressive{}

// DefaultProgressive returns the progressive delay of 5 minutes up to 3 hours
func DefaultProgressive() Progressive {
	return Progressive{Increment: DefaultIncrement, Max: DefaultMax}
}

func (p Progressive) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if p.Increment <= 0 {
		return 0
	}

	steps := time.Duration(attempt + 1)
	// overflow guard: once the product passes Max there is no need to multiply
	if steps > p.Max/p.Increment {
		return p.Max
	}
	d := p.Increment * steps
	if d > p.Max {
		return p.Max
	}
	return d
}

func (p Progressive) Kind() Kind { return KindProgressive }

// Exponential multiplies the wait by Multiplier on each attempt, capped at Max
type Exponential struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

var _ Strategy = Exponential{}

// Delay steps a fresh jitter-free backoff attempt+1 times, so repeated calls agree.
func (e Exponential) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if e.Initial <= 0 {
		return 0
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     e.Initial,
		RandomizationFactor: 0,
		Multiplier:          e.multiplier(),
		MaxInterval:         e.Max,
	}
	b.Reset()

	var d time.Duration
	for i := 0; i <= attempt; i++ {
		d = b.NextBackOff()
		if d >= e.Max {
			return e.Max
		}
	}
	return d.Truncate(time.Second)
}

func (e Exponential) Kind() Kind { return KindExponential }

func (e Exponential) multiplier() float64 {
	if e.Multiplier < 1 {
		return DefaultMultiplier
	}
	return e.Multiplier
}

// OrDefault returns s, or the default progressive delay when s is nil
func OrDefault(s Strategy) Strategy {
	if s == nil {
		return DefaultProgressive()
	}
	return s
}

// ParseKind maps a configuration string onto a Kind
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindFixed:
		return KindFixed, nil
	case KindProgressive, "":
		return KindProgressive, nil
	case KindExponential:
		return KindExponential, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDelayKind, s)
}
