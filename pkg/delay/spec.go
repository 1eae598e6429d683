package delay

import (
	"fmt"
	"time"
)

// Spec is the plain-data form of a delay strategy as it appears in configuration.
// Durations are whole seconds.
type Spec struct {
	Kind       Kind    `json:"kind" yaml:"kind"`
	Seconds    int     `json:"seconds,omitempty" yaml:"seconds,omitempty"`
	Increment  int     `json:"increment,omitempty" yaml:"increment,omitempty"`
	Max        int     `json:"max,omitempty" yaml:"max,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// DefaultSpec is the progressive delay of 5 minutes up to 3 hours
func DefaultSpec() Spec {
	return Spec{
		Kind:      KindProgressive,
		Increment: int(DefaultIncrement / time.Second),
		Max:       int(DefaultMax / time.Second),
	}
}

// Validate checks the parameters of the selected variant
func (s Spec) Validate() error {
	kind, err := ParseKind(string(s.Kind))
	if err != nil {
		return err
	}

	switch kind {
	case KindFixed:
		if s.Seconds < 0 {
			return fmt.Errorf("%w: fixed delay must be >= 0, got %d", ErrInvalidDelay, s.Seconds)
		}
	case KindProgressive:
		if s.Increment < 0 || s.Max < 0 {
			return fmt.Errorf("%w: progressive increment and max must be >= 0, got %d/%d",
				ErrInvalidDelay, s.Increment, s.Max)
		}
	case KindExponential:
		if s.Seconds < 0 || s.Max < 0 {
			return fmt.Errorf("%w: exponential initial and max must be >= 0, got %d/%d",
				ErrInvalidDelay, s.Seconds, s.Max)
		}
		if s.Multiplier != 0 && s.Multiplier < 1 {
			return fmt.Errorf("%w: exponential multiplier must be >= 1, got %v", ErrInvalidDelay, s.Multiplier)
		}
	}
	return nil
}

// Build returns the strategy described by the spec
func (s Spec) Build() (Strategy, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	kind, _ := ParseKind(string(s.Kind))
	switch kind {
	case KindFixed:
		return Fixed{Wait: seconds(s.Seconds)}, nil
	case KindExponential:
		return Exponential{
			Initial:    seconds(s.Seconds),
			Multiplier: s.Multiplier,
			Max:        seconds(s.Max),
		}, nil
	default:
		return Progressive{Increment: seconds(s.Increment), Max: seconds(s.Max)}, nil
	}
}

// SpecOf returns the configuration form of a built-in strategy
func SpecOf(s Strategy) Spec {
	switch v := OrDefault(s).(type) {
	case Fixed:
		return Spec{Kind: KindFixed, Seconds: toSeconds(v.Wait)}
	case Exponential:
		return Spec{Kind: KindExponential, Seconds: toSeconds(v.Initial), Max: toSeconds(v.Max), Multiplier: v.Multiplier}
	case Progressive:
		return Spec{Kind: KindProgressive, Increment: toSeconds(v.Increment), Max: toSeconds(v.Max)}
	}
	return DefaultSpec()
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func toSeconds(d time.Duration) int {
	return int(d / time.Second)
}
