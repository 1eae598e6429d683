package delay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixed(t *testing.T) {
	f := Fixed{Wait: 42 * time.Second}
	for _, attempt := range []int{0, 1, 10, 1000} {
		assert.Equal(t, 42*time.Second, f.Delay(attempt))
	}
	assert.Equal(t, KindFixed, f.Kind())
}

func TestProgressive(t *testing.T) {
	t.Run("default sequence is capped", func(t *testing.T) {
		p := DefaultProgressive()

		assert.Equal(t, 300*time.Second, p.Delay(0))
		assert.Equal(t, 600*time.Second, p.Delay(1))
		assert.Equal(t, 900*time.Second, p.Delay(2))
		assert.Equal(t, 10500*time.Second, p.Delay(34))
		assert.Equal(t, 10800*time.Second, p.Delay(35))
		assert.Equal(t, 10800*time.Second, p.Delay(36))
		assert.Equal(t, 10800*time.Second, p.Delay(100))
	})

	t.Run("never decreases", func(t *testing.T) {
		p := Progressive{Increment: 7 * time.Second, Max: 100 * time.Second}
		prev := time.Duration(0)
		for attempt := 0; attempt < 50; attempt++ {
			d := p.Delay(attempt)
			assert.GreaterOrEqual(t, d, prev)
			assert.LessOrEqual(t, d, 100*time.Second)
			prev = d
		}
	})

	t.Run("zero configuration means no delay", func(t *testing.T) {
		p := Progressive{}
		assert.Equal(t, time.Duration(0), p.Delay(0))
		assert.Equal(t, time.Duration(0), p.Delay(99))

		p = Progressive{Increment: -1 * time.Second, Max: 0}
		assert.Equal(t, time.Duration(0), p.Delay(3))
	})

	t.Run("huge attempt does not overflow", func(t *testing.T) {
		p := DefaultProgressive()
		assert.Equal(t, DefaultMax, p.Delay(int(^uint(0)>>2)))
	})
}

func TestExponential(t *testing.T) {
	e := Exponential{Initial: 10 * time.Second, Multiplier: 2, Max: 2 * time.Minute}

	assert.Equal(t, 10*time.Second, e.Delay(0))
	assert.Equal(t, 20*time.Second, e.Delay(1))
	assert.Equal(t, 40*time.Second, e.Delay(2))
	assert.Equal(t, 80*time.Second, e.Delay(3))
	assert.Equal(t, 2*time.Minute, e.Delay(4))
	assert.Equal(t, 2*time.Minute, e.Delay(20))

	// same input, same output
	assert.Equal(t, e.Delay(2), e.Delay(2))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, DefaultProgressive(), OrDefault(nil))
	assert.Equal(t, Fixed{Wait: time.Second}, OrDefault(Fixed{Wait: time.Second}))
}

func TestSpec(t *testing.T) {
	t.Run("Build", func(t *testing.T) {
		tests := []struct {
			name string
			spec Spec
			want Strategy
		}{
			{"fixed", Spec{Kind: KindFixed, Seconds: 30}, Fixed{Wait: 30 * time.Second}},
			{"progressive", Spec{Kind: KindProgressive, Increment: 60, Max: 600}, Progressive{Increment: time.Minute, Max: 10 * time.Minute}},
			{"empty kind is progressive", Spec{Increment: 1, Max: 2}, Progressive{Increment: time.Second, Max: 2 * time.Second}},
			{"exponential", Spec{Kind: KindExponential, Seconds: 5, Max: 60, Multiplier: 3}, Exponential{Initial: 5 * time.Second, Max: time.Minute, Multiplier: 3}},
			{"default", DefaultSpec(), DefaultProgressive()},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				got, err := tt.spec.Build()
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			})
		}
	})

	t.Run("Validate rejects bad parameters", func(t *testing.T) {
		bad := []Spec{
			{Kind: KindFixed, Seconds: -1},
			{Kind: KindProgressive, Increment: -5, Max: 10},
			{Kind: KindProgressive, Increment: 5, Max: -10},
			{Kind: KindExponential, Seconds: 1, Max: 10, Multiplier: 0.5},
		}
		for _, s := range bad {
			assert.ErrorIs(t, s.Validate(), ErrInvalidDelay, "spec %+v", s)
		}

		_, err := Spec{Kind: "random"}.Build()
		assert.ErrorIs(t, err, ErrUnknownDelayKind)
	})

	t.Run("SpecOf round trips built-in variants", func(t *testing.T) {
		for _, s := range []Spec{
			{Kind: KindFixed, Seconds: 12},
			{Kind: KindProgressive, Increment: 300, Max: 10800},
			{Kind: KindExponential, Seconds: 2, Max: 64, Multiplier: 2},
		} {
			strategy, err := s.Build()
			require.NoError(t, err)
			assert.Equal(t, s, SpecOf(strategy))
		}
		assert.Equal(t, DefaultSpec(), SpecOf(nil))
	})
}
