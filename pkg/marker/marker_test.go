package marker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedrun-hq/rerunner/pkg/delay"
	"github.com/speedrun-hq/rerunner/pkg/policy"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "markers.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func testConfig() policy.Config {
	return policy.Config{
		MaxRetries:         2,
		Delay:              &delay.Spec{Kind: delay.KindFixed, Seconds: 10},
		CheckRegexp:        true,
		RegexpForRerun:     "disk full",
		RetryOnInstability: true,
	}
}

func TestAttachOnce(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			first := New("build-1", "nightly", testConfig())
			second := New("build-1", "nightly", policy.DefaultConfig())

			outcome, err := store.Attach(ctx, first)
			require.NoError(t, err)
			assert.Equal(t, Attached, outcome)

			outcome, err = store.Attach(ctx, second)
			require.NoError(t, err)
			assert.Equal(t, AlreadyPresent, outcome)

			got, ok, err := store.Get(ctx, "build-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, first.ID, got.ID)
			assert.Equal(t, first.Policy, got.Policy)
			assert.Equal(t, "nightly", got.Job)

			n, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestConcurrentAttach(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			const siblings = 16
			outcomes := make([]Outcome, siblings)
			ids := make([]string, siblings)

			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < siblings; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					m := New("matrix-7", "matrix", testConfig())
					ids[i] = m.ID
					outcome, err := store.Attach(ctx, m)
					assert.NoError(t, err)
					outcomes[i] = outcome
				}(i)
			}
			close(start)
			wg.Wait()

			attached := 0
			winner := ""
			for i, o := range outcomes {
				if o == Attached {
					attached++
					winner = ids[i]
				}
			}
			assert.Equal(t, 1, attached)

			got, ok, err := store.Get(ctx, "matrix-7")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, winner, got.ID)
		})
	}
}

func TestDetachAndMissing(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := store.Get(ctx, "unknown")
			require.NoError(t, err)
			assert.False(t, ok)

			for i := 0; i < 3; i++ {
				_, err := store.Attach(ctx, New(fmt.Sprintf("b-%d", i), "job", testConfig()))
				require.NoError(t, err)
			}
			require.NoError(t, store.Detach(ctx, "b-1"))

			_, ok, err = store.Get(ctx, "b-1")
			require.NoError(t, err)
			assert.False(t, ok)

			n, err := store.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			// detached records can carry a marker again
			outcome, err := store.Attach(ctx, New("b-1", "job", testConfig()))
			require.NoError(t, err)
			assert.Equal(t, Attached, outcome)
		})
	}
}

func TestAttachRequiresParent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := store.Attach(context.Background(), New("", "job", testConfig()))
			assert.ErrorIs(t, err, ErrEmptyParentID)
		})
	}
}

func TestMarkerDecider(t *testing.T) {
	m := New("b", "job", testConfig())
	p, err := m.Decider()
	require.NoError(t, err)
	assert.Equal(t, 2, p.MaxRetries())
	assert.NotNil(t, p.GatingPattern())

	bad := New("b", "job", policy.Config{CheckRegexp: true, RegexpForRerun: "(("})
	_, err = bad.Decider()
	assert.Error(t, err)
}
