package admission

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metergate-platform/metergate/internal/config"
)

func testAdmissionCfg() config.AdmissionConfig {
	return config.AdmissionConfig{
		Backend: "memory",
		General: config.ClassLimit{Limit: 5, Window: 60 * time.Second},
		Batch:   config.ClassLimit{Limit: 2, Window: 60 * time.Second},
		Delete:  config.ClassLimit{Limit: 3, Window: 60 * time.Second},
	}
}

// runStoreSuite checks the fixed-window contract every Store implementation
// must satisfy.
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()
	t0 := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("window boundary", func(t *testing.T) {
		// Calls 1–5 in the window are admitted, the 6th is denied.
		for i := 0; i < 5; i++ {
			res, err := store.TryAdmit(ctx, "alice", ClassGeneral, t0)
			require.NoError(t, err)
			assert.True(t, res.Allowed, "call %d should be allowed", i+1)
			assert.Equal(t, 5, res.Limit)
			assert.Equal(t, 4-i, res.Remaining)
		}

		res, err := store.TryAdmit(ctx, "alice", ClassGeneral, t0)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
		assert.True(t, res.ResetAt.Equal(t0.Add(60*time.Second)), "reset at end of window, got %s", res.ResetAt)

		// A denial never consumes; repeated denials stay stable.
		res, err = store.TryAdmit(ctx, "alice", ClassGeneral, t0)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)

		// One second past the window the counter has rolled.
		res, err = store.TryAdmit(ctx, "alice", ClassGeneral, t0.Add(61*time.Second))
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 4, res.Remaining)
	})

	t.Run("status never consumes", func(t *testing.T) {
		res, err := store.TryAdmit(ctx, "bob", ClassGeneral, t0)
		require.NoError(t, err)
		require.True(t, res.Allowed)

		for i := 0; i < 10; i++ {
			st, err := store.Status(ctx, "bob", ClassGeneral, t0)
			require.NoError(t, err)
			assert.True(t, st.Allowed)
			assert.Equal(t, 4, st.Remaining)
		}

		res, err = store.TryAdmit(ctx, "bob", ClassGeneral, t0)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 3, res.Remaining)
	})

	t.Run("action classes independent", func(t *testing.T) {
		// Exhaust batch for carol.
		for i := 0; i < 2; i++ {
			res, err := store.TryAdmit(ctx, "carol", ClassBatch, t0)
			require.NoError(t, err)
			require.True(t, res.Allowed)
		}
		res, err := store.TryAdmit(ctx, "carol", ClassBatch, t0)
		require.NoError(t, err)
		require.False(t, res.Allowed)

		// general and delete for the same actor are untouched.
		res, err = store.TryAdmit(ctx, "carol", ClassGeneral, t0)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		res, err = store.TryAdmit(ctx, "carol", ClassDelete, t0)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("actors independent", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			_, err := store.TryAdmit(ctx, "dave", ClassDelete, t0)
			require.NoError(t, err)
		}
		res, err := store.TryAdmit(ctx, "dave", ClassDelete, t0)
		require.NoError(t, err)
		require.False(t, res.Allowed)

		res, err = store.TryAdmit(ctx, "erin", ClassDelete, t0)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	})

	t.Run("unknown class rejected", func(t *testing.T) {
		_, err := store.TryAdmit(ctx, "alice", ActionClass("export"), t0)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown action class")
	})
}

func TestMemoryStore(t *testing.T) {
	store, err := NewMemoryStore(testAdmissionCfg())
	require.NoError(t, err)
	runStoreSuite(t, store)
}

func TestMemoryStore_RejectsInvalidBudget(t *testing.T) {
	cfg := testAdmissionCfg()
	cfg.Batch.Limit = 0
	_, err := NewMemoryStore(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch")
}

func TestMemoryStore_ConcurrentAdmitsNeverExceedLimit(t *testing.T) {
	store, err := NewMemoryStore(testAdmissionCfg())
	require.NoError(t, err)

	ctx := context.Background()
	t0 := time.Now()

	results := make(chan bool, 50)
	for i := 0; i < 50; i++ {
		go func() {
			res, err := store.TryAdmit(ctx, "frank", ClassGeneral, t0)
			if err != nil {
				results <- false
				return
			}
			results <- res.Allowed
		}()
	}

	allowed := 0
	for i := 0; i < 50; i++ {
		if <-results {
			allowed++
		}
	}
	assert.Equal(t, 5, allowed, "exactly limit admissions under contention")
}
