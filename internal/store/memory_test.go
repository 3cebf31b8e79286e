package store

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-odds/internal/weather"
)

func result(id string) *weather.Result {
	return &weather.Result{Status: weather.StatusOK, QueryID: id, Condition: "hot"}
}

func TestMemoryStore_SaveGet(t *testing.T) {
	s := NewMemoryStore(0, 0, nil)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, result("q_1")))
	got, err := s.Get(ctx, "q_1")
	require.NoError(t, err)
	assert.Equal(t, "q_1", got.QueryID)

	_, err = s.Get(ctx, "q_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_WriteOnce(t *testing.T) {
	s := NewMemoryStore(0, 0, nil)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, result("q_1")))
	err := s.Save(ctx, &weather.Result{QueryID: "q_1", Condition: "cold"})
	assert.ErrorIs(t, err, ErrExists)

	got, err := s.Get(ctx, "q_1")
	require.NoError(t, err)
	assert.Equal(t, "hot", got.Condition)
}

func TestMemoryStore_MaxEntries(t *testing.T) {
	s := NewMemoryStore(2, 0, nil)
	ctx := context.Background()

	for _, id := range []string{"q_1", "q_2", "q_3"} {
		require.NoError(t, s.Save(ctx, result(id)))
	}
	assert.Equal(t, 2, s.Len())
	_, err := s.Get(ctx, "q_1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "q_3")
	assert.NoError(t, err)
}

func TestMemoryStore_PruneByAge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewMemoryStore(0, time.Hour, clock)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, result("q_old")))
	clock.Advance(45 * time.Minute)
	require.NoError(t, s.Save(ctx, result("q_new")))
	clock.Advance(30 * time.Minute)

	n, err := s.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Get(ctx, "q_old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "q_new")
	assert.NoError(t, err)
}
