package oracle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"depin-engine-backend/internal/engine"
	"depin-engine-backend/internal/feed"
)

// fakeSource is a scripted price feed.
type fakeSource struct {
	name     string
	decimals int
	price    int64
	err      error
}

func (f *fakeSource) Name() string  { return f.name }
func (f *fakeSource) Decimals() int { return f.decimals }
func (f *fakeSource) LatestRoundData(ctx context.Context) (feed.RoundData, error) {
	if f.err != nil {
		return feed.RoundData{}, f.err
	}
	return feed.RoundData{Price: f.price}, nil
}

func newTestIntegration(t *testing.T, intervalSec, tolerance int64, decimals int) (*Integration, *engine.Engine) {
	eng := newTestEngine(t, 1)
	require.NoError(t, EnsureIntegrationState(eng.DB(), intervalSec, tolerance, decimals))
	return NewIntegration(eng), eng
}

func TestUpdateAdoptsAndGates(t *testing.T) {
	integ, eng := newTestIntegration(t, 300, 50, 0)
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0).UTC()
	eng.Now = func() time.Time { return now }

	src := &fakeSource{name: "feed-a", price: 500}

	// An unset value adopts the aggregate unconditionally.
	accepted, aggregate, err := integ.Update(ctx, []feed.Source{src})
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, int64(500), aggregate)

	st, err := integ.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), st.CurrentValue)
	assert.Equal(t, now.Unix(), st.LastUpdateTime)

	// Within the interval nothing happens, not even the timestamp.
	now = now.Add(100 * time.Second)
	src.price = 900
	_, _, err = integ.Update(ctx, []feed.Source{src})
	assert.Equal(t, engine.KindTooEarly, engine.KindOf(err))

	st, err = integ.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), st.CurrentValue)
	assert.Equal(t, now.Add(-100*time.Second).Unix(), st.LastUpdateTime)

	// Out of tolerance: value kept, timestamp advanced anyway.
	now = now.Add(201 * time.Second)
	src.price = 600
	accepted, aggregate, err = integ.Update(ctx, []feed.Source{src})
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Equal(t, int64(600), aggregate)

	st, err = integ.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(500), st.CurrentValue, "rejected aggregate must not stick")
	assert.Equal(t, now.Unix(), st.LastUpdateTime, "rejection still consumes the interval")

	// Within tolerance: adopted.
	now = now.Add(301 * time.Second)
	src.price = 540
	accepted, _, err = integ.Update(ctx, []feed.Source{src})
	require.NoError(t, err)
	assert.True(t, accepted)

	st, err = integ.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(540), st.CurrentValue)
}

func TestUpdateAveragesAndScalesSources(t *testing.T) {
	integ, eng := newTestIntegration(t, 300, 50, 2)
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0).UTC()
	eng.Now = func() time.Time { return now }

	sources := []feed.Source{
		// 500.00 expressed in 4 decimals, scaled down to canonical 2.
		&fakeSource{name: "hi-res", decimals: 4, price: 5_000_000},
		// 510.00 already in canonical decimals.
		&fakeSource{name: "exact", decimals: 2, price: 51_000},
		// A failing source is skipped, not fatal.
		&fakeSource{name: "down", err: errors.New("connection refused")},
	}

	accepted, aggregate, err := integ.Update(ctx, sources)
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, int64(50_500), aggregate, "mean of 50000 and 51000")
}

func TestUpdateNeedsOneAnsweringSource(t *testing.T) {
	integ, eng := newTestIntegration(t, 300, 50, 0)
	ctx := context.Background()

	now := time.Unix(1_700_000_000, 0).UTC()
	eng.Now = func() time.Time { return now }

	down := &fakeSource{name: "down", err: errors.New("timeout")}
	_, _, err := integ.Update(ctx, []feed.Source{down})
	assert.Equal(t, engine.KindExternalCall, engine.KindOf(err))

	// The failed cycle left no trace.
	st, err := integ.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.CurrentValue)
	assert.Zero(t, st.LastUpdateTime)
}
