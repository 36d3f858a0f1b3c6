package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zoobzio/clockz"

	"queue-system/internal/status"
	"queue-system/internal/store"
	"queue-system/models"
)

func TestStatsDaily(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	mem := store.NewMemory()
	stats := NewStats(mem, clock, time.UTC)

	scope, err := models.NewServiceScope("clinic_a", "desk1")
	require.NoError(t, err)
	period := PeriodOf(clock.Now(), time.UTC)

	for n := 1; n <= 5; n++ {
		_, err := mem.InsertTicket(ctx, store.InsertTicketParams{Scope: scope, Period: period, Number: n})
		require.NoError(t, err)
	}
	require.NoError(t, mem.MarkTicketServed(ctx, scope.ID(), period, 1, clock.Now()))
	require.NoError(t, mem.MarkTicketServed(ctx, scope.ID(), period, 2, clock.Now()))
	require.NoError(t, mem.CancelTicket(ctx, scope.ID(), period, 5))

	require.NoError(t, mem.WriteMetrics(ctx, scope, period, &models.MetricsState{
		ScopeID:           scope.ID(),
		Period:            period,
		NowServingToken:   2,
		AvgServiceSeconds: 42.5,
	}))

	daily, err := stats.Daily(ctx, scope)
	require.NoError(t, err)

	assert.Equal(t, scope.ID(), daily.ScopeID)
	assert.Equal(t, period, daily.Period)
	assert.Equal(t, 5, daily.Issued)
	assert.Equal(t, 2, daily.Served)
	assert.Equal(t, 1, daily.Cancelled)
	assert.Equal(t, 2, daily.QueueDepth)
	assert.Equal(t, "20.00", daily.CancellationRate)
	assert.Equal(t, 42.5, daily.AvgServiceSeconds)
}

func TestStatsDailyEmptyDay(t *testing.T) {
	ctx := context.Background()
	stats := NewStats(store.NewMemory(), clockz.NewFakeClock(), time.UTC)

	scope, err := models.NewServiceScope("clinic_a", "")
	require.NoError(t, err)

	daily, err := stats.Daily(ctx, scope)
	require.NoError(t, err)

	assert.Zero(t, daily.Issued)
	assert.Zero(t, daily.QueueDepth)
	assert.Equal(t, "0.00", daily.CancellationRate)
	assert.Zero(t, daily.AvgServiceSeconds)
}

func TestStatsDailyCancellationRateRounds(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	mem := store.NewMemory()
	stats := NewStats(mem, clock, time.UTC)

	scope, err := models.NewServiceScope("clinic_a", "")
	require.NoError(t, err)
	period := PeriodOf(clock.Now(), time.UTC)

	for n := 1; n <= 3; n++ {
		_, err := mem.InsertTicket(ctx, store.InsertTicketParams{Scope: scope, Period: period, Number: n})
		require.NoError(t, err)
	}
	require.NoError(t, mem.CancelTicket(ctx, scope.ID(), period, 1))

	daily, err := stats.Daily(ctx, scope)
	require.NoError(t, err)

	assert.Equal(t, "33.33", daily.CancellationRate)
}

func TestStatsDailyInvalidScope(t *testing.T) {
	stats := NewStats(store.NewMemory(), clockz.NewFakeClock(), time.UTC)

	_, err := stats.Daily(context.Background(), models.ServiceScope{TenantID: "!"})

	assert.ErrorIs(t, err, status.ErrScopeInvalid)
}

func TestStatsDashboard(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClock()
	mem := store.NewMemory()
	stats := NewStats(mem, clock, time.UTC)
	period := PeriodOf(clock.Now(), time.UTC)

	alpha, err := models.NewServiceScope("alpha", "")
	require.NoError(t, err)
	beta, err := models.NewServiceScope("beta", "")
	require.NoError(t, err)

	now := clock.Now()
	require.NoError(t, mem.WriteMetrics(ctx, alpha, period, &models.MetricsState{
		ScopeID:         alpha.ID(),
		Period:          period,
		NowServingToken: 7,
	}))
	require.NoError(t, mem.WriteMetrics(ctx, beta, period, &models.MetricsState{
		ScopeID:         beta.ID(),
		Period:          period,
		NowServingToken: 2,
		BreakStartedAt:  &now,
	}))

	snaps, err := stats.Dashboard(ctx)
	require.NoError(t, err)

	require.Len(t, snaps, 2)
	assert.Equal(t, "alpha", snaps[0].ScopeID)
	assert.Equal(t, 7, snaps[0].NowServingToken)
	assert.False(t, snaps[0].OnBreak)
	assert.Equal(t, "beta", snaps[1].ScopeID)
	assert.True(t, snaps[1].OnBreak)
}
