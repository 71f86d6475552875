package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numberport/golang_services/internal/core_porting/domain"
)

func newTestCache(t *testing.T) (*RulesCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRulesCache(client, time.Minute), mr
}

func TestRulesCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	got, err := cache.Get(ctx, "kerala")
	require.NoError(t, err)
	assert.Nil(t, got)

	rules := &domain.PortingRules{
		CircleKey:           "kerala",
		WorkingDaysRequired: 3,
		Holidays:            []domain.Holiday{{Date: time.Date(2024, 8, 15, 0, 0, 0, 0, time.UTC), Label: "Independence Day"}},
		WeeklyOffDays:       []time.Weekday{time.Sunday},
		Active:              true,
	}
	require.NoError(t, cache.Set(ctx, rules))
	assert.True(t, mr.Exists("porting_rules:kerala"))

	got, err = cache.Get(ctx, "kerala")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 3, got.WorkingDaysRequired)
	assert.Equal(t, []time.Weekday{time.Sunday}, got.WeeklyOffDays)
	assert.Len(t, got.Holidays, 1)
}

func TestRulesCache_ExpiresAndInvalidates(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)

	require.NoError(t, cache.Set(ctx, &domain.PortingRules{CircleKey: "delhi", Active: true}))
	mr.FastForward(2 * time.Minute)
	got, err := cache.Get(ctx, "delhi")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.Set(ctx, &domain.PortingRules{CircleKey: "delhi", Active: true}))
	require.NoError(t, cache.Invalidate(ctx, "delhi"))
	assert.False(t, mr.Exists("porting_rules:delhi"))
}

func TestRulesCache_UnavailableServer(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	_, err := cache.Get(context.Background(), "delhi")
	assert.Error(t, err)
}
