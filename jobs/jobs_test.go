package jobs

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"realty-messenger/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEvictIdleRateLimits(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	limiter := ratelimit.NewMemory(20, 10*time.Second)
	limiter.SetClock(func() time.Time { return now })

	for i := 1; i <= 3; i++ {
		ok, err := limiter.Allow(ctx, strconv.Itoa(i))
		require.NoError(t, err)
		require.True(t, ok)
	}
	now = now.Add(4 * time.Minute)
	_, err := limiter.Allow(ctx, "1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	EvictIdleRateLimits(limiter, 5*time.Minute, zap.NewNop())()

	assert.Equal(t, 1, limiter.Len())
}

func TestScheduler_ScheduleEviction(t *testing.T) {
	s := NewScheduler(zap.NewNop())

	_, err := s.ScheduleEviction(ratelimit.NewMemory(20, 10*time.Second), time.Minute)
	require.NoError(t, err)
	require.Len(t, s.Entries(), 1)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)

	next := s.Entries()[0].Schedule.Next(time.Unix(0, 0))
	assert.Equal(t, time.Minute, next.Sub(time.Unix(0, 0)))
}

type policyLoader struct {
	calls int
	err   error
}

func (p *policyLoader) LoadPolicy() error {
	p.calls++
	return p.err
}

func TestReloadPolicy(t *testing.T) {
	loader := &policyLoader{}
	reload := ReloadPolicy(loader, zap.NewNop())

	reload()
	loader.err = errors.New("db down")
	assert.NotPanics(t, reload)
	assert.Equal(t, 2, loader.calls)

	s := NewScheduler(zap.NewNop())
	_, err := s.SchedulePolicyReload(loader)
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 1)
}
