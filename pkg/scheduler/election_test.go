package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	return log
}

func TestElectorSingleInstanceBecomesLeader(t *testing.T) {
	mr, client := newTestRedis(t)

	e := NewLeaderElector(quietLogger(), client, "viewgraph:scheduler:leader", WithLease(time.Second, 20*time.Millisecond))
	require.NoError(t, e.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, e.WaitForLeadership(ctx))
	assert.True(t, e.IsLeader())
	assert.True(t, mr.Exists("viewgraph:scheduler:leader"))

	require.NoError(t, e.Stop())
	assert.False(t, e.IsLeader())
	assert.False(t, mr.Exists("viewgraph:scheduler:leader"), "lock released on stop")

	require.NoError(t, e.Stop(), "stop is idempotent")
}

func TestElectorOnlyOneLeader(t *testing.T) {
	_, client := newTestRedis(t)

	opt := WithLease(time.Second, 20*time.Millisecond)
	first := NewLeaderElector(quietLogger(), client, "lock", opt)
	second := NewLeaderElector(quietLogger(), client, "lock", opt)

	require.NoError(t, first.Start(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, first.WaitForLeadership(ctx))

	require.NoError(t, second.Start(context.Background()))
	t.Cleanup(func() { _ = second.Stop() })

	time.Sleep(100 * time.Millisecond)
	assert.True(t, first.IsLeader())
	assert.False(t, second.IsLeader())

	require.NoError(t, first.Stop())

	assert.Eventually(t, second.IsLeader, 2*time.Second, 20*time.Millisecond, "second takes over after release")
}

func TestElectorWaitCanceled(t *testing.T) {
	_, client := newTestRedis(t)
	require.NoError(t, client.Set(context.Background(), "lock", "someone-else", time.Minute).Err())

	e := NewLeaderElector(quietLogger(), client, "lock", WithLease(time.Second, 20*time.Millisecond))
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(func() { _ = e.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := e.WaitForLeadership(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, e.IsLeader())
}

func TestElectorWaitAfterStop(t *testing.T) {
	_, client := newTestRedis(t)
	require.NoError(t, client.Set(context.Background(), "lock", "someone-else", time.Minute).Err())

	e := NewLeaderElector(quietLogger(), client, "lock", WithLease(time.Second, 20*time.Millisecond))
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Stop())

	assert.ErrorIs(t, e.WaitForLeadership(context.Background()), ErrElectorStopped)
}
