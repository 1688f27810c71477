package stats

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCounter(t *testing.T) (*Counter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	// miniredis does not implement the CLIENT SETINFO handshake go-redis
	// sends on connect.
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), DisableIndentity: true})
	t.Cleanup(func() { client.Close() })
	return NewCounter(client, DefaultWindow), mr
}

func TestIncrementAndTopRules(t *testing.T) {
	c, _ := newCounter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.IncrementRule(ctx, "CADE-00124", "Brute Force Login"))
	}
	require.NoError(t, c.IncrementRule(ctx, "CADE-00123", "SQL Injection Attempt"))

	top, err := c.TopRules(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)

	assert.Equal(t, "CADE-00124", top[0].RuleID)
	assert.Equal(t, "Brute Force Login", top[0].RuleName)
	assert.Equal(t, int64(3), top[0].Count)
	assert.Equal(t, "CADE-00123", top[1].RuleID)
	assert.Equal(t, int64(1), top[1].Count)
}

func TestTopRulesHonorsLimit(t *testing.T) {
	c, _ := newCounter(t)
	ctx := context.Background()

	require.NoError(t, c.IncrementRule(ctx, "a", "A"))
	require.NoError(t, c.IncrementRule(ctx, "b", "B"))
	require.NoError(t, c.IncrementRule(ctx, "c", "C"))

	top, err := c.TopRules(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func TestIncrementSetsRollingTTL(t *testing.T) {
	c, mr := newCounter(t)

	require.NoError(t, c.IncrementRule(context.Background(), "CADE-00124", "Brute Force Login"))

	ttl := mr.TTL(ruleCountPrefix + "CADE-00124")
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, DefaultWindow)
}

// Cleanup prunes sorted-set members whose rolling counters expired, so a
// rule quiet for a full window drops out of the top list.
func TestCleanupPrunesExpiredCounters(t *testing.T) {
	c, mr := newCounter(t)
	ctx := context.Background()

	require.NoError(t, c.IncrementRule(ctx, "stale", "Stale Rule"))
	mr.FastForward(DefaultWindow + time.Second)
	require.NoError(t, c.IncrementRule(ctx, "fresh", "Fresh Rule"))

	require.NoError(t, c.Cleanup(ctx))

	top, err := c.TopRules(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "fresh", top[0].RuleID)
}

func TestTopRulesError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectZRevRangeWithScores(topRulesKey, 0, 4).SetErr(redis.ErrClosed)

	c := NewCounter(client, DefaultWindow)
	_, err := c.TopRules(context.Background(), 5)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
