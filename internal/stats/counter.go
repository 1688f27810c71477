// Package stats maintains rolling rule-frequency counters in Redis.
//
// Each rule gets a counter key with a rolling TTL; a sorted set mirrors
// the counters so top-N queries are a single ZREVRANGE. Members whose
// counters have expired are pruned by Cleanup.
package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/audit-engine/go-core/internal/events"
)

const (
	ruleCountPrefix = "rule:count:"
	topRulesKey     = "stats:top_rules"

	// DefaultWindow is the rolling counter TTL.
	DefaultWindow = 15 * time.Minute
)

// Counter implements events.RuleCounter on Redis.
type Counter struct {
	client redis.UniversalClient
	window time.Duration
}

// NewCounter creates a counter over the given client. window <= 0 uses
// DefaultWindow.
func NewCounter(client redis.UniversalClient, window time.Duration) *Counter {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Counter{client: client, window: window}
}

// IncrementRule bumps the rule's rolling counter and refreshes its TTL,
// then mirrors the new count into the top-rules sorted set.
func (c *Counter) IncrementRule(ctx context.Context, ruleID, ruleName string) error {
	key := ruleCountPrefix + ruleID

	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, c.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("increment rule counter: %w", err)
	}

	member := ruleID + "|" + ruleName
	if err := c.client.ZAdd(ctx, topRulesKey, redis.Z{
		Score:  float64(incr.Val()),
		Member: member,
	}).Err(); err != nil {
		return fmt.Errorf("update top rules: %w", err)
	}
	return nil
}

// TopRules returns the highest-volume rules in the current window.
func (c *Counter) TopRules(ctx context.Context, limit int) ([]events.RuleCount, error) {
	if limit <= 0 {
		limit = 5
	}

	members, err := c.client.ZRevRangeWithScores(ctx, topRulesKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read top rules: %w", err)
	}

	now := time.Now()
	out := make([]events.RuleCount, 0, len(members))
	for _, z := range members {
		member, _ := z.Member.(string)
		ruleID, ruleName, _ := strings.Cut(member, "|")
		out = append(out, events.RuleCount{
			RuleID:   ruleID,
			RuleName: ruleName,
			Count:    int64(z.Score),
			LastSeen: now,
		})
	}
	return out, nil
}

// Cleanup removes sorted-set members whose rolling counters have expired.
// Intended to run periodically from the server.
func (c *Counter) Cleanup(ctx context.Context) error {
	members, err := c.client.ZRange(ctx, topRulesKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list top rules: %w", err)
	}

	for _, member := range members {
		ruleID, _, _ := strings.Cut(member, "|")
		exists, err := c.client.Exists(ctx, ruleCountPrefix+ruleID).Result()
		if err != nil {
			return fmt.Errorf("check rule counter: %w", err)
		}
		if exists == 0 {
			if err := c.client.ZRem(ctx, topRulesKey, member).Err(); err != nil {
				return fmt.Errorf("prune top rules: %w", err)
			}
		}
	}
	return nil
}

// RunCleanup prunes expired members on the given interval until ctx is
// canceled.
func (c *Counter) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Cleanup(ctx)
		}
	}
}
