package slackapi

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/zeebeeCoder/slack-intel/pkg/apierr"
	"github.com/zeebeeCoder/slack-intel/pkg/models"
)

// Rate-limit defaults sized to the platform's per-method budget.
const (
	DefaultRate        = 20 // tokens per second
	DefaultBurst       = 50
	DefaultConcurrency = 10
)

// RateLimited decorates an API with a shared token bucket and a bounded
// in-flight request pool. The bucket smooths average rate; the pool caps
// peak concurrency. Both are shared across all methods.
type RateLimited struct {
	api     API
	limiter *rate.Limiter
	sem     *semaphore.Weighted
}

// RateLimitOption adjusts the limiter configuration.
type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	rate        rate.Limit
	burst       int
	concurrency int64
}

// WithRate overrides the refill rate and burst size.
func WithRate(r float64, burst int) RateLimitOption {
	return func(c *rateLimitConfig) {
		c.rate = rate.Limit(r)
		c.burst = burst
	}
}

// WithConcurrency overrides the in-flight request cap.
func WithConcurrency(n int) RateLimitOption {
	return func(c *rateLimitConfig) { c.concurrency = int64(n) }
}

// NewRateLimited wraps api with the default 20 rps / burst 50 bucket and a
// 10-request pool.
func NewRateLimited(api API, opts ...RateLimitOption) *RateLimited {
	cfg := rateLimitConfig{
		rate:        DefaultRate,
		burst:       DefaultBurst,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &RateLimited{
		api:     api,
		limiter: rate.NewLimiter(cfg.rate, cfg.burst),
		sem:     semaphore.NewWeighted(cfg.concurrency),
	}
}

// acquire takes one pool slot and one bucket token, honoring cancellation
// at both suspension points. Callers must release() on success.
func (c *RateLimited) acquire(ctx context.Context, op string) error {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return apierr.New(apierr.KindCancelled, op, "", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		c.sem.Release(1)
		return apierr.New(apierr.KindCancelled, op, "", err)
	}
	return nil
}

func (c *RateLimited) release() { c.sem.Release(1) }

// History implements API.
func (c *RateLimited) History(ctx context.Context, channelID string, params HistoryParams) (*Page, error) {
	if err := c.acquire(ctx, "conversations.history"); err != nil {
		return nil, err
	}
	defer c.release()
	return c.api.History(ctx, channelID, params)
}

// Replies implements API.
func (c *RateLimited) Replies(ctx context.Context, channelID, threadTS, cursor string) (*Page, error) {
	if err := c.acquire(ctx, "conversations.replies"); err != nil {
		return nil, err
	}
	defer c.release()
	return c.api.Replies(ctx, channelID, threadTS, cursor)
}

// User implements API.
func (c *RateLimited) User(ctx context.Context, userID string) (*models.User, error) {
	if err := c.acquire(ctx, "users.info"); err != nil {
		return nil, err
	}
	defer c.release()
	return c.api.User(ctx, userID)
}
