package market

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Fetcher retrieves market data for one coin at a time with bounded retry
type Fetcher struct {
	market adapter.MarketData
	policy RetryPolicy
}

type Option func(*Fetcher)

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(f *Fetcher) {
		f.policy = policy
	}
}

func New(market adapter.MarketData, opts ...Option) *Fetcher {
	f := &Fetcher{
		market: market,
		policy: DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the coin data, or false when every attempt failed or the
// endpoint had no data for the coin. It never returns an error.
func (x *Fetcher) Fetch(ctx context.Context, id model.CoinID) (model.CoinData, bool) {
	logger := logging.From(ctx).With("coin", id)

	attempt := 0
	operation := func() (map[string]any, error) {
		attempt++
		logger.Debug("fetching coin data", "attempt", attempt)

		actx := ctx
		if x.policy.Timeout > 0 {
			var cancel context.CancelFunc
			actx, cancel = context.WithTimeout(ctx, x.policy.Timeout)
			defer cancel()
		}

		data, err := x.market.GetAsset(actx, string(id))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get asset", goerr.V("coin", id), goerr.V("attempt", attempt))
		}
		return data, nil
	}

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(x.policy.backOff()),
		backoff.WithMaxTries(uint(x.policy.attempts())),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("coin data fetch failed, retrying", "error", err, "next", next)
		}),
	)
	if err != nil {
		logger.Error("gave up fetching coin data", "error", err, "attempts", attempt)
		return nil, false
	}

	if len(data) == 0 {
		logger.Warn("no data for coin")
		return nil, false
	}

	return model.CoinData(data), true
}
