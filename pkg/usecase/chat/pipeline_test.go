package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/catalogue"
	"github.com/m-mizutani/cryptochat/pkg/memory"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/repository"
	"github.com/m-mizutani/cryptochat/pkg/usecase/chat"
	"github.com/m-mizutani/cryptochat/pkg/usecase/market"
	"github.com/m-mizutani/gt"
)

type fixture struct {
	llm      *mockLLM
	fetcher  *mockFetcher
	store    *memory.Store
	pipeline *chat.Pipeline
	turns    []*chat.Turn
}

func newFixture(t *testing.T, llm *mockLLM, fetcher chat.CoinFetcher, opts ...chat.Option) *fixture {
	t.Helper()
	ctx := context.Background()

	cat, err := catalogue.Default()
	gt.NoError(t, err)

	sess := model.NewSession(t.TempDir(), time.Now())
	store, err := memory.New(ctx, sess, keywordEmbedder{}, repository.NewMemory())
	gt.NoError(t, err)

	f := &fixture{llm: llm, store: store}
	if mf, ok := fetcher.(*mockFetcher); ok {
		f.fetcher = mf
	}

	opts = append(opts, chat.WithTurnHook(func(ctx context.Context, turn *chat.Turn) {
		f.turns = append(f.turns, turn)
	}))
	f.pipeline, err = chat.New(llm, cat, store, fetcher, opts...)
	gt.NoError(t, err)
	return f
}

func TestAskNoCoinMentioned(t *testing.T) {
	llm := &mockLLM{extractOutput: `{"currencies_mentioned": []}`}
	f := newFixture(t, llm, &mockFetcher{})

	answer, err := f.pipeline.Ask(context.Background(), "What's the weather today?")
	gt.NoError(t, err)
	gt.Equal(t, answer, "generated answer")
	gt.A(t, f.fetcher.calls).Length(0)
	gt.Equal(t, f.store.Len(), 1)

	reqs := llm.responseRequests()
	gt.A(t, reqs).Length(1)
	gt.Equal(t, reqs[0].Messages[0].Content, "Use the following data to answer the query:")
	gt.Equal(t, reqs[0].Messages[1].Content, "Coin Data: {}")
	gt.Equal(t, reqs[0].Messages[2].Content, "Query: What's the weather today?")
	gt.Equal(t, reqs[0].MaxTokens, 1024)
}

func TestAskSingleCoin(t *testing.T) {
	llm := &mockLLM{
		extractOutput: `{"currencies_mentioned": ["bitcoin"]}`,
		respond: func(req *adapter.CompletionRequest) (string, error) {
			return "Bitcoin trades at $50,000.", nil
		},
	}
	fetcher := &mockFetcher{data: map[model.CoinID]model.CoinData{
		"bitcoin": {"priceUsd": "50000"},
	}}
	f := newFixture(t, llm, fetcher)

	answer, err := f.pipeline.Ask(context.Background(), "price of bitcoin")
	gt.NoError(t, err)
	gt.Equal(t, answer, "Bitcoin trades at $50,000.")
	gt.A(t, fetcher.calls).Equal([]model.CoinID{"bitcoin"})
	gt.Equal(t, f.store.Len(), 1)

	reqs := llm.responseRequests()
	gt.Equal(t, reqs[0].Messages[1].Content, `Coin Data: {"bitcoin":{"priceUsd":"50000"}}`)

	exchanges, err := f.store.Exchanges(context.Background())
	gt.NoError(t, err)
	gt.Equal(t, exchanges[0].Query, "price of bitcoin")
	gt.Equal(t, exchanges[0].Response, "Bitcoin trades at $50,000.")
}

type failingMarket struct {
	calls int
}

func (x *failingMarket) GetAsset(ctx context.Context, id string) (map[string]any, error) {
	x.calls++
	return nil, errors.New("503 service unavailable")
}

func TestAskFetchExhausted(t *testing.T) {
	llm := &mockLLM{extractOutput: `{"currencies_mentioned": ["dogecoin"]}`}
	m := &failingMarket{}
	fetcher := market.New(m, market.WithRetryPolicy(market.RetryPolicy{
		MaxAttempts: 3,
		Timeout:     time.Second,
		Delay:       time.Millisecond,
	}))
	f := newFixture(t, llm, fetcher)

	answer, err := f.pipeline.Ask(context.Background(), "price of dogecoin")
	gt.NoError(t, err)
	gt.Equal(t, answer, "generated answer")
	gt.Equal(t, m.calls, 3)
	gt.Equal(t, llm.responseRequests()[0].Messages[1].Content, "Coin Data: {}")
	gt.Equal(t, f.store.Len(), 1)
}

func TestAskMalformedExtraction(t *testing.T) {
	llm := &mockLLM{extractOutput: "Sure! Bitcoin and Ethereum are mentioned."}
	f := newFixture(t, llm, &mockFetcher{})

	answer, err := f.pipeline.Ask(context.Background(), "compare bitcoin and ethereum")
	gt.NoError(t, err)
	gt.Equal(t, answer, "generated answer")
	gt.A(t, f.fetcher.calls).Length(0)
	gt.A(t, f.turns).Length(1)
	gt.A(t, f.turns[0].Coins).Length(0)
}

func TestAskFollowUpUsesContext(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{extractOutput: `{"currencies_mentioned": ["bitcoin"]}`}
	fetcher := &mockFetcher{data: map[model.CoinID]model.CoinData{"bitcoin": {"rank": "1"}}}
	f := newFixture(t, llm, fetcher)

	_, err := f.pipeline.Ask(ctx, "price of bitcoin")
	gt.NoError(t, err)
	_, err = f.pipeline.Ask(ctx, "and what is its price now?")
	gt.NoError(t, err)

	reqs := llm.extractRequests()
	gt.A(t, reqs).Length(2)
	gt.Equal(t, reqs[0].Messages[1].Content, "This is the context: \nQuery: price of bitcoin")
	gt.Equal(t, reqs[1].Messages[1].Content,
		"This is the context: Query: price of bitcoin Response: generated answer\n\nQuery: and what is its price now?")

	gt.A(t, f.turns).Length(2)
	gt.A(t, f.turns[1].Context).Length(1)
	gt.Equal(t, f.store.Len(), 2)
}

func TestAskEmptyInput(t *testing.T) {
	llm := &mockLLM{}
	f := newFixture(t, llm, &mockFetcher{})

	for _, input := range []string{"", "   ", "\n\t"} {
		answer, err := f.pipeline.Ask(context.Background(), input)
		gt.True(t, errors.Is(err, chat.ErrEmptyQuery))
		gt.Equal(t, answer, "")
	}
	gt.A(t, llm.requests).Length(0)
	gt.Equal(t, f.store.Len(), 0)
	gt.A(t, f.turns).Length(0)
}

func TestAskResponseFailure(t *testing.T) {
	llm := &mockLLM{
		extractOutput: `{"currencies_mentioned": []}`,
		respond: func(req *adapter.CompletionRequest) (string, error) {
			return "", errors.New("model overloaded")
		},
	}
	f := newFixture(t, llm, &mockFetcher{})

	answer, err := f.pipeline.Ask(context.Background(), "hello")
	gt.NoError(t, err)
	gt.Equal(t, answer, chat.Apology)
	gt.Equal(t, f.store.Len(), 0)
	gt.A(t, f.turns).Length(1)
	gt.Error(t, f.turns[0].Err)
}

type brokenMemory struct{}

func (brokenMemory) Retrieve(ctx context.Context, query string, topK int) []*model.Exchange {
	return nil
}

func (brokenMemory) Append(ctx context.Context, query, response string) (*model.Exchange, error) {
	return nil, errors.New("disk full")
}

type panickingFetcher struct{}

func (panickingFetcher) Fetch(ctx context.Context, id model.CoinID) (model.CoinData, bool) {
	panic("unexpected nil map")
}

func TestAskPersistFailure(t *testing.T) {
	cat, err := catalogue.Default()
	gt.NoError(t, err)
	llm := &mockLLM{extractOutput: `{"currencies_mentioned": []}`}

	p, err := chat.New(llm, cat, brokenMemory{}, &mockFetcher{})
	gt.NoError(t, err)

	answer, err := p.Ask(context.Background(), "hello")
	gt.NoError(t, err)
	gt.Equal(t, answer, chat.Apology)
}

func TestAskRecoversPanic(t *testing.T) {
	llm := &mockLLM{extractOutput: `{"currencies_mentioned": ["bitcoin"]}`}
	f := newFixture(t, llm, panickingFetcher{})

	answer, err := f.pipeline.Ask(context.Background(), "price of bitcoin")
	gt.NoError(t, err)
	gt.Equal(t, answer, chat.Apology)
	gt.Equal(t, f.store.Len(), 0)
	gt.A(t, f.turns).Length(1)
	gt.Equal(t, f.turns[0].Answer, chat.Apology)
}

func TestAskTranslation(t *testing.T) {
	t.Run("translated text flows through the turn", func(t *testing.T) {
		llm := &mockLLM{extractOutput: `{"currencies_mentioned": []}`}
		tr := &mockTranslator{output: "price of bitcoin"}
		f := newFixture(t, llm, &mockFetcher{}, chat.WithTranslator(tr, "en"))

		_, err := f.pipeline.Ask(context.Background(), "prix du bitcoin")
		gt.NoError(t, err)
		gt.Equal(t, tr.calls, 1)

		exchanges, err := f.store.Exchanges(context.Background())
		gt.NoError(t, err)
		gt.Equal(t, exchanges[0].Query, "price of bitcoin")
	})

	t.Run("translation failure falls back to original", func(t *testing.T) {
		llm := &mockLLM{extractOutput: `{"currencies_mentioned": []}`}
		tr := &mockTranslator{err: errors.New("quota exceeded")}
		f := newFixture(t, llm, &mockFetcher{}, chat.WithTranslator(tr, "en"))

		_, err := f.pipeline.Ask(context.Background(), "  prix du bitcoin ")
		gt.NoError(t, err)

		exchanges, err := f.store.Exchanges(context.Background())
		gt.NoError(t, err)
		gt.Equal(t, exchanges[0].Query, "prix du bitcoin")
	})
}

func TestLogGrowsOnePerTurn(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{extractOutput: `{"currencies_mentioned": ["ethereum"]}`}
	fetcher := &mockFetcher{data: map[model.CoinID]model.CoinData{"ethereum": {"rank": "2"}}}
	f := newFixture(t, llm, fetcher)

	for _, q := range []string{"ethereum price", "", "and volume?", "weather", "   "} {
		_, _ = f.pipeline.Ask(ctx, q)
	}
	gt.Equal(t, f.store.Len(), 3)

	exchanges, err := f.store.Exchanges(ctx)
	gt.NoError(t, err)
	gt.A(t, exchanges).Length(3)
}

func TestRenderContext(t *testing.T) {
	got := chat.RenderContextForTest([]*model.Exchange{
		{Seq: 1, Query: "q1", Response: "r1"},
		{Seq: 2, Query: "q2", Response: "r2"},
	}, "q3")
	gt.Equal(t, got, "This is the context: Query: q1 Response: r1\nQuery: q2 Response: r2\n\nQuery: q3")
}
