package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/catalogue"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Apology is returned to the user when a turn cannot be completed
const Apology = "I'm sorry, something went wrong. Please try again."

const DefaultContextSize = 3

var ErrEmptyQuery = goerr.New("invalid input, please enter a valid query")

// Memory is the session memory used by the pipeline
type Memory interface {
	Retrieve(ctx context.Context, query string, topK int) []*model.Exchange
	Append(ctx context.Context, query, response string) (*model.Exchange, error)
}

// CoinFetcher returns market data for one coin, or false when there is none
type CoinFetcher interface {
	Fetch(ctx context.Context, id model.CoinID) (model.CoinData, bool)
}

// Turn describes one completed Ask call
type Turn struct {
	Input      string
	Normalized string
	Context    []*model.Exchange
	Coins      []model.CoinID
	Data       model.CoinDataSet
	Answer     string
	Err        error
	Duration   time.Duration
}

// Pipeline answers one query at a time using the session memory
type Pipeline struct {
	memory      Memory
	extractor   *Extractor
	fetcher     CoinFetcher
	responder   *responder
	normalizer  *normalizer
	contextSize int
	onTurn      func(ctx context.Context, turn *Turn)
}

type Option func(*Pipeline)

// WithTranslator enables input translation into language
func WithTranslator(translator adapter.Translator, language string) Option {
	return func(p *Pipeline) {
		p.normalizer.translator = translator
		if language != "" {
			p.normalizer.language = language
		}
	}
}

func WithContextSize(n int) Option {
	return func(p *Pipeline) {
		p.contextSize = n
	}
}

// WithTurnHook registers a callback invoked after every turn
func WithTurnHook(hook func(ctx context.Context, turn *Turn)) Option {
	return func(p *Pipeline) {
		p.onTurn = hook
	}
}

func New(llm adapter.LLM, cat *catalogue.Catalogue, memory Memory, fetcher CoinFetcher, opts ...Option) (*Pipeline, error) {
	extractor, err := NewExtractor(llm, cat)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		memory:      memory,
		extractor:   extractor,
		fetcher:     fetcher,
		responder:   &responder{llm: llm},
		normalizer:  &normalizer{language: DefaultLanguage},
		contextSize: DefaultContextSize,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Ask runs one turn. The only error it returns is ErrEmptyQuery; every other
// failure is logged and answered with Apology.
func (x *Pipeline) Ask(ctx context.Context, input string) (answer string, err error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrEmptyQuery
	}

	turn := &Turn{Input: input}
	start := time.Now()
	logger := logging.From(ctx)

	defer func() {
		if r := recover(); r != nil {
			turn.Err = goerr.New("panic in query pipeline", goerr.V("panic", fmt.Sprint(r)))
			logger.Error("recovered from panic", "error", turn.Err)
			answer, err = Apology, nil
		}
		turn.Answer = answer
		turn.Duration = time.Since(start)
		if x.onTurn != nil {
			x.onTurn(ctx, turn)
		}
	}()

	turn.Normalized = x.normalizer.Normalize(ctx, input)
	turn.Context = x.memory.Retrieve(ctx, turn.Normalized, x.contextSize)

	combined := renderContext(turn.Context, turn.Normalized)
	turn.Coins = x.extractor.Extract(ctx, combined)
	logger.Debug("resolved coins", "coins", turn.Coins)

	turn.Data = x.fetchAll(ctx, turn.Coins)

	generated, genErr := x.responder.Respond(ctx, turn.Data, turn.Normalized)
	if genErr != nil {
		logger.Error("failed to generate answer", "error", genErr)
		turn.Err = genErr
		return Apology, nil
	}

	if _, appendErr := x.memory.Append(ctx, turn.Normalized, generated); appendErr != nil {
		logger.Error("failed to persist exchange", "error", appendErr)
		turn.Err = appendErr
		return Apology, nil
	}

	return generated, nil
}

func (x *Pipeline) fetchAll(ctx context.Context, ids []model.CoinID) model.CoinDataSet {
	data := make(model.CoinDataSet, len(ids))
	for _, id := range ids {
		d, ok := x.fetcher.Fetch(ctx, id)
		if !ok {
			logging.From(ctx).Warn("no data found for coin", "coin", id)
			continue
		}
		data[id] = d
	}
	return data
}

func renderContext(records []*model.Exchange, query string) string {
	var b strings.Builder
	for _, r := range records {
		b.WriteString("Query: " + r.Query + " Response: " + r.Response + "\n")
	}
	return "This is the context: " + b.String() + "\nQuery: " + query
}

// RenderContextForTest exposes renderContext for testing
func RenderContextForTest(records []*model.Exchange, query string) string {
	return renderContext(records, query)
}
