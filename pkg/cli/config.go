package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/catalogue"
	"github.com/m-mizutani/cryptochat/pkg/memory"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/repository"
	"github.com/m-mizutani/cryptochat/pkg/usecase/chat"
	"github.com/m-mizutani/cryptochat/pkg/usecase/market"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	providerOpenAI = "openai"
	providerGemini = "gemini"

	indexSQLite    = "sqlite"
	indexFirestore = "firestore"
	indexMemory    = "memory"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string
	logOutput string

	// Session storage
	dataDir           string
	indexBackend      string
	firestoreProject  string
	firestoreDatabase string

	// Language model
	llmProvider          string
	embeddingProvider    string
	openaiAPIKey         string
	openaiBaseURL        string
	openaiChatModel      string
	openaiEmbeddingModel string
	geminiProject        string
	geminiLocation       string
	geminiModel          string
	geminiEmbeddingModel string

	// Pipeline
	cataloguePath  string
	contextSize    int64
	coincapBaseURL string
	coincapAPIKey  string
	fetchAttempts  int64
	fetchTimeout   time.Duration
	fetchDelay     time.Duration
	lectoAPIKey    string
	lectoURL       string
	language       string
}

// globalFlags returns flags shared by every command
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("CRYPTOCHAT_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("CRYPTOCHAT_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "log-output",
			Usage:       "Log output, '-' or 'stderr' for standard error, 'stdout', or a file path",
			Value:       "stderr",
			Sources:     cli.EnvVars("CRYPTOCHAT_LOG_OUTPUT"),
			Destination: &cfg.logOutput,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Aliases:     []string{"d"},
			Usage:       "Directory that holds one sub directory per session",
			Value:       "./sessions",
			Sources:     cli.EnvVars("CRYPTOCHAT_DATA_DIR"),
			Destination: &cfg.dataDir,
		},
	}
}

// llmFlags returns flags for language model and embedding configuration
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Language model provider (openai, gemini)",
			Value:       providerOpenAI,
			Sources:     cli.EnvVars("CRYPTOCHAT_LLM_PROVIDER"),
			Destination: &cfg.llmProvider,
		},
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (openai, gemini). Same as --llm-provider if empty",
			Sources:     cli.EnvVars("CRYPTOCHAT_EMBEDDING_PROVIDER"),
			Destination: &cfg.embeddingProvider,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "API key of the OpenAI compatible endpoint",
			Sources:     cli.EnvVars("TOGETHER_API_KEY", "OPENAI_API_KEY"),
			Destination: &cfg.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-base-url",
			Usage:       "Base URL of the OpenAI compatible endpoint",
			Value:       adapter.DefaultOpenAIBaseURL,
			Sources:     cli.EnvVars("CRYPTOCHAT_OPENAI_BASE_URL"),
			Destination: &cfg.openaiBaseURL,
		},
		&cli.StringFlag{
			Name:        "openai-model",
			Usage:       "Chat completion model",
			Value:       adapter.DefaultOpenAIChatModel,
			Sources:     cli.EnvVars("CRYPTOCHAT_OPENAI_MODEL"),
			Destination: &cfg.openaiChatModel,
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Usage:       "Embedding model",
			Value:       adapter.DefaultOpenAIEmbeddingModel,
			Sources:     cli.EnvVars("CRYPTOCHAT_OPENAI_EMBEDDING_MODEL"),
			Destination: &cfg.openaiEmbeddingModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini generative model",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.StringFlag{
			Name:        "gemini-embedding-model",
			Usage:       "Gemini embedding model",
			Value:       "gemini-embedding-001",
			Sources:     cli.EnvVars("GEMINI_EMBEDDING_MODEL"),
			Destination: &cfg.geminiEmbeddingModel,
		},
	}
}

// pipelineFlags returns flags for the query pipeline and its collaborators
func pipelineFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "catalogue",
			Usage:       "YAML file of known coin identifiers. The built-in list is used if empty",
			Sources:     cli.EnvVars("CRYPTOCHAT_CATALOGUE"),
			Destination: &cfg.cataloguePath,
		},
		&cli.IntFlag{
			Name:        "context-size",
			Usage:       "Number of similar past exchanges given to the model",
			Value:       chat.DefaultContextSize,
			Sources:     cli.EnvVars("CRYPTOCHAT_CONTEXT_SIZE"),
			Destination: &cfg.contextSize,
		},
		&cli.StringFlag{
			Name:        "index",
			Usage:       "Similarity index backend (sqlite, firestore, memory)",
			Value:       indexSQLite,
			Sources:     cli.EnvVars("CRYPTOCHAT_INDEX"),
			Destination: &cfg.indexBackend,
		},
		&cli.StringFlag{
			Name:        "firestore-project",
			Usage:       "Google Cloud project ID of the Firestore index",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.firestoreProject,
		},
		&cli.StringFlag{
			Name:        "firestore-database",
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.firestoreDatabase,
		},
		&cli.StringFlag{
			Name:        "coincap-base-url",
			Usage:       "CoinCap assets endpoint",
			Value:       adapter.DefaultCoinCapBaseURL,
			Sources:     cli.EnvVars("COINCAP_BASE_URL"),
			Destination: &cfg.coincapBaseURL,
		},
		&cli.StringFlag{
			Name:        "coincap-api-key",
			Usage:       "CoinCap API key",
			Sources:     cli.EnvVars("COINCAP_API_KEY"),
			Destination: &cfg.coincapAPIKey,
		},
		&cli.IntFlag{
			Name:        "fetch-attempts",
			Usage:       "Attempts per coin data fetch",
			Value:       market.DefaultMaxAttempts,
			Sources:     cli.EnvVars("CRYPTOCHAT_FETCH_ATTEMPTS"),
			Destination: &cfg.fetchAttempts,
		},
		&cli.DurationFlag{
			Name:        "fetch-timeout",
			Usage:       "Timeout of one fetch attempt",
			Value:       market.DefaultTimeout,
			Sources:     cli.EnvVars("CRYPTOCHAT_FETCH_TIMEOUT"),
			Destination: &cfg.fetchTimeout,
		},
		&cli.DurationFlag{
			Name:        "fetch-delay",
			Usage:       "Delay between fetch attempts",
			Value:       market.DefaultDelay,
			Sources:     cli.EnvVars("CRYPTOCHAT_FETCH_DELAY"),
			Destination: &cfg.fetchDelay,
		},
		&cli.StringFlag{
			Name:        "lecto-api-key",
			Usage:       "Lecto API key. Translation is disabled if empty",
			Sources:     cli.EnvVars("LECTO_API_KEY"),
			Destination: &cfg.lectoAPIKey,
		},
		&cli.StringFlag{
			Name:        "lecto-url",
			Usage:       "Lecto translate endpoint",
			Value:       adapter.DefaultLectoURL,
			Sources:     cli.EnvVars("LECTO_URL"),
			Destination: &cfg.lectoURL,
		},
		&cli.StringFlag{
			Name:        "language",
			Usage:       "Working language of the pipeline",
			Value:       chat.DefaultLanguage,
			Sources:     cli.EnvVars("CRYPTOCHAT_LANGUAGE"),
			Destination: &cfg.language,
		},
	}
}

// setupLogger builds the logger from flags and attaches it to ctx
func (cfg *config) setupLogger(ctx context.Context) (context.Context, func(), error) {
	var (
		w       io.Writer = os.Stderr
		closeFn           = func() {}
	)

	switch cfg.logOutput {
	case "", "-", "stderr":
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.logOutput, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return ctx, closeFn, goerr.Wrap(err, "failed to open log output", goerr.V("path", cfg.logOutput))
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	logger := logging.NewWithFormat(cfg.logLevel, logging.Format(cfg.logFormat), w)
	logging.SetDefault(logger)
	return logging.With(ctx, logger), closeFn, nil
}

// newCatalogue loads the coin catalogue
func (cfg *config) newCatalogue() (*catalogue.Catalogue, error) {
	cat, err := catalogue.Load(cfg.cataloguePath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load catalogue")
	}
	return cat, nil
}

// newOpenAI creates the OpenAI compatible client
func (cfg *config) newOpenAI() (*adapter.OpenAIClient, error) {
	if cfg.openaiAPIKey == "" {
		return nil, goerr.New("openai-api-key is required")
	}
	return adapter.NewOpenAI(cfg.openaiAPIKey,
		adapter.WithOpenAIBaseURL(cfg.openaiBaseURL),
		adapter.WithOpenAIChatModel(cfg.openaiChatModel),
		adapter.WithOpenAIEmbeddingModel(cfg.openaiEmbeddingModel),
	)
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (*adapter.GeminiLLM, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	client, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithGenerativeModel(cfg.geminiModel),
		adapter.WithEmbeddingModel(cfg.geminiEmbeddingModel),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return adapter.NewGeminiLLM(client), nil
}

// provider is what both backends implement
type provider interface {
	adapter.LLM
	adapter.Embedder
}

func (cfg *config) newProvider(ctx context.Context, name string) (provider, error) {
	switch name {
	case providerOpenAI:
		return cfg.newOpenAI()
	case providerGemini:
		return cfg.newGemini(ctx)
	default:
		return nil, goerr.New("unsupported provider",
			goerr.V("provider", name),
			goerr.V("supported", []string{providerOpenAI, providerGemini}))
	}
}

// newModels returns the completion model and the embedding model
func (cfg *config) newModels(ctx context.Context) (adapter.LLM, adapter.Embedder, error) {
	llm, err := cfg.newProvider(ctx, cfg.llmProvider)
	if err != nil {
		return nil, nil, err
	}

	if cfg.embeddingProvider == "" || cfg.embeddingProvider == cfg.llmProvider {
		return llm, llm, nil
	}

	embedder, err := cfg.newProvider(ctx, cfg.embeddingProvider)
	if err != nil {
		return nil, nil, err
	}
	return llm, embedder, nil
}

// newIndex opens the similarity index of a session
func (cfg *config) newIndex(ctx context.Context, sess *model.Session) (repository.Index, error) {
	switch cfg.indexBackend {
	case indexSQLite:
		return repository.NewSQLite(sess.IndexDir())
	case indexFirestore:
		if cfg.firestoreProject == "" {
			return nil, goerr.New("firestore-project is required for firestore index")
		}
		return repository.NewFirestore(ctx, cfg.firestoreProject, cfg.firestoreDatabase, string(sess.ID))
	case indexMemory:
		return repository.NewMemory(), nil
	default:
		return nil, goerr.New("unsupported index backend",
			goerr.V("index", cfg.indexBackend),
			goerr.V("supported", []string{indexSQLite, indexFirestore, indexMemory}))
	}
}

// newFetcher creates the market data fetcher with the configured retry policy
func (cfg *config) newFetcher() *market.Fetcher {
	opts := []adapter.CoinCapOption{
		adapter.WithCoinCapBaseURL(cfg.coincapBaseURL),
	}
	if cfg.coincapAPIKey != "" {
		opts = append(opts, adapter.WithCoinCapAPIKey(cfg.coincapAPIKey))
	}

	return market.New(adapter.NewCoinCap(opts...), market.WithRetryPolicy(market.RetryPolicy{
		MaxAttempts: int(cfg.fetchAttempts),
		Timeout:     cfg.fetchTimeout,
		Delay:       cfg.fetchDelay,
	}))
}

// newTranslator returns nil when translation is not configured
func (cfg *config) newTranslator() adapter.Translator {
	if cfg.lectoAPIKey == "" {
		return nil
	}
	return adapter.NewLecto(cfg.lectoAPIKey, adapter.WithLectoURL(cfg.lectoURL))
}

// runtime is everything one session needs
type runtime struct {
	session  *model.Session
	store    *memory.Store
	pipeline *chat.Pipeline
	index    repository.Index
}

func (r *runtime) Close() error {
	return r.index.Close()
}

// newRuntime creates a new session and wires the query pipeline for it
func (cfg *config) newRuntime(ctx context.Context, opts ...chat.Option) (context.Context, *runtime, error) {
	cat, err := cfg.newCatalogue()
	if err != nil {
		return ctx, nil, err
	}

	llm, embedder, err := cfg.newModels(ctx)
	if err != nil {
		return ctx, nil, err
	}

	sess := model.NewSession(cfg.dataDir, time.Now())
	ctx = logging.WithAttrs(ctx, slog.String("session_id", string(sess.ID)))

	index, err := cfg.newIndex(ctx, sess)
	if err != nil {
		return ctx, nil, err
	}

	store, err := memory.New(ctx, sess, embedder, index)
	if err != nil {
		_ = index.Close()
		return ctx, nil, err
	}

	pipelineOpts := []chat.Option{chat.WithContextSize(int(cfg.contextSize))}
	if translator := cfg.newTranslator(); translator != nil {
		pipelineOpts = append(pipelineOpts, chat.WithTranslator(translator, cfg.language))
	}
	pipelineOpts = append(pipelineOpts, opts...)

	pipeline, err := chat.New(llm, cat, store, cfg.newFetcher(), pipelineOpts...)
	if err != nil {
		_ = index.Close()
		return ctx, nil, err
	}

	logging.From(ctx).Info("session started", "dir", sess.Dir, "index", cfg.indexBackend)

	return ctx, &runtime{
		session:  sess,
		store:    store,
		pipeline: pipeline,
		index:    index,
	}, nil
}
