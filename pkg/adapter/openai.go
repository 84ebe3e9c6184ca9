package adapter

import (
	"context"
	"math"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/sashabaranov/go-openai"
)

const (
	// DefaultOpenAIBaseURL points at Together's OpenAI-compatible API
	DefaultOpenAIBaseURL        = "https://api.together.xyz/v1"
	DefaultOpenAIChatModel      = "meta-llama/Meta-Llama-3-8B-Instruct-Lite"
	DefaultOpenAIEmbeddingModel = "BAAI/bge-base-en-v1.5"
)

// OpenAIClient talks to any OpenAI-compatible endpoint for chat completion and embeddings
type OpenAIClient struct {
	client         *openai.Client
	baseURL        string
	chatModel      string
	embeddingModel string
}

type OpenAIOption func(*OpenAIClient)

func WithOpenAIBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.baseURL = url
	}
}

func WithOpenAIChatModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.chatModel = model
	}
}

func WithOpenAIEmbeddingModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.embeddingModel = model
	}
}

func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, goerr.New("api key is required for OpenAI-compatible client")
	}

	c := &OpenAIClient{
		baseURL:        DefaultOpenAIBaseURL,
		chatModel:      DefaultOpenAIChatModel,
		embeddingModel: DefaultOpenAIEmbeddingModel,
	}
	for _, opt := range opts {
		opt(c)
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(c.baseURL, "/")
	c.client = openai.NewClientWithConfig(cfg)

	return c, nil
}

func (c *OpenAIClient) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	// go-openai omits a zero temperature from the request body
	temperature := req.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.chatModel,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        1,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to create chat completion", goerr.V("model", c.chatModel))
	}

	if len(resp.Choices) == 0 {
		return "", goerr.New("no choices in chat completion", goerr.V("model", c.chatModel))
	}

	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embeddingModel),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embeddings", goerr.V("model", c.embeddingModel))
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, goerr.New("no embedding returned", goerr.V("model", c.embeddingModel))
	}

	return resp.Data[0].Embedding, nil
}
