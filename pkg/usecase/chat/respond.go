package chat

import (
	"context"
	"encoding/json"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

const responseMaxTokens = 1024

// responder turns fetched coin data into a natural-language answer
type responder struct {
	llm adapter.LLM
}

func (x *responder) Respond(ctx context.Context, data model.CoinDataSet, query string) (string, error) {
	if data == nil {
		data = model.CoinDataSet{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal coin data")
	}

	answer, err := x.llm.Complete(ctx, &adapter.CompletionRequest{
		Messages: []adapter.Message{
			{Role: adapter.RoleUser, Content: "Use the following data to answer the query:"},
			{Role: adapter.RoleUser, Content: "Coin Data: " + string(raw)},
			{Role: adapter.RoleUser, Content: "Query: " + query},
		},
		Temperature: 0,
		MaxTokens:   responseMaxTokens,
	})
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate response")
	}

	return answer, nil
}
