package chat

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"regexp"
	"strings"
	"text/template"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/catalogue"
	"github.com/m-mizutani/cryptochat/pkg/model"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed prompt/extract.md
var extractPromptRaw string

var extractPromptTmpl = template.Must(template.New("extract").Parse(extractPromptRaw))

const extractMaxTokens = 200

// jsonObjectPattern matches from the first '{' to the last '}'
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Extractor resolves free-text coin mentions to catalogue identifiers with an LLM
type Extractor struct {
	llm       adapter.LLM
	catalogue *catalogue.Catalogue
	prompt    string
}

func NewExtractor(llm adapter.LLM, cat *catalogue.Catalogue) (*Extractor, error) {
	var buf bytes.Buffer
	if err := extractPromptTmpl.Execute(&buf, map[string]any{
		"Coins": cat.IDs(),
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to execute extract prompt template")
	}

	return &Extractor{
		llm:       llm,
		catalogue: cat,
		prompt:    buf.String(),
	}, nil
}

// Extract returns the catalogue identifiers mentioned in text, in the order the model
// listed them. Model and parse failures are logged and yield an empty result.
func (x *Extractor) Extract(ctx context.Context, text string) []model.CoinID {
	logger := logging.From(ctx)

	text = strings.TrimSpace(text)
	if text == "" {
		logger.Warn("empty text given to extractor, skipping")
		return nil
	}

	output, err := x.llm.Complete(ctx, &adapter.CompletionRequest{
		Messages: []adapter.Message{
			{Role: adapter.RoleUser, Content: x.prompt},
			{Role: adapter.RoleUser, Content: text},
		},
		Temperature: 0,
		MaxTokens:   extractMaxTokens,
	})
	if err != nil {
		logger.Error("failed to extract coin names", "error", err)
		return nil
	}
	logger.Debug("extractor output", "output", output)

	names, ok := parseMentioned(output)
	if !ok {
		logger.Warn("no valid JSON object in extractor output", "output", output)
		return nil
	}
	if len(names) == 0 {
		logger.Debug("no coin mentioned")
		return nil
	}

	var (
		ids     []model.CoinID
		dropped []string
	)
	seen := make(map[model.CoinID]struct{}, len(names))
	for _, name := range names {
		id, ok := x.catalogue.Resolve(name)
		if !ok {
			dropped = append(dropped, name)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(dropped) > 0 {
		logger.Warn("dropped names outside of catalogue", "names", dropped)
	}

	return ids
}

type extractOutput struct {
	CurrenciesMentioned []any `json:"currencies_mentioned"`
}

// parseMentioned scrapes the JSON object out of free-form model output. The bool is
// false when no decodable object is present. Non-string list items are skipped.
func parseMentioned(output string) ([]string, bool) {
	raw := jsonObjectPattern.FindString(output)
	if raw == "" {
		return nil, false
	}

	var out extractOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false
	}

	names := make([]string, 0, len(out.CurrenciesMentioned))
	for _, v := range out.CurrenciesMentioned {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, true
}

// ParseMentionedForTest exposes parseMentioned for testing
func ParseMentionedForTest(output string) ([]string, bool) {
	return parseMentioned(output)
}
