package chat

import (
	"context"
	"strings"

	"github.com/m-mizutani/cryptochat/pkg/adapter"
	"github.com/m-mizutani/cryptochat/pkg/utils/logging"
)

const DefaultLanguage = "en"

// normalizer translates input into the working language. It falls back to the
// trimmed original whenever translation is unavailable.
type normalizer struct {
	translator adapter.Translator
	language   string
}

func (x *normalizer) Normalize(ctx context.Context, input string) string {
	input = strings.TrimSpace(input)
	if x.translator == nil {
		return input
	}

	translated, err := x.translator.Translate(ctx, input, x.language)
	if err != nil {
		logging.From(ctx).Warn("translation failed, using original text", "error", err)
		return input
	}

	translated = strings.TrimSpace(translated)
	if translated == "" {
		return input
	}
	return translated
}
