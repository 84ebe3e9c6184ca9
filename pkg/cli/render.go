package cli

import (
	"fmt"
	"io"

	"github.com/m-mizutani/cryptochat/pkg/model"
)

const invalidInputMessage = "Invalid input. Please enter a valid query."

func printExchanges(w io.Writer, exchanges []*model.Exchange) {
	if len(exchanges) == 0 {
		fmt.Fprintf(w, "No exchanges yet\n")
		return
	}

	for _, ex := range exchanges {
		fmt.Fprintf(w, "[%d] You: %s\n", ex.Seq, ex.Query)
		fmt.Fprintf(w, "[%d] Bot: %s\n\n", ex.Seq, ex.Response)
	}
}
