package out

import "context"

// LLMPort is the abstract language-model contract (§6, §4.E). Callers parse
// the returned text as strict JSON; fence-stripping and the one-retry-on-
// parse-failure policy live in the Analyzer/Summarizer, not here.
type LLMPort interface {
	Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error)
}
