// Package llm adapts the LLM Client port (§4.E) onto OpenAI's chat
// completion API, grounded on the teacher's circuit-breaker/backoff idiom
// from the Gmail adapter generalized to a single external call.
package llm

import (
	"context"
	"math/rand"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"github.com/mailkeeper/agent/pkg/apperr"
	"github.com/mailkeeper/agent/pkg/logger"
)

// nonCircuitError wraps a client (4xx) error so gobreaker does not count it
// toward tripping the breaker (§4.T, §7's Transient-vs-Client distinction).
type nonCircuitError struct{ err error }

func (e *nonCircuitError) Error() string { return e.err.Error() }
func (e *nonCircuitError) Unwrap() error { return e.err }

// Client implements core/port/out.LLMPort.
type Client struct {
	api     *openai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
}

func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = openai.GPT4oMini
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6)
		},
	})
	return &Client{api: openai.NewClient(apiKey), model: model, breaker: breaker}
}

// Complete implements out.LLMPort. It retries transient failures up to
// three times with 2s/4s/8s backoff plus jitter (§7), never retrying a
// wrapped client error.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 4; attempt++ {
		result, err := c.breaker.Execute(func() (interface{}, error) {
			return c.complete(ctx, system, user, maxTokens, temperature)
		})
		if err == nil {
			return result.(string), nil
		}

		var nce *nonCircuitError
		if ok := asNonCircuit(err, &nce); ok {
			return "", apperr.BadRequest(nce.Error())
		}
		lastErr = err

		if attempt < 3 {
			backoff := time.Duration(1<<uint(attempt+1)) * time.Second
			jitter := time.Duration(rand.Intn(250)) * time.Millisecond
			logger.Warn("llm call failed, retrying in %s: %v", backoff, err)
			select {
			case <-time.After(backoff + jitter):
			case <-ctx.Done():
				return "", apperr.Timeout("llm complete")
			}
		}
	}
	return "", apperr.RateLimited("openai").WithError(lastErr)
}

func asNonCircuit(err error, target **nonCircuitError) bool {
	nce, ok := err.(*nonCircuitError)
	if ok {
		*target = nce
	}
	return ok
}

func (c *Client) complete(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: float32(temperature),
	})
	if err != nil {
		if apiErr, ok := err.(*openai.APIError); ok && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 && apiErr.HTTPStatusCode != 429 {
			return "", &nonCircuitError{err: err}
		}
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &nonCircuitError{err: apperr.Internal("empty completion choices")}
	}
	return resp.Choices[0].Message.Content, nil
}
