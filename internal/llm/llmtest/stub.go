// Package llmtest provides scripted llm.Client implementations for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/jonathan/market-research/internal/llm"
)

// ErrUnavailable is returned by Failing clients.
var ErrUnavailable = errors.New("model unavailable")

// Response is a scripted reply. A non-nil Err is returned instead of Text.
type Response struct {
	Text string
	Err  error
	// Block makes the call wait for context cancellation.
	Block bool
	// Panic makes the call panic with the given value.
	Panic any
}

// Client replies from a script keyed by prompt substring, or with Default.
type Client struct {
	mu      sync.Mutex
	Default Response
	// Match maps a prompt predicate to a response. Checked in order.
	Match []Matcher
	calls   []Call
}

// Matcher selects a response for prompts that satisfy When.
type Matcher struct {
	When func(prompt string) bool
	Then Response
}

// Call records one request seen by the client.
type Call struct {
	Prompt string
	Tier   llm.ModelTier
}

// Failing returns a client whose every call fails.
func Failing() *Client {
	return &Client{Default: Response{Err: ErrUnavailable}}
}

// Replying returns a client that answers every call with text.
func Replying(text string) *Client {
	return &Client{Default: Response{Text: text}}
}

// GenerateContent implements llm.Client.
func (c *Client) GenerateContent(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return c.respond(ctx, prompt, tier)
}

// GenerateJSON implements llm.Client.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	return c.respond(ctx, prompt, tier)
}

// GetModel implements llm.Client.
func (c *Client) GetModel(tier llm.ModelTier) string {
	return "stub-" + string(tier)
}

// Close implements llm.Client.
func (c *Client) Close() error {
	return nil
}

// Calls returns the recorded requests.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

func (c *Client) respond(ctx context.Context, prompt string, tier llm.ModelTier) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, Call{Prompt: prompt, Tier: tier})
	resp := c.Default
	for _, m := range c.Match {
		if m.When(prompt) {
			resp = m.Then
			break
		}
	}
	c.mu.Unlock()

	if resp.Panic != nil {
		panic(resp.Panic)
	}
	if resp.Block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if resp.Err != nil {
		return "", resp.Err
	}
	return resp.Text, nil
}

var _ llm.Client = (*Client)(nil)
