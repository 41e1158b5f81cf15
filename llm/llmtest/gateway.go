// Package llmtest provides a scripted llm.Gateway for tests.
package llmtest

import (
	"context"
	"sync"

	"ideasim/llm"
)

// HandlerFunc answers one request.
type HandlerFunc func(ctx context.Context, req llm.Request) (*llm.Completion, error)

// ScriptedGateway is a thread-safe gateway for tests. Handler takes
// precedence; otherwise Responses are returned in sequence and Err is
// returned once they run out (or for every call when Responses is empty).
//
// Usage:
//
//	// Malformed output followed by a valid repair
//	gw := &llmtest.ScriptedGateway{
//	    Responses: []*llm.Completion{
//	        {Content: "not json", Model: "gpt-4o-mini"},
//	        {Content: `{"one_liner": "..."}`, Model: "gpt-4o-mini"},
//	    },
//	}
type ScriptedGateway struct {
	Handler   HandlerFunc
	Responses []*llm.Completion
	Err       error

	mu       sync.Mutex
	requests []llm.Request
	next     int
}

// Complete implements llm.Gateway.
func (g *ScriptedGateway) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	handler := g.Handler
	var resp *llm.Completion
	if handler == nil && g.next < len(g.Responses) {
		resp = g.Responses[g.next]
		g.next++
	}
	g.mu.Unlock()

	if handler != nil {
		return handler(ctx, req)
	}
	if resp != nil {
		copied := *resp
		return &copied, nil
	}
	if g.Err != nil {
		return nil, g.Err
	}
	return &llm.Completion{Content: "", Model: "test-model"}, nil
}

// Requests returns a copy of every request received so far.
func (g *ScriptedGateway) Requests() []llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]llm.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// CallCount returns the number of requests received.
func (g *ScriptedGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// CountPrompt returns how many requests were made for promptID.
func (g *ScriptedGateway) CountPrompt(promptID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.requests {
		if r.PromptID == promptID {
			n++
		}
	}
	return n
}

// Reset clears recorded requests and rewinds Responses.
func (g *ScriptedGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = nil
	g.next = 0
}
