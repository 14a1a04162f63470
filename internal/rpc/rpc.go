// Package rpc defines the chat backend client used by the proxy and a
// Connect-style JSON implementation of it.
//
// The translation layer in internal/llm only depends on the Client and
// Stream interfaces. A fresh Client is built for every inbound request from
// a Config that is never mutated after construction.
package rpc

import (
	"context"
	"fmt"
)

// Scenario selects the backend model family.
type Scenario string

const (
	ScenarioK2       Scenario = "SCENARIO_K2"
	ScenarioSearch   Scenario = "SCENARIO_SEARCH"
	ScenarioResearch Scenario = "SCENARIO_RESEARCH"
	ScenarioK1       Scenario = "SCENARIO_K1"
)

// DefaultBaseURL is the public Kimi endpoint.
const DefaultBaseURL = "https://www.kimi.com"

// Config holds the per-request connection settings. Empty optional fields
// are treated as absent and are not sent upstream.
type Config struct {
	// BaseURL is the scheme and host of the backend
	BaseURL string
	// Token is the access credential sent as a bearer token
	Token string
	// DeviceID, SessionID and UserID come from the access token claims
	DeviceID  string
	SessionID string
	UserID    string
}

// ChatRequest is a single user turn sent to the backend.
type ChatRequest struct {
	Text     string
	Scenario Scenario
	Thinking bool
}

// ChatResponse is the assembled result of a non-streaming chat call.
type ChatResponse struct {
	// ChatID is the backend conversation id, empty if none was reported
	ChatID string
	Text   string
}

// Event is one message event from a streaming chat call.
type Event struct {
	ChatID string
	Text   string
	Done   bool
}

// Stream yields backend events in arrival order. Recv returns io.EOF once
// the backend closed the stream cleanly.
type Stream interface {
	Recv() (Event, error)
	Close() error
}

// Client is the backend chat API.
type Client interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	ChatStream(ctx context.Context, req ChatRequest) (Stream, error)
}

// Factory builds a Client for a single request.
type Factory func(cfg Config) Client

// Error is an error reported by the backend.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc error: %s", e.Code)
	}
	return fmt.Sprintf("rpc error: %s: %s", e.Code, e.Message)
}
