package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"kimi-proxy/internal/auth"
	"kimi-proxy/internal/rpc"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
)

// maxRequestBody bounds inbound chat request bodies.
const maxRequestBody = 8 << 20

// ServerState holds the state for the chat completion handlers
type ServerState struct {
	Service *Service
	sink    auth.HeaderSink
}

// NewLLMServerState creates the handler state. Header diagnostics are only
// wired when config.LogHeaders is set.
func NewLLMServerState(config *Config, newClient rpc.Factory, metrics *Metrics) *ServerState {
	state := &ServerState{
		Service: NewService(config, newClient, metrics),
	}
	if state.Service.config.LogHeaders {
		state.sink = auth.NewLogHeaderSink(log.Default())
	}
	return state
}

// ChatCompletionRequest is the subset of the OpenAI request the proxy reads.
type ChatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ListModelsResponse is the response for the list models endpoint
type ListModelsResponse struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ErrorResponse is the OpenAI error envelope.
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// APIError describes a failed request.
type APIError struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    string  `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, errType, code := errorInfo(err)
	SetErrorResponseHeaders(w, err)
	writeJSON(w, status, ErrorResponse{Error: APIError{
		Message: err.Error(),
		Type:    errType,
		Code:    code,
	}})
}

func decodeChatRequest(r *http.Request) (*ChatCompletionRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		return nil, fmt.Errorf("%w: error reading request body", ErrInvalidRequest)
	}
	if len(body) > maxRequestBody {
		return nil, fmt.Errorf("%w: request body too large", ErrInvalidRequest)
	}

	var req ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages must not be empty", ErrInvalidRequest)
	}
	return &req, nil
}

// HandleListModels handles the list models endpoint
func (s *ServerState) HandleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListModelsResponse{
		Object: "list",
		Data:   DefaultModels(),
	})
}

// HandleChatCompletions handles both streaming and non-streaming chat requests
func (s *ServerState) HandleChatCompletions(w http.ResponseWriter, r *http.Request) {
	token, err := auth.ExtractCredential(r.Header, s.sink)
	if err != nil {
		s.Service.metrics.request(modeUnknown, outcomeRejected)
		writeError(w, err)
		return
	}

	req, err := decodeChatRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if req.Stream {
		s.streamCompletion(w, r, req, token)
		return
	}

	resp, err := s.Service.CreateCompletion(r.Context(), req.Model, req.Messages, token)
	if err != nil {
		if errors.Is(err, ErrBackendCall) {
			log.Warn("completion failed", "model", req.Model, "err", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ServerState) streamCompletion(w http.ResponseWriter, r *http.Request, req *ChatCompletionRequest, token string) {
	stream, err := s.Service.StreamCompletion(r.Context(), req.Model, req.Messages, token)
	if err != nil {
		if errors.Is(err, ErrBackendCall) {
			log.Warn("stream open failed", "model", req.Model, "err", err)
		}
		writeError(w, err)
		return
	}
	defer stream.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for frame := range stream.Frames() {
		if _, err := w.Write(frame); err != nil {
			// Connection likely closed by client
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if err := stream.Err(); err != nil {
		if r.Context().Err() != nil {
			return
		}
		// abort so the client sees a broken stream rather than a clean end
		panic(http.ErrAbortHandler)
	}
}

// RegisterHandlers registers the LLM handlers with a router
func (s *ServerState) RegisterHandlers(r chi.Router) {
	r.Get("/v1/models", s.HandleListModels)
	r.Get("/models", s.HandleListModels)
	r.Post("/v1/chat/completions", s.HandleChatCompletions)
	r.Post("/chat/completions", s.HandleChatCompletions)
}
