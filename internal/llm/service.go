package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"unicode/utf8"

	"kimi-proxy/internal/rpc"
	"kimi-proxy/pkg/utils"

	"github.com/charmbracelet/log"
)

const (
	objectCompletion = "chat.completion"
	objectChunk      = "chat.completion.chunk"
	finishStop       = "stop"
	roleAssistant    = "assistant"
)

// sentinelFrame ends every successful stream.
var sentinelFrame = []byte("data: [DONE]\n\n")

// Service translates OpenAI chat requests into Kimi backend calls.
// It holds no per-request state; every call builds its own rpc.Client.
type Service struct {
	config    *Config
	newClient rpc.Factory
	metrics   *Metrics
	now       func() time.Time
}

// NewService creates a new LLM service. metrics may be nil.
func NewService(config *Config, newClient rpc.Factory, metrics *Metrics) *Service {
	if config == nil {
		config = DefaultConfig()
	}
	return &Service{
		config:    config,
		newClient: newClient,
		metrics:   metrics,
		now:       time.Now,
	}
}

// GetConfig returns the service's configuration
func (s *Service) GetConfig() *Config {
	return s.config
}

// CompletionResponse is the OpenAI chat.completion object.
type CompletionResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Object  string             `json:"object"`
	Choices []CompletionChoice `json:"choices"`
	Usage   Usage              `json:"usage"`
	Created int64              `json:"created"`
}

// CompletionChoice is the single choice of a CompletionResponse.
type CompletionChoice struct {
	Index        int               `json:"index"`
	Message      CompletionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// CompletionMessage is the assistant reply.
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports prompt and completion sizes. The counts are characters,
// not tokenizer tokens.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletionChunk is one SSE payload of a streaming response.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice carries the incremental delta. FinishReason is null until the
// terminal chunk.
type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental content; empty on the terminal chunk.
type Delta struct {
	Content string `json:"content,omitempty"`
}

// prepare runs the credential gate and builds everything a backend call
// needs. No client exists until it returns successfully.
func (s *Service) prepare(model string, messages []Message, token string) (rpc.Client, rpc.ChatRequest, error) {
	cfg, err := authorizeCredential(token, s.config.BaseURL)
	if err != nil {
		return nil, rpc.ChatRequest{}, err
	}

	scenario, thinking := ResolveScenario(model)
	log.Debug("resolved scenario", "model", model, "scenario", scenario, "thinking", thinking)

	req := rpc.ChatRequest{
		Text:     ExtractText(messages),
		Scenario: scenario,
		Thinking: thinking,
	}
	return s.newClient(cfg), req, nil
}

// CreateCompletion performs a single non-streaming round trip.
func (s *Service) CreateCompletion(ctx context.Context, model string, messages []Message, token string) (*CompletionResponse, error) {
	client, req, err := s.prepare(model, messages, token)
	if err != nil {
		s.metrics.request(modeCompletion, outcomeRejected)
		return nil, err
	}

	resp, err := client.Chat(ctx, req)
	if err != nil {
		s.metrics.request(modeCompletion, outcomeBackend)
		return nil, fmt.Errorf("%w: %w", ErrBackendCall, err)
	}

	id := resp.ChatID
	if id == "" {
		id = utils.NewCompletionID()
	}

	promptChars := utf8.RuneCountInString(req.Text)
	completionChars := utf8.RuneCountInString(resp.Text)
	s.metrics.request(modeCompletion, outcomeOK)
	s.metrics.characters(promptChars, completionChars)

	return &CompletionResponse{
		ID:     id,
		Model:  model,
		Object: objectCompletion,
		Choices: []CompletionChoice{{
			Index:        0,
			Message:      CompletionMessage{Role: roleAssistant, Content: resp.Text},
			FinishReason: finishStop,
		}},
		Usage: Usage{
			PromptTokens:     promptChars,
			CompletionTokens: completionChars,
			TotalTokens:      promptChars + completionChars,
		},
		Created: s.now().Unix(),
	}, nil
}

// ChunkStream is a live sequence of SSE frames produced in the background.
//
// Range over Frames until it is closed, then check Err. Close stops the
// producer early; it is safe to call more than once.
type ChunkStream struct {
	id     string
	frames chan []byte
	cancel context.CancelFunc
	err    error
}

// ID returns the completion id shared by all chunks.
func (cs *ChunkStream) ID() string {
	return cs.id
}

// Frames returns the channel of framed events, each "data: ...\n\n".
func (cs *ChunkStream) Frames() <-chan []byte {
	return cs.frames
}

// Err reports why the stream ended abnormally. Only valid once Frames is
// closed; nil means the stream ended with the terminal chunk and sentinel.
func (cs *ChunkStream) Err() error {
	return cs.err
}

// Close cancels the producer and releases the backend stream.
func (cs *ChunkStream) Close() {
	cs.cancel()
}

// StreamCompletion opens a streaming round trip. Credential and backend
// open failures are returned directly; later backend failures end the
// stream with Err set.
func (s *Service) StreamCompletion(ctx context.Context, model string, messages []Message, token string) (*ChunkStream, error) {
	client, req, err := s.prepare(model, messages, token)
	if err != nil {
		s.metrics.request(modeStream, outcomeRejected)
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	backend, err := client.ChatStream(ctx, req)
	if err != nil {
		cancel()
		s.metrics.request(modeStream, outcomeBackend)
		return nil, fmt.Errorf("%w: %w", ErrBackendCall, err)
	}

	cs := &ChunkStream{
		id:     utils.NewCompletionID(),
		frames: make(chan []byte, s.config.StreamBuffer),
		cancel: cancel,
	}
	p := &streamProducer{
		stream:  cs,
		backend: backend,
		model:   model,
		created: s.now().Unix(),
		metrics: s.metrics,
	}

	s.metrics.streamStarted()
	go p.run(ctx)
	return cs, nil
}

type streamProducer struct {
	stream  *ChunkStream
	backend rpc.Stream
	model   string
	created int64
	metrics *Metrics
}

func (p *streamProducer) run(ctx context.Context) {
	defer close(p.stream.frames)
	defer p.metrics.streamFinished()
	defer p.stream.cancel()
	defer p.backend.Close()

	err := p.pump(ctx)
	switch {
	case err == nil:
		p.metrics.request(modeStream, outcomeOK)
	case ctx.Err() != nil:
		p.stream.err = ctx.Err()
		p.metrics.request(modeStream, outcomeCanceled)
	default:
		p.stream.err = fmt.Errorf("%w: %w", ErrBackendCall, err)
		p.metrics.request(modeStream, outcomeBackend)
		log.Warn("stream aborted", "id", p.stream.id, "model", p.model, "err", err)
	}
}

// pump forwards backend events until done. A clean end of the backend
// stream is treated like an explicit done event.
func (p *streamProducer) pump(ctx context.Context) error {
	for {
		ev, err := p.backend.Recv()
		if errors.Is(err, io.EOF) {
			return p.finish(ctx)
		}
		if err != nil {
			return err
		}

		if ev.Text != "" {
			if err := p.send(ctx, p.chunk(Delta{Content: ev.Text}, nil)); err != nil {
				return err
			}
			p.metrics.chunk()
		}
		if ev.Done {
			return p.finish(ctx)
		}
	}
}

func (p *streamProducer) finish(ctx context.Context) error {
	stop := finishStop
	if err := p.send(ctx, p.chunk(Delta{}, &stop)); err != nil {
		return err
	}
	return p.send(ctx, sentinelFrame)
}

// send blocks while the buffer is full.
func (p *streamProducer) send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.stream.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *streamProducer) chunk(delta Delta, finishReason *string) []byte {
	payload, _ := json.Marshal(ChatCompletionChunk{
		ID:      p.stream.id,
		Object:  objectChunk,
		Created: p.created,
		Model:   p.model,
		Choices: []ChunkChoice{{Index: 0, Delta: delta, FinishReason: finishReason}},
	})
	frame := make([]byte, 0, len(payload)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, payload...)
	frame = append(frame, "\n\n"...)
	return frame
}
