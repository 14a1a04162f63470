package llm

import (
	"context"
	"io"
	"sync"
	"testing"

	"kimi-proxy/internal/rpc"

	"github.com/golang-jwt/jwt/v4"
)

// fakeBackend is an in-memory rpc.Client factory that records every client
// it builds and every event it hands out.
type fakeBackend struct {
	mu sync.Mutex

	// chat result for Client.Chat
	chatResp *rpc.ChatResponse
	chatErr  error

	// events returned by Stream.Recv, followed by streamErr (io.EOF if nil)
	events    []rpc.Event
	streamErr error
	openErr   error
	// blockAfter makes Recv block until the stream context is canceled once
	// this many events were returned; -1 disables it
	blockAfter int

	configs  []rpc.Config
	requests []rpc.ChatRequest
	recvs    int
	closed   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{blockAfter: -1}
}

func (f *fakeBackend) factory() rpc.Factory {
	return func(cfg rpc.Config) rpc.Client {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.configs = append(f.configs, cfg)
		return &fakeClient{backend: f}
	}
}

func (f *fakeBackend) clientCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.configs)
}

func (f *fakeBackend) recvCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recvs
}

func (f *fakeBackend) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeBackend) lastRequest() rpc.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return rpc.ChatRequest{}
	}
	return f.requests[len(f.requests)-1]
}

type fakeClient struct {
	backend *fakeBackend
}

func (c *fakeClient) Chat(ctx context.Context, req rpc.ChatRequest) (*rpc.ChatResponse, error) {
	f := c.backend
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	resp := *f.chatResp
	return &resp, nil
}

func (c *fakeClient) ChatStream(ctx context.Context, req rpc.ChatRequest) (rpc.Stream, error) {
	f := c.backend
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeStream{ctx: ctx, backend: f}, nil
}

type fakeStream struct {
	ctx     context.Context
	backend *fakeBackend
	next    int
}

func (s *fakeStream) Recv() (rpc.Event, error) {
	f := s.backend
	f.mu.Lock()
	f.recvs++
	block := f.blockAfter >= 0 && s.next >= f.blockAfter
	f.mu.Unlock()

	if block {
		<-s.ctx.Done()
		return rpc.Event{}, s.ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if s.next < len(f.events) {
		ev := f.events[s.next]
		s.next++
		return ev, nil
	}
	if f.streamErr != nil {
		return rpc.Event{}, f.streamErr
	}
	return rpc.Event{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.closed++
	return nil
}

// accessToken returns a signed Kimi access token with session claims.
func accessToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"app_id":    "kimi",
		"typ":       "access",
		"device_id": "device-1",
		"ssid":      "session-1",
		"sub":       "user-1",
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func textMessages(texts ...string) []Message {
	messages := make([]Message, 0, len(texts))
	for _, text := range texts {
		raw, _ := jsonString(text)
		messages = append(messages, Message{Role: "user", Content: raw})
	}
	return messages
}
