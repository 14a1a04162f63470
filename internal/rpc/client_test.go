package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func envelope(t *testing.T, flags byte, v interface{}) []byte {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var buf bytes.Buffer
	if err := writeEnvelope(&buf, flags, payload); err != nil {
		t.Fatalf("writeEnvelope: %v", err)
	}
	return buf.Bytes()
}

func textEvent(t *testing.T, text string) []byte {
	return envelope(t, 0, map[string]interface{}{
		"op":    "append",
		"block": map[string]interface{}{"text": map[string]string{"content": text}},
	})
}

func newBackend(t *testing.T, check func(r *http.Request), frames ...[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", contentTypeConnectJSON)
		w.WriteHeader(http.StatusOK)
		for _, f := range frames {
			w.Write(f)
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
		}
	}))
}

func TestChatStreamSendsRequest(t *testing.T) {
	var gotReq chatRequestMessage
	check := func(r *http.Request) {
		if r.URL.Path != ChatPath {
			t.Errorf("path = %q, want %q", r.URL.Path, ChatPath)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != contentTypeConnectJSON {
			t.Errorf("Content-Type = %q", got)
		}
		if got := r.Header.Get("X-Msh-Device-Id"); got != "dev-1" {
			t.Errorf("X-Msh-Device-Id = %q", got)
		}
		if _, ok := r.Header["X-Msh-Session-Id"]; ok {
			t.Error("X-Msh-Session-Id should be omitted when absent")
		}
		if got := r.Header.Get("X-Traffic-Id"); got != "user-1" {
			t.Errorf("X-Traffic-Id = %q", got)
		}
		_, payload, err := readEnvelope(r.Body)
		if err != nil {
			t.Errorf("readEnvelope: %v", err)
			return
		}
		if err := json.Unmarshal(payload, &gotReq); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}
	}
	backend := newBackend(t, check, envelope(t, flagEndStream, map[string]interface{}{}))
	defer backend.Close()

	client := NewHTTPClient(Config{BaseURL: backend.URL, Token: "tok", DeviceID: "dev-1", UserID: "user-1"}, nil)
	stream, err := client.ChatStream(context.Background(), ChatRequest{Text: "hi", Scenario: ScenarioSearch, Thinking: true})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	defer stream.Close()

	if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("Recv() error = %v, want io.EOF", err)
	}
	if gotReq.Scenario != ScenarioSearch {
		t.Errorf("scenario = %q", gotReq.Scenario)
	}
	if !gotReq.Options.Thinking {
		t.Error("thinking option not sent")
	}
	if len(gotReq.Message.Blocks) != 1 || gotReq.Message.Blocks[0].Text.Content != "hi" {
		t.Errorf("unexpected blocks: %+v", gotReq.Message.Blocks)
	}
}

func TestChatAssemblesText(t *testing.T) {
	backend := newBackend(t, nil,
		envelope(t, 0, map[string]interface{}{"chat": map[string]string{"id": "chat-42"}}),
		envelope(t, 0, map[string]interface{}{"op": "ping"}),
		textEvent(t, "Hel"),
		textEvent(t, "lo"),
		envelope(t, 0, map[string]interface{}{"done": map[string]string{}}),
		textEvent(t, "ignored"),
	)
	defer backend.Close()

	resp, err := NewHTTPClient(Config{BaseURL: backend.URL, Token: "tok"}, nil).Chat(context.Background(), ChatRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Text != "Hello" {
		t.Errorf("Text = %q, want %q", resp.Text, "Hello")
	}
	if resp.ChatID != "chat-42" {
		t.Errorf("ChatID = %q, want chat-42", resp.ChatID)
	}
}

func TestChatStreamEndStreamError(t *testing.T) {
	backend := newBackend(t, nil,
		textEvent(t, "partial"),
		envelope(t, flagEndStream, map[string]interface{}{
			"error": map[string]string{"code": "unauthenticated", "message": "token expired"},
		}),
	)
	defer backend.Close()

	stream, err := NewHTTPClient(Config{BaseURL: backend.URL}, nil).ChatStream(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	defer stream.Close()

	ev, err := stream.Recv()
	if err != nil || ev.Text != "partial" {
		t.Fatalf("first Recv() = %+v, %v", ev, err)
	}
	_, err = stream.Recv()
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Recv() error = %v, want *Error", err)
	}
	if rpcErr.Code != "unauthenticated" {
		t.Errorf("Code = %q", rpcErr.Code)
	}
}

func TestChatStreamHTTPError(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"code":"unauthenticated","message":"bad token"}`))
	}))
	defer backend.Close()

	_, err := NewHTTPClient(Config{BaseURL: backend.URL}, nil).ChatStream(context.Background(), ChatRequest{})
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if rpcErr.Message != "bad token" {
		t.Errorf("Message = %q", rpcErr.Message)
	}
}

func TestReadEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "empty", input: nil, wantErr: io.EOF},
		{name: "short header", input: []byte{0, 0}, wantErr: io.ErrUnexpectedEOF},
		{name: "short payload", input: []byte{0, 0, 0, 0, 4, '{'}, wantErr: io.ErrUnexpectedEOF},
		{name: "compressed", input: []byte{flagCompressed, 0, 0, 0, 0}, wantErr: ErrCompressedEnvelope},
		{name: "too large", input: []byte{0, 0xff, 0xff, 0xff, 0xff}, wantErr: ErrEnvelopeTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readEnvelope(bytes.NewReader(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("readEnvelope() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewHTTPClientDefaults(t *testing.T) {
	client := NewHTTPClient(Config{Token: "tok"}, nil)
	if client.Config().BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", client.Config().BaseURL, DefaultBaseURL)
	}

	factory := NewFactory(nil)
	if _, ok := factory(Config{}).(*HTTPClient); !ok {
		t.Error("factory should build *HTTPClient")
	}
}

func TestChatMissingEndStream(t *testing.T) {
	backend := newBackend(t, nil, textEvent(t, "partial"))
	defer backend.Close()

	resp, err := NewHTTPClient(Config{BaseURL: backend.URL}, nil).Chat(context.Background(), ChatRequest{})
	if !errors.Is(err, ErrMissingEndStream) || !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Chat() = %+v, %v, want ErrMissingEndStream", resp, err)
	}
	if resp != nil {
		t.Errorf("partial reply returned as success: %+v", resp)
	}
}

func TestChatStreamEOFOnlyAfterEndStream(t *testing.T) {
	backend := newBackend(t, nil,
		textEvent(t, "a"),
		envelope(t, flagEndStream, map[string]interface{}{}),
	)
	defer backend.Close()

	stream, err := NewHTTPClient(Config{BaseURL: backend.URL}, nil).ChatStream(context.Background(), ChatRequest{})
	if err != nil {
		t.Fatalf("ChatStream() error = %v", err)
	}
	defer stream.Close()

	if ev, err := stream.Recv(); err != nil || ev.Text != "a" {
		t.Fatalf("first Recv() = %+v, %v", ev, err)
	}
	for i := 0; i < 2; i++ {
		if _, err := stream.Recv(); !errors.Is(err, io.EOF) {
			t.Errorf("Recv() after end of stream = %v, want io.EOF", err)
		}
	}
}
