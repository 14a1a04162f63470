package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	openai "github.com/sashabaranov/go-openai"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestAnalyzeToken(t *testing.T) {
	full := signed(t, jwt.MapClaims{"app_id": "kimi", "typ": "access", "device_id": "d", "ssid": "s", "sub": "u"})
	partial := signed(t, jwt.MapClaims{"app_id": "kimi", "typ": "access", "sub": "u"})
	refresh := signed(t, jwt.MapClaims{"app_id": "kimi", "typ": "refresh"})
	expired := signed(t, jwt.MapClaims{"app_id": "kimi", "typ": "access", "exp": 1000})

	tests := []struct {
		name    string
		token   string
		want    []string
		notWant []string
	}{
		{name: "empty", token: "", want: []string{"ERROR: Token is empty"}},
		{name: "full", token: full, want: []string{"✓ Token is a Kimi access token", "✓ Token has 'ssid' claim"}, notWant: []string{"WARNING", "ERROR"}},
		{name: "bearer", token: "Bearer " + full, want: []string{"'Bearer ' prefix"}},
		{name: "partial", token: partial, want: []string{"missing the 'device_id' claim", "missing the 'ssid' claim"}},
		{name: "refresh", token: refresh, want: []string{"refresh token"}},
		{name: "expired", token: expired, want: []string{"ERROR: Token expired at 1970-01-01T00:16:40Z"}},
		{name: "opaque", token: "abc", want: []string{"1 segments", "not a Kimi access token"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeToken(tt.token)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("AnalyzeToken() missing %q:\n%s", w, got)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(got, w) {
					t.Errorf("AnalyzeToken() unexpectedly contains %q:\n%s", w, got)
				}
			}
		})
	}
}

// newProxyStub answers like the proxy does for a single completion.
func newProxyStub(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/chat/completions":
			var req openai.ChatCompletionRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Stream {
				w.Header().Set("Content-Type", "text/event-stream")
				w.Write([]byte(`data: {"id":"c1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{"content":"hey"},"finish_reason":null}]}` + "\n\n"))
				w.Write([]byte(`data: {"id":"c1","object":"chat.completion.chunk","model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}` + "\n\n"))
				w.Write([]byte("data: [DONE]\n\n"))
				return
			}
			if r.Header.Get("Authorization") == "Bearer bad" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"message":"unsupported credential type","type":"authentication_error","param":null,"code":"unsupported_credential_type"}}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"m","created":1,"choices":[{"index":0,"message":{"role":"assistant","content":"hello"},"finish_reason":"stop"}],"usage":{"prompt_tokens":2,"completion_tokens":5,"total_tokens":7}}`))
		case "/v1/models":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"object":"list","data":[{"id":"kimi-k2.5","object":"model","owned_by":"moonshot"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func stubClient(server *httptest.Server, token string) *openai.Client {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = server.URL + "/v1"
	return openai.NewClientWithConfig(cfg)
}

func testRequest() openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:    "kimi-k2.5",
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "Hi"}},
	}
}

func TestRunCompletion(t *testing.T) {
	server := newProxyStub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := runCompletion(ctx, stubClient(server, "good"), testRequest(), &out); err != nil {
		t.Fatalf("runCompletion() error = %v", err)
	}
	if !strings.Contains(out.String(), "hello") || !strings.Contains(out.String(), "usage=2/5/7") {
		t.Errorf("unexpected output %q", out.String())
	}

	err := runCompletion(ctx, stubClient(server, "bad"), testRequest(), &out)
	if err == nil || !strings.Contains(err.Error(), "HTTP 401") || !strings.Contains(err.Error(), "unsupported_credential_type") {
		t.Errorf("runCompletion() error = %v", err)
	}
}

func TestRunStream(t *testing.T) {
	server := newProxyStub(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	if err := runStream(ctx, stubClient(server, "good"), testRequest(), &out); err != nil {
		t.Fatalf("runStream() error = %v", err)
	}
	if !strings.Contains(out.String(), "hey") || !strings.Contains(out.String(), "chunks=2 finish_reason=stop") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestPrintModels(t *testing.T) {
	server := newProxyStub(t)
	var out bytes.Buffer
	if err := printModels(context.Background(), stubClient(server, ""), &out); err != nil {
		t.Fatalf("printModels() error = %v", err)
	}
	if !strings.Contains(out.String(), "- kimi-k2.5 (moonshot)") {
		t.Errorf("unexpected output %q", out.String())
	}
}
