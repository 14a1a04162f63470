package rpc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

const (
	// ChatPath is the Connect procedure path for the chat service.
	ChatPath = "/apiv2/kimi.gateway.chat.v1.ChatService/Chat"

	contentTypeConnectJSON = "application/connect+json"

	flagCompressed = 0x01
	flagEndStream  = 0x02

	// maxEnvelopeSize bounds a single message read from the backend.
	maxEnvelopeSize = 16 << 20
)

var (
	// ErrCompressedEnvelope is returned when the backend sends a compressed
	// message, which this client never negotiates.
	ErrCompressedEnvelope = errors.New("compressed envelope not supported")

	// ErrEnvelopeTooLarge is returned for messages above maxEnvelopeSize.
	ErrEnvelopeTooLarge = errors.New("envelope exceeds maximum size")

	// ErrMissingEndStream is returned when the response body ends before the
	// end-of-stream envelope. It wraps io.ErrUnexpectedEOF.
	ErrMissingEndStream = fmt.Errorf("stream ended without end-of-stream message: %w", io.ErrUnexpectedEOF)
)

// HTTPClient talks to the backend using the Connect streaming protocol with
// the JSON codec.
type HTTPClient struct {
	config     Config
	httpClient *http.Client
}

// NewHTTPClient creates a client for cfg. A nil httpClient uses
// http.DefaultClient; timeouts are left to the caller's context.
func NewHTTPClient(cfg Config, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &HTTPClient{config: cfg, httpClient: httpClient}
}

// NewFactory returns a Factory producing HTTPClients that share httpClient's
// connection pool.
func NewFactory(httpClient *http.Client) Factory {
	return func(cfg Config) Client {
		return NewHTTPClient(cfg, httpClient)
	}
}

// Config returns the settings the client was built with.
func (c *HTTPClient) Config() Config {
	return c.config
}

type chatRequestMessage struct {
	Scenario Scenario       `json:"scenario"`
	Message  requestMessage `json:"message"`
	Options  requestOptions `json:"options"`
}

type requestMessage struct {
	Role   string         `json:"role"`
	Blocks []messageBlock `json:"blocks"`
}

type messageBlock struct {
	Text *textBlock `json:"text,omitempty"`
}

type textBlock struct {
	Content string `json:"content"`
}

type requestOptions struct {
	Thinking bool `json:"thinking"`
}

type chatEventMessage struct {
	Op    string        `json:"op,omitempty"`
	Chat  *chatRef      `json:"chat,omitempty"`
	Block *messageBlock `json:"block,omitempty"`
	Done  *struct{}     `json:"done,omitempty"`
}

type chatRef struct {
	ID string `json:"id"`
}

type endStreamMessage struct {
	Error *Error `json:"error,omitempty"`
}

// Chat performs a streaming call and assembles the full reply.
func (c *HTTPClient) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	stream, err := c.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	resp := &ChatResponse{}
	var text strings.Builder
	for {
		ev, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if ev.ChatID != "" && resp.ChatID == "" {
			resp.ChatID = ev.ChatID
		}
		text.WriteString(ev.Text)
		if ev.Done {
			break
		}
	}
	resp.Text = text.String()
	return resp, nil
}

// ChatStream opens a server-streaming chat call.
func (c *HTTPClient) ChatStream(ctx context.Context, req ChatRequest) (Stream, error) {
	payload, err := json.Marshal(chatRequestMessage{
		Scenario: req.Scenario,
		Message: requestMessage{
			Role:   "user",
			Blocks: []messageBlock{{Text: &textBlock{Content: req.Text}}},
		},
		Options: requestOptions{Thinking: req.Thinking},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var body bytes.Buffer
	if err := writeEnvelope(&body, 0, payload); err != nil {
		return nil, err
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + ChatPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readUnaryError(resp)
	}

	return &httpStream{body: resp.Body}, nil
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", contentTypeConnectJSON)
	req.Header.Set("Connect-Protocol-Version", "1")
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("User-Agent", "kimi-proxy")

	if c.config.DeviceID != "" {
		req.Header.Set("X-Msh-Device-Id", c.config.DeviceID)
	}
	if c.config.SessionID != "" {
		req.Header.Set("X-Msh-Session-Id", c.config.SessionID)
	}
	if c.config.UserID != "" {
		req.Header.Set("X-Traffic-Id", c.config.UserID)
	}
}

// readUnaryError turns a non-200 Connect response into an *Error.
func readUnaryError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var rpcErr Error
	if err := json.Unmarshal(raw, &rpcErr); err == nil && rpcErr.Code != "" {
		return &rpcErr
	}
	return &Error{
		Code:    strings.ToLower(strings.ReplaceAll(http.StatusText(resp.StatusCode), " ", "_")),
		Message: fmt.Sprintf("%s - %s", resp.Status, strings.TrimSpace(string(raw))),
	}
}

type httpStream struct {
	body      io.ReadCloser
	ended     bool
	closeOnce sync.Once
	closeErr  error
}

// Recv returns io.EOF only after the end-of-stream envelope arrived.
func (s *httpStream) Recv() (Event, error) {
	if s.ended {
		return Event{}, io.EOF
	}
	for {
		flags, payload, err := readEnvelope(s.body)
		if errors.Is(err, io.EOF) {
			return Event{}, ErrMissingEndStream
		}
		if err != nil {
			return Event{}, err
		}

		if flags&flagEndStream != 0 {
			var end endStreamMessage
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &end); err != nil {
					return Event{}, fmt.Errorf("failed to parse end of stream: %w", err)
				}
			}
			if end.Error != nil {
				return Event{}, end.Error
			}
			s.ended = true
			return Event{}, io.EOF
		}

		var msg chatEventMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return Event{}, fmt.Errorf("failed to parse event: %w", err)
		}
		ev := Event{Done: msg.Done != nil}
		if msg.Chat != nil {
			ev.ChatID = msg.Chat.ID
		}
		if msg.Block != nil && msg.Block.Text != nil {
			ev.Text = msg.Block.Text.Content
		}
		if ev == (Event{}) {
			// heartbeats and metadata-only updates
			continue
		}
		return ev, nil
	}
}

func (s *httpStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

func writeEnvelope(w io.Writer, flags byte, payload []byte) error {
	var header [5]byte
	header[0] = flags
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readEnvelope(r io.Reader) (byte, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, fmt.Errorf("truncated envelope header: %w", err)
		}
		return 0, nil, err
	}
	flags := header[0]
	if flags&flagCompressed != 0 {
		return 0, nil, ErrCompressedEnvelope
	}
	size := binary.BigEndian.Uint32(header[1:])
	if size > maxEnvelopeSize {
		return 0, nil, ErrEnvelopeTooLarge
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, fmt.Errorf("truncated envelope: %w", err)
	}
	return flags, payload, nil
}
