// Package main implements a CLI tool for testing a running kimi-proxy with
// the go-openai client.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"kimi-proxy/pkg/utils"

	"github.com/charmbracelet/log"
	openai "github.com/sashabaranov/go-openai"
)

func main() {
	// Parse command line flags
	prompt := flag.String("prompt", "Hello, what can you do?", "The prompt to send")
	model := flag.String("model", "kimi-k2.5", "Model name to request")
	baseURL := flag.String("base-url", utils.GetEnvWithDefault("PROXY_URL", "http://localhost:8080/v1"), "Proxy base URL including /v1")
	token := flag.String("token", "", "Kimi access token (defaults to KIMI_TOKEN)")
	stream := flag.Bool("stream", false, "Use a streaming request")
	listModels := flag.Bool("list-models", false, "List advertised models and exit")
	debugToken := flag.Bool("debug-token", false, "Print token debugging information")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall request timeout")
	flag.Parse()

	if *token == "" {
		*token = os.Getenv("KIMI_TOKEN")
	}

	fmt.Println("Kimi proxy API tester")
	fmt.Println("----------------------------")
	fmt.Printf("Proxy: %s\n", *baseURL)
	fmt.Printf("Model: %s\n", *model)
	fmt.Printf("Token: %s\n", utils.MaskToken(*token))

	if *debugToken {
		DisplayTokenAnalysis(os.Stdout, *token)
	}

	cfg := openai.DefaultConfig(*token)
	cfg.BaseURL = *baseURL
	client := openai.NewClientWithConfig(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if *listModels {
		if err := printModels(ctx, client, os.Stdout); err != nil {
			log.Fatal("list models failed", "err", err)
		}
		return
	}

	req := openai.ChatCompletionRequest{
		Model: *model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: *prompt},
		},
	}

	fmt.Printf("\nPrompt: %s\n", *prompt)
	fmt.Println("Response:")
	fmt.Println("----------------------------")
	var err error
	if *stream {
		err = runStream(ctx, client, req, os.Stdout)
	} else {
		err = runCompletion(ctx, client, req, os.Stdout)
	}
	if err != nil {
		log.Fatal("request failed", "err", err)
	}
	fmt.Println("----------------------------")
}

func printModels(ctx context.Context, client *openai.Client, w io.Writer) error {
	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models.Models {
		fmt.Fprintf(w, "- %s (%s)\n", m.ID, m.OwnedBy)
	}
	return nil
}

func runCompletion(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest, w io.Writer) error {
	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		return describeError(err)
	}
	if len(resp.Choices) == 0 {
		return errors.New("response has no choices")
	}
	fmt.Fprintln(w, resp.Choices[0].Message.Content)
	fmt.Fprintf(w, "\nid=%s finish_reason=%s usage=%d/%d/%d characters\n",
		resp.ID, resp.Choices[0].FinishReason,
		resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	return nil
}

func runStream(ctx context.Context, client *openai.Client, req openai.ChatCompletionRequest, w io.Writer) error {
	req.Stream = true
	stream, err := client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return describeError(err)
	}
	defer stream.Close()

	chunks := 0
	var finish openai.FinishReason
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("stream broke after %d chunks: %w", chunks, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		fmt.Fprint(w, chunk.Choices[0].Delta.Content)
		if chunk.Choices[0].FinishReason != "" {
			finish = chunk.Choices[0].FinishReason
		}
		chunks++
	}
	fmt.Fprintf(w, "\n\nchunks=%d finish_reason=%s\n", chunks, finish)
	return nil
}

// describeError adds the proxy's error code to go-openai errors.
func describeError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("HTTP %d %v: %s", apiErr.HTTPStatusCode, apiErr.Code, apiErr.Message)
	}
	return err
}
