package llm

import (
	"encoding/json"
	"strings"
)

// Message is one entry of an OpenAI chat request. Content is kept raw
// because it is either a string or a list of typed parts.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ExtractText returns the text of the last message. String content is used
// verbatim, text parts are joined with newlines, anything else is empty.
func ExtractText(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	return contentText(messages[len(messages)-1].Content)
}

func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var parts []contentPart
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.Type == "text" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n")
}
