package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Ollama calls the non-streaming /api/chat endpoint of an Ollama server.
type Ollama struct {
	baseURL     string
	temperature float64
	http        *http.Client
}

// NewOllama returns a gateway for the server at baseURL.  The request
// deadline comes from the caller's context.
func NewOllama(baseURL string, temperature float64) *Ollama {
	return &Ollama{
		baseURL:     strings.TrimRight(baseURL, "/"),
		temperature: temperature,
		http:        &http.Client{},
	}
}

type ollamaRequest struct {
	Model    string        `json:"model"`
	Messages []Turn        `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  ollamaOptions `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaResponse struct {
	Message Turn   `json:"message"`
	Done    bool   `json:"done"`
	Error   string `json:"error,omitempty"`
}

func (o *Ollama) Generate(ctx context.Context, model string, history []Turn) (Reply, error) {
	body, err := json.Marshal(ollamaRequest{
		Model:    model,
		Messages: history,
		Options:  ollamaOptions{Temperature: o.temperature},
	})
	if err != nil {
		return Reply{}, &Error{Kind: KindRemote, Model: model, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return Reply{}, &Error{Kind: KindRemote, Model: model, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.http.Do(req)
	if err != nil {
		return Reply{}, classify(model, err)
	}
	defer resp.Body.Close()

	var out ollamaResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&out)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Reply{}, &Error{Kind: KindUnsupportedModel, Model: model, Err: fmt.Errorf("ollama: model %q not found", model)}
	case resp.StatusCode != http.StatusOK:
		msg := out.Error
		if msg == "" {
			msg = resp.Status
		}
		return Reply{}, &Error{Kind: KindRemote, Model: model, Err: fmt.Errorf("ollama: %s", msg)}
	case decodeErr != nil:
		return Reply{}, classify(model, decodeErr)
	case strings.TrimSpace(out.Message.Content) == "":
		return Reply{}, &Error{Kind: KindRemote, Model: model, Err: fmt.Errorf("ollama: empty reply")}
	}
	return Reply{Text: out.Message.Content, Elapsed: time.Since(start)}, nil
}
