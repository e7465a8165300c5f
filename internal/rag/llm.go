package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/arpanauts/biomapper-sub002/internal/config"
	"github.com/arpanauts/biomapper-sub002/internal/logging"
)

// Arbitration is the parsed form of the LLM's structured-output response,
// per spec.md §6's wire format {selected_cid, confidence, rationale}.
type Arbitration struct {
	SelectedCID *int64
	Confidence  string
	Rationale   string
}

// LLMProvider submits a name and its candidate annotations to an LLM and
// parses back a structured arbitration.
type LLMProvider interface {
	Arbitrate(ctx context.Context, name string, candidates []Annotation) (*Arbitration, error)
}

// NewLLMProvider selects an LLMProvider by cfg.LLMProvider, mirroring the
// teacher's provider-switch factory (internal/services/mira_service.go).
func NewLLMProvider(cfg config.RAGConfig, logger logging.Logger) (LLMProvider, error) {
	switch strings.ToLower(cfg.LLMProvider) {
	case "", "anthropic":
		return newAnthropicProvider(cfg, logger)
	case "http", "ollama", "vllm":
		return newHTTPProvider(cfg, logger), nil
	default:
		return nil, fmt.Errorf("rag: unsupported llm provider %q", cfg.LLMProvider)
	}
}

type rawArbitration struct {
	SelectedCID json.Number     `json:"selected_cid"`
	Confidence  json.RawMessage `json:"confidence"`
	Rationale   string          `json:"rationale"`
}

func arbitrationPrompt(name string, candidates []Annotation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are matching a biochemical name to the correct PubChem CID.\n\n")
	fmt.Fprintf(&b, "Name: %q\n\nCandidates:\n", name)
	for _, c := range candidates {
		fmt.Fprintf(&b, "- CID %s (similarity %.2f): title=%q iupac=%q formula=%q\n", c.CID, c.Certainty, c.Title, c.IUPACName, c.Formula)
	}
	b.WriteString("\nRespond with ONLY a JSON object: {\"selected_cid\": <int or null>, \"confidence\": \"high\"|\"medium\"|\"low\"|\"none\", \"rationale\": \"<one sentence>\"}.\n")
	return b.String()
}

func parseArbitration(text string) (*Arbitration, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON object found in llm response")
	}
	var raw rawArbitration
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("parse llm response: %w", err)
	}
	out := &Arbitration{Confidence: strings.Trim(string(raw.Confidence), `"`), Rationale: raw.Rationale}
	if raw.SelectedCID.String() != "" && raw.SelectedCID.String() != "null" {
		if v, err := raw.SelectedCID.Int64(); err == nil {
			out.SelectedCID = &v
		}
	}
	return out, nil
}

/* --------------------------- Anthropic provider --------------------------- */

type anthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

func newAnthropicProvider(cfg config.RAGConfig, logger logging.Logger) (*anthropicProvider, error) {
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("rag: anthropic api key is required")
	}
	model := cfg.LLMModelName
	if model == "" {
		model = string(anthropic.ModelClaude3_5HaikuLatest)
	}
	return &anthropicProvider{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.LLMAPIKey)),
		model:       model,
		maxTokens:   int64(cfg.LLMMaxTokens),
		temperature: cfg.LLMTemperature,
	}, nil
}

func (p *anthropicProvider) Arbitrate(ctx context.Context, name string, candidates []Annotation) (*Arbitration, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(arbitrationPrompt(name, candidates))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	if len(msg.Content) == 0 {
		return nil, fmt.Errorf("anthropic returned no content")
	}
	return parseArbitration(msg.Content[0].Text)
}

/* --------------------------- generic HTTP provider --------------------------- */

// httpProvider targets self-hosted OpenAI-compatible or Ollama-style
// endpoints, modeled on the teacher's internal/services/mira_provider_ollama.go.
type httpProvider struct {
	client   *http.Client
	endpoint string
	model    string
}

func newHTTPProvider(cfg config.RAGConfig, logger logging.Logger) *httpProvider {
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpProvider{
		client:   &http.Client{Timeout: timeout},
		endpoint: cfg.LLMEndpoint,
		model:    cfg.LLMModelName,
	}
}

func (p *httpProvider) Arbitrate(ctx context.Context, name string, candidates []Annotation) (*Arbitration, error) {
	reqBody := map[string]any{
		"model":  p.model,
		"prompt": arbitrationPrompt(name, candidates),
		"stream": false,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm http provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("llm http provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode llm response: %w", err)
	}
	return parseArbitration(out.Response)
}
