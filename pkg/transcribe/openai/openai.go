// Package openai provides a transcription gateway backed by the OpenAI
// audio-transcriptions API.
package openai

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mia21com/handsfree/pkg/transcribe"
)

// defaultModel is used when no model is configured.
const defaultModel = oai.AudioModelWhisper1

// Gateway implements transcribe.Gateway using the OpenAI API.
type Gateway struct {
	client   oai.Client
	model    oai.AudioModel
	language string
}

// Compile-time check that *Gateway satisfies transcribe.Gateway.
var _ transcribe.Gateway = (*Gateway)(nil)

// config holds optional configuration for the gateway.
type config struct {
	baseURL  string
	model    string
	language string
	timeout  time.Duration
}

// Option is a functional option for Gateway.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Useful for proxies
// and for pointing tests at a local server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the transcription model (e.g., "whisper-1").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithLanguage sets the ISO-639-1 input language hint (e.g., "en").
// An empty value lets the model auto-detect.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI transcription Gateway.
func New(apiKey string, opts ...Option) (*Gateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	model := oai.AudioModel(cfg.model)
	if model == "" {
		model = defaultModel
	}

	return &Gateway{
		client:   oai.NewClient(reqOpts...),
		model:    model,
		language: cfg.language,
	}, nil
}

// Transcribe implements transcribe.Gateway.
func (g *Gateway) Transcribe(ctx context.Context, wav []byte) (transcribe.Result, error) {
	if len(wav) == 0 {
		return transcribe.Result{}, fmt.Errorf("openai: empty segment")
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "segment.wav", "audio/wav"),
		Model: g.model,
	}
	if g.language != "" {
		params.Language = oai.String(g.language)
	}

	resp, err := g.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return transcribe.Result{}, fmt.Errorf("openai: transcribe: %w", err)
	}

	return transcribe.Result{
		Text:     resp.Text,
		Language: g.language,
	}, nil
}
