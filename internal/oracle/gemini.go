// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package oracle

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/genai"

	"github.com/pdiddy/arxitex/internal/faults"
	"github.com/pdiddy/arxitex/pkg/types"
)

// backoffBase controls the base duration for exponential backoff on
// transient model errors. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// Gemini is the production Backend on the Gemini API. Every call runs at
// temperature zero with a JSON response schema, so the same prompt yields
// the same response shape.
type Gemini struct {
	client     *genai.Client
	model      string
	maxRetries int
}

// NewGemini builds a Gemini backend from cfg.
func NewGemini(ctx context.Context, cfg types.AIConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("gemini model is empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Gemini{client: client, model: cfg.Model, maxRetries: maxRetries}, nil
}

// Model implements Backend.
func (g *Gemini) Model() string { return g.model }

// Generate implements Backend. Rate limits, connection errors, and timeouts
// are retried with exponential backoff; other API errors fail immediately.
// Errors are classified at the source so callers see llm-stage faults.
func (g *Gemini) Generate(ctx context.Context, prompt string, schema *genai.Schema) ([]byte, error) {
	temperature := float32(0)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	contents := []*genai.Content{
		{Parts: []*genai.Part{{Text: prompt}}, Role: "user"},
	}

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
		if err != nil {
			fault := classifyModelErr(err)
			lastErr = fault
			if transient(fault.Code) {
				continue
			}
			return nil, fault
		}

		text := resp.Text()
		if text == "" {
			lastErr = faults.New(faults.CodeLLMAPIError, "model returned no text")
			continue
		}
		return []byte(text), nil
	}
	return nil, fmt.Errorf("after %d retries: %w", g.maxRetries, lastErr)
}

// transient reports whether another attempt could change the outcome.
func transient(code faults.Code) bool {
	switch code {
	case faults.CodeLLMRateLimited, faults.CodeLLMConnection, faults.CodeLLMTimeout:
		return true
	}
	return false
}

// classifyModelErr reduces a Gemini call error to an llm-stage fault.
func classifyModelErr(err error) *faults.Fault {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 {
			return faults.Wrap(faults.CodeLLMRateLimited, err, "model rate limited")
		}
		if apiErr.Code >= 400 {
			return faults.Wrap(faults.CodeLLMAPIError, err, "model API error %d", apiErr.Code)
		}
	}
	f := faults.Classify(err)
	if f.Code == faults.CodeUnexpected {
		return faults.Wrap(faults.CodeLLMAPIError, err, "model call failed")
	}
	return f
}
