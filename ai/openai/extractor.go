// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/poiesic/docflow/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DocumentExtractor implements ai.DocumentExtractor using OpenAI-compatible
// chat APIs with document-retrieval capability.
type DocumentExtractor struct {
	client llms.Model
	logger *slog.Logger
}

// item is an internal type used for JSON unmarshaling.
// It matches the structure expected from the LLM.
type item struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Content     string         `json:"content"`
	Attributes  map[string]any `json:"attributes"`
}

// extraction is the wrapper structure for the LLM's JSON response.
type extraction struct {
	RawContent string  `json:"raw_content"`
	Products   []item  `json:"products"`
	Services   []item  `json:"services"`
	ErrorCode  string  `json:"error,omitempty"`
	ErrorDesc  string  `json:"error_description,omitempty"`
	Language   string  `json:"language,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Error codes the provider reports for documents it cannot process.
// These are structural: retrying the same document cannot succeed.
const (
	errCodeUnsupportedContent = "unsupported_content"
	errCodeUnreachableSource  = "unreachable_source"
	errCodeMalformedDocument  = "malformed_document"
)

// newDocumentExtractor is an internal constructor that returns the
// concrete type. Used by Provider to manage the instance.
func newDocumentExtractor(config *ai.Config) (*DocumentExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.ExtractionHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.ExtractionModel),
	)
	if err != nil {
		return nil, err
	}

	return &DocumentExtractor{
		client: client,
		logger: slog.Default().With("component", "openai-extractor"),
	}, nil
}

// NewDocumentExtractor creates a new document extractor using the provided
// configuration.
//
// Returns ai.DocumentExtractor interface to enforce abstraction.
func NewDocumentExtractor(config *ai.Config) (ai.DocumentExtractor, error) {
	return newDocumentExtractor(config)
}

// Extract analyzes the document behind req.SourceURL and returns its raw
// content together with the structured products and services it describes.
func (e *DocumentExtractor) Extract(ctx context.Context, req ai.ExtractionRequest) (*ai.ExtractionResult, error) {
	categories := req.TargetCategories
	if len(categories) == 0 {
		categories = ai.DefaultTargetCategories
	}

	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{
				llms.TextPart(buildExtractionPrompt(req.Industry, categories)),
			},
		},
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(buildDocumentMessage(req)),
			},
		},
	}

	// Try up to 3 times in case of malformed JSON
	var result extraction
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		response, err := e.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			e.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return nil, ai.NewTransientError("inference call failed", err)
		}

		if len(response.Choices) < 1 {
			e.logger.Debug("no choices returned from model")
			return nil, ai.NewTransientError("no choices returned from model", nil)
		}

		choice := response.Choices[0]

		// Strip markdown code fences if present
		responseText := strings.TrimSpace(choice.Content)
		responseText = strings.TrimPrefix(responseText, "```json")
		responseText = strings.TrimPrefix(responseText, "```")
		responseText = strings.TrimSuffix(responseText, "```")
		responseText = strings.TrimSpace(responseText)

		// Try to repair common JSON issues
		responseText = repairJSON(responseText)

		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			e.logger.Warn("error parsing extractor response",
				"attempt", attempt+1,
				"source", req.SourceURL,
				"err", err)
			continue
		}

		// Success
		lastErr = nil
		break
	}

	if lastErr != nil {
		e.logger.Error("failed to parse extractor response after retries", "err", lastErr)
		return nil, ai.NewTransientError("malformed extractor response", lastErr)
	}

	if result.ErrorCode != "" {
		return nil, e.mapProviderError(req.SourceURL, result.ErrorCode, result.ErrorDesc)
	}

	return &ai.ExtractionResult{
		RawContent: result.RawContent,
		Products:   convertItems(result.Products),
		Services:   convertItems(result.Services),
		Metadata: map[string]any{
			"language":   result.Language,
			"confidence": result.Confidence,
		},
	}, nil
}

// mapProviderError classifies provider-reported error codes. Unknown
// codes are treated as transient so the worker's bounded retry applies.
func (e *DocumentExtractor) mapProviderError(sourceURL, code, desc string) error {
	reason := code
	if desc != "" {
		reason = code + ": " + desc
	}
	switch code {
	case errCodeUnsupportedContent, errCodeUnreachableSource, errCodeMalformedDocument:
		e.logger.Warn("structural extraction failure", "source", sourceURL, "code", code)
		return ai.NewStructuralError(reason)
	}
	e.logger.Warn("provider-reported extraction failure", "source", sourceURL, "code", code)
	return ai.NewTransientError(reason, nil)
}

func convertItems(items []item) []ai.ExtractedItem {
	converted := make([]ai.ExtractedItem, 0, len(items))
	for _, it := range items {
		if strings.TrimSpace(it.Name) == "" {
			continue
		}
		converted = append(converted, ai.ExtractedItem{
			Name:        strings.TrimSpace(it.Name),
			Description: strings.TrimSpace(it.Description),
			Content:     strings.TrimSpace(it.Content),
			Attributes:  it.Attributes,
		})
	}
	return converted
}
