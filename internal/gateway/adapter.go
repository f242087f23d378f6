// Package gateway bridges tool invocations to the analysis service:
// it validates arguments, builds the upstream request, dispatches through
// the resilient client, and normalizes the response per operation.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/compresr-ai/semantic-gateway/internal/upstream"
)

const (
	analyzePath = "/analyze_sync"

	defaultCompressionRatio   = 0.5
	defaultSemanticSimilarity = 0.8
)

// AnalysisParams are the tuning knobs forwarded to the analysis service.
// Lower compression ratio allows more aggressive shortening; higher
// semantic similarity bounds how much meaning may be lost.
type AnalysisParams struct {
	MinCompressionRatio   float64 `json:"min_compression_ratio"`
	MinSemanticSimilarity float64 `json:"min_semantic_similarity"`
}

// AnalysisRequest is the upstream request body for /analyze_sync.
type AnalysisRequest struct {
	EssayText string         `json:"essay_text"`
	Params    AnalysisParams `json:"params"`
}

type Adapter struct {
	client      *upstream.Client
	rawResponse bool
	logger      *slog.Logger
}

func New(client *upstream.Client, rawResponse bool, logger *slog.Logger) *Adapter {
	return &Adapter{
		client:      client,
		rawResponse: rawResponse,
		logger:      logger,
	}
}

// AnalyzeText runs the full semantic analysis and returns the entire
// upstream JSON body.
func (a *Adapter) AnalyzeText(ctx context.Context, args map[string]any) (string, *OpError) {
	req, verr := parseArgs(args)
	if verr != nil {
		return "", verr
	}

	resp, err := a.client.Post(ctx, analyzePath, req)
	if err != nil {
		return "", classifyUpstream(err)
	}
	return string(resp.Body), nil
}

// SemanticCompression runs the same analysis but returns only the
// compressed text, tolerating both known upstream payload shapes. When
// the adapter is configured for raw responses it returns the full JSON
// body instead.
func (a *Adapter) SemanticCompression(ctx context.Context, args map[string]any) (string, *OpError) {
	req, verr := parseArgs(args)
	if verr != nil {
		return "", verr
	}

	resp, err := a.client.Post(ctx, analyzePath, req)
	if err != nil {
		return "", classifyUpstream(err)
	}

	if a.rawResponse {
		return string(resp.Body), nil
	}

	text, ok := extractSuggestedText(resp.Body)
	if !ok {
		a.logger.Error("no compressed text found in upstream payload",
			"body_bytes", len(resp.Body))
		return "", &OpError{
			Class:   ClassShape,
			Message: "unexpected response structure from the analysis service",
		}
	}
	return text, nil
}

// Proxy forwards an already-shaped /analyze_sync body to the upstream,
// optionally overriding the process-wide API key for this request.
func (a *Adapter) Proxy(ctx context.Context, body json.RawMessage, apiKey string) ([]byte, *OpError) {
	var opts []upstream.CallOption
	if apiKey != "" {
		opts = append(opts, upstream.WithAPIKey(apiKey))
	}
	resp, err := a.client.Post(ctx, analyzePath, body, opts...)
	if err != nil {
		return nil, classifyUpstream(err)
	}
	return resp.Body, nil
}

// parseArgs validates the tool arguments and builds the upstream request.
// All failures here are validation-class errors raised before any network
// call is made.
func parseArgs(args map[string]any) (*AnalysisRequest, *OpError) {
	raw, ok := args["text"]
	if !ok {
		return nil, validationError("text is required")
	}
	text, ok := raw.(string)
	if !ok {
		return nil, validationError("text must be a string, got %T", raw)
	}
	if text == "" {
		return nil, validationError("text must be a non-empty string")
	}

	ratio, verr := numberArg(args, "min_compression_ratio", defaultCompressionRatio)
	if verr != nil {
		return nil, verr
	}
	similarity, verr := numberArg(args, "min_semantic_similarity", defaultSemanticSimilarity)
	if verr != nil {
		return nil, verr
	}

	return &AnalysisRequest{
		EssayText: text,
		Params: AnalysisParams{
			MinCompressionRatio:   ratio,
			MinSemanticSimilarity: similarity,
		},
	}, nil
}

func numberArg(args map[string]any, name string, def float64) (float64, *OpError) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return def, nil
	}

	var value float64
	switch n := raw.(type) {
	case float64:
		value = n
	case int:
		value = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, validationError("%s must be a number", name)
		}
		value = f
	default:
		return 0, validationError("%s must be a number, got %T", name, raw)
	}

	if value < 0 || value > 1 {
		return 0, validationError("%s must be between 0 and 1", name)
	}
	return value, nil
}
