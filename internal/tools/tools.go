// Package tools declares the gateway's tool surface: the named
// operations, their JSON-schema parameters, and dispatch by name.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/compresr-ai/semantic-gateway/internal/gateway"
	"github.com/compresr-ai/semantic-gateway/internal/metrics"
)

const (
	AnalyzeText         = "analyze_text"
	SemanticCompression = "semantic_compression"
)

// paramsSchema is shared by both tools: a required text plus two optional
// bounded ratios.
const paramsSchema = `{
	"type": "object",
	"properties": {
		"text": {
			"type": "string",
			"description": "The text to analyze"
		},
		"min_compression_ratio": {
			"type": "number",
			"description": "Lower bound on the compression ratio; lower values allow more aggressive shortening",
			"minimum": 0,
			"maximum": 1,
			"default": 0.5
		},
		"min_semantic_similarity": {
			"type": "number",
			"description": "Lower bound on semantic similarity between the original and compressed text",
			"minimum": 0,
			"maximum": 1,
			"default": 0.8
		}
	},
	"required": ["text"]
}`

// Handler executes a tool against already-decoded arguments.
type Handler func(ctx context.Context, args map[string]any) (string, *gateway.OpError)

type Tool struct {
	Name        string
	Description string
	// Schema is the JSON-schema declaration of the tool parameters,
	// exposed verbatim over both transports.
	Schema  json.RawMessage
	Handler Handler

	compiled *gojsonschema.Schema
}

type Registry struct {
	tools map[string]*Tool
	order []string
}

func NewRegistry(adapter *gateway.Adapter) (*Registry, error) {
	r := &Registry{tools: make(map[string]*Tool)}

	defs := []*Tool{
		{
			Name:        AnalyzeText,
			Description: "Run full semantic analysis on a text and return the complete analysis payload, including semantic categories and the suggested compressed text.",
			Schema:      json.RawMessage(paramsSchema),
			Handler:     adapter.AnalyzeText,
		},
		{
			Name:        SemanticCompression,
			Description: "Compress a text while preserving its meaning and return only the compressed text.",
			Schema:      json.RawMessage(paramsSchema),
			Handler:     adapter.SemanticCompression,
		},
	}

	for _, t := range defs {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(t.Schema))
		if err != nil {
			return nil, fmt.Errorf("compiling schema for %s: %w", t.Name, err)
		}
		t.compiled = compiled
		r.tools[t.Name] = t
		r.order = append(r.order, t.Name)
	}

	return r, nil
}

// List returns the tools in registration order.
func (r *Registry) List() []*Tool {
	out := make([]*Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Get(name string) (*Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Dispatch validates rawArgs against the tool's declared schema and runs
// its handler. Unknown names and schema violations are reported before
// any upstream call is attempted.
func (r *Registry) Dispatch(ctx context.Context, name string, rawArgs json.RawMessage) (string, *gateway.OpError) {
	t, ok := r.tools[name]
	if !ok {
		metrics.ToolCalls.WithLabelValues(name, string(gateway.ClassNotFound)).Inc()
		return "", &gateway.OpError{
			Class:   gateway.ClassNotFound,
			Message: fmt.Sprintf("unknown tool: %s", name),
		}
	}

	if len(rawArgs) == 0 {
		rawArgs = json.RawMessage(`{}`)
	}

	result, err := t.compiled.Validate(gojsonschema.NewBytesLoader(rawArgs))
	if err != nil {
		metrics.ToolCalls.WithLabelValues(name, string(gateway.ClassValidation)).Inc()
		return "", &gateway.OpError{
			Class:   gateway.ClassValidation,
			Message: fmt.Sprintf("invalid arguments: %v", err),
		}
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			msgs = append(msgs, desc.String())
		}
		metrics.ToolCalls.WithLabelValues(name, string(gateway.ClassValidation)).Inc()
		return "", &gateway.OpError{
			Class:   gateway.ClassValidation,
			Message: "invalid arguments: " + strings.Join(msgs, "; "),
		}
	}

	var args map[string]any
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		metrics.ToolCalls.WithLabelValues(name, string(gateway.ClassValidation)).Inc()
		return "", &gateway.OpError{
			Class:   gateway.ClassValidation,
			Message: fmt.Sprintf("arguments must be a JSON object: %v", err),
		}
	}

	out, opErr := t.Handler(ctx, args)
	if opErr != nil {
		metrics.ToolCalls.WithLabelValues(name, string(opErr.Class)).Inc()
		return "", opErr
	}
	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	return out, nil
}

// DispatchArgs runs a tool against an already-decoded argument map,
// bypassing schema validation. The MCP transport decodes and validates
// arguments itself, so it feeds maps straight to the handlers.
func (r *Registry) DispatchArgs(ctx context.Context, name string, args map[string]any) (string, *gateway.OpError) {
	t, ok := r.tools[name]
	if !ok {
		metrics.ToolCalls.WithLabelValues(name, string(gateway.ClassNotFound)).Inc()
		return "", &gateway.OpError{
			Class:   gateway.ClassNotFound,
			Message: fmt.Sprintf("unknown tool: %s", name),
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	out, opErr := t.Handler(ctx, args)
	if opErr != nil {
		metrics.ToolCalls.WithLabelValues(name, string(opErr.Class)).Inc()
		return "", opErr
	}
	metrics.ToolCalls.WithLabelValues(name, "ok").Inc()
	return out, nil
}
