package server

import (
	"encoding/json"
	"net/http"

	"github.com/compresr-ai/semantic-gateway/internal/config"
	"github.com/compresr-ai/semantic-gateway/internal/gateway"
)

// JSON-RPC 2.0 replica of the tool-invocation protocol, served on POST /
// so HTTP-only integrations can speak the same methods as the stdio
// transport.

const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32603

	protocolVersion = "2024-11-05"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type toolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type callResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeRPC(w, rpcResponse{
			JSONRPC: "2.0",
			Error:   &rpcError{Code: rpcParseError, Message: "parse error"},
		})
		return
	}
	defer r.Body.Close()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}

	if req.JSONRPC != "2.0" || req.Method == "" {
		resp.Error = &rpcError{Code: rpcInvalidRequest, Message: "invalid request"}
		writeRPC(w, resp)
		return
	}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo": map[string]any{
				"name":    config.ServiceName,
				"version": config.ServiceVersion,
			},
		}

	case "tools/list":
		descriptors := make([]toolDescriptor, 0)
		for _, t := range s.registry.List() {
			descriptors = append(descriptors, toolDescriptor{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.Schema,
			})
		}
		resp.Result = map[string]any{"tools": descriptors}

	case "tools/call":
		resp = s.handleToolCall(r, req, resp)

	default:
		resp.Error = &rpcError{Code: rpcMethodNotFound, Message: "method not found: " + req.Method}
	}

	writeRPC(w, resp)
}

func (s *Server) handleToolCall(r *http.Request, req rpcRequest, resp rpcResponse) rpcResponse {
	var params callParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		resp.Error = &rpcError{Code: rpcInvalidParams, Message: "params must include a tool name"}
		return resp
	}

	out, opErr := s.registry.Dispatch(r.Context(), params.Name, params.Arguments)
	if opErr != nil {
		// Validation and unknown-tool failures are protocol-level
		// errors; upstream failures travel in the result channel
		// flagged as errors.
		switch opErr.Class {
		case gateway.ClassNotFound:
			resp.Error = &rpcError{Code: rpcMethodNotFound, Message: opErr.Message}
		case gateway.ClassValidation:
			resp.Error = &rpcError{Code: rpcInvalidParams, Message: opErr.Message}
		default:
			resp.Result = callResult{
				Content: []contentBlock{{Type: "text", Text: opErr.Message}},
				IsError: true,
			}
		}
		return resp
	}

	resp.Result = callResult{
		Content: []contentBlock{{Type: "text", Text: out}},
	}
	return resp
}

func writeRPC(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
