package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/compresr-ai/semantic-gateway/internal/config"
	"github.com/compresr-ai/semantic-gateway/internal/gateway"
)

// maxBodyBytes bounds inbound request bodies. Essays are large but not
// unbounded.
const maxBodyBytes = 10 << 20

// handleAnalyzeSync proxies the request body straight to the upstream
// analysis endpoint. An X-API-Key header overrides the process-wide
// credential for this request only.
func (s *Server) handleAnalyzeSync(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}

	result, opErr := s.adapter.Proxy(r.Context(), body, r.Header.Get("X-API-Key"))
	if opErr != nil {
		s.logger.Error("proxy request failed", "class", opErr.Class, "error", opErr.Message)
		writeOpError(w, opErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":    "ok",
		"service":   config.ServiceName,
		"version":   config.ServiceVersion,
		"transport": "http",
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// writeOpError maps adapter error classes onto proxy response statuses.
func writeOpError(w http.ResponseWriter, opErr *gateway.OpError) {
	status := http.StatusBadGateway
	switch opErr.Class {
	case gateway.ClassValidation:
		status = http.StatusBadRequest
	case gateway.ClassRateLimited:
		status = http.StatusTooManyRequests
		if opErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", formatSeconds(opErr.RetryAfter))
		}
	case gateway.ClassAuth:
		status = http.StatusUnauthorized
	case gateway.ClassNetwork:
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, opErr.Message)
}

func formatSeconds(d time.Duration) string {
	secs := int((d + time.Second - 1) / time.Second)
	return strconv.Itoa(secs)
}
