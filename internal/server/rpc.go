package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/copyleftdev/evogen/internal/errors"
	"github.com/copyleftdev/evogen/internal/optimization"
	"github.com/copyleftdev/evogen/internal/optimization/problems"
	"github.com/copyleftdev/evogen/internal/store"
)

// JSON-RPC 2.0 error codes
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
	rpcNotFound       = -32001
	rpcConflict       = -32002
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

type runIDParams struct {
	RunID string `json:"run_id"`
}

type historyParams struct {
	Algorithm string `json:"algorithm"`
	Problem   string `json:"problem"`
	Limit     int    `json:"limit"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil, err)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID, nil)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch request.Method {
	case "run.start":
		var req RunRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.start(req)
		}
	case "run.status":
		result, err = s.withRunID(request.Params, s.status)
	case "run.pause":
		result, err = s.withRunID(request.Params, s.pause)
	case "run.resume":
		result, err = s.withRunID(request.Params, s.resume)
	case "run.stop":
		result, err = s.withRunID(request.Params, s.stop)
	case "run.cancel":
		result, err = s.withRunID(request.Params, s.cancelRun)
	case "run.list":
		result = s.list()
	case "problems.list":
		result = problems.Names()
	case "history.list":
		var p historyParams
		if len(bytes.TrimSpace(request.Params)) > 0 {
			err = decodeParams(request.Params, &p)
		}
		if err == nil && p.Limit < 0 {
			err = optimization.ConfigErrorf("limit must not be negative, got %d", p.Limit).WithComponent("rpc")
		}
		if err == nil {
			result, err = s.history(store.Filter{Algorithm: p.Algorithm, Problem: p.Problem, Limit: p.Limit})
		}
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		code, message := rpcCode(err)
		s.respondWithError(w, code, message, request.ID, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

func (s *Server) withRunID(raw json.RawMessage, action func(id string) (RunStatus, error)) (interface{}, error) {
	var p runIDParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	if p.RunID == "" {
		return nil, optimization.ConfigErrorf("run_id is required").WithComponent("rpc")
	}
	return action(p.RunID)
}

// decodeParams accepts params as an object or as an array holding one
// object.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return optimization.ConfigErrorf("missing required parameters").WithComponent("rpc")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return optimization.ConfigErrorf("invalid parameters: %v", err).WithComponent("rpc")
		}
		if len(list) != 1 {
			return optimization.ConfigErrorf("expected one parameter object, got %d", len(list)).WithComponent("rpc")
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return optimization.ConfigErrorf("invalid parameters: %v", err).WithComponent("rpc")
	}
	return nil
}

func rpcCode(err error) (int, string) {
	switch apperrors.HTTPStatus(err) {
	case http.StatusBadRequest:
		return rpcInvalidParams, "Invalid params"
	case http.StatusNotFound:
		return rpcNotFound, "Run not found"
	case http.StatusConflict:
		return rpcConflict, "Conflict"
	default:
		return rpcServerError, "Server error"
	}
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, cause error) {
	e := rpcError{Code: code, Message: message}
	fields := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if cause != nil {
		e.Data = cause.Error()
		fields["error"] = cause.Error()
	}
	if code == rpcServerError {
		s.logger.Error("RPC request failed", fields)
	} else {
		s.logger.Debug("RPC request rejected", fields)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   e,
		"id":      id,
	})
}
