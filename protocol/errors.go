package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ggoodman/mcp-apps-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-apps-go/transport"
)

var (
	// ErrParse is matched by malformed inbound messages and by results that
	// do not decode into the requested type.
	ErrParse = transport.ErrParse
	// ErrInvalidParams is returned by typed handlers whose params do not decode.
	ErrInvalidParams = errors.New("invalid params")
	// ErrMethodNotFound is matched by a RemoteError carrying -32601.
	ErrMethodNotFound = errors.New("method not found")
	// ErrCapability is matched by every CapabilityError.
	ErrCapability = errors.New("capability not supported")
	// ErrTimeout is returned when a request's timeout elapses first.
	ErrTimeout = errors.New("request timed out")
	// ErrCancelled is returned when the caller's context ends first.
	ErrCancelled = errors.New("request cancelled")
	// ErrHandshake is matched by every HandshakeError.
	ErrHandshake = errors.New("handshake failed")

	// ErrNotConnected is returned before Connect.
	ErrNotConnected = errors.New("not connected")
	// ErrNotReady is returned when sending a non-handshake message before
	// the handshake completes.
	ErrNotReady = errors.New("handshake not complete")
	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("already connected")
	// ErrClosed is returned after Close and rejects requests pending at Close.
	ErrClosed = errors.New("connection closed")
)

// CapabilityError reports a method that requires a capability which was not
// negotiated.
type CapabilityError struct {
	Method     string
	Capability string
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s requires capability %q", e.Method, e.Capability)
}

func (e *CapabilityError) Is(target error) bool { return target == ErrCapability }

// RemoteError is an error response returned by the peer.
type RemoteError struct {
	Code    jsonrpc.ErrorCode
	Message string
	Data    json.RawMessage
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Message)
}

func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrMethodNotFound:
		return e.Code == jsonrpc.ErrorCodeMethodNotFound
	case ErrInvalidParams:
		return e.Code == jsonrpc.ErrorCodeInvalidParams
	}
	return false
}

// HandshakeError wraps any failure during the initialize exchange.
type HandshakeError struct {
	Err error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake failed: %v", e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

func (e *HandshakeError) Is(target error) bool { return target == ErrHandshake }

func remoteErrorFrom(e *jsonrpc.Error) *RemoteError {
	return &RemoteError{Code: e.Code, Message: e.Message, Data: e.Data}
}

// errorResponse maps a handler error to the response sent to the peer.
func errorResponse(id *jsonrpc.RequestID, err error) *jsonrpc.Response {
	var re *RemoteError
	if errors.As(err, &re) {
		resp := jsonrpc.NewErrorResponse(id, re.Code, re.Message, nil)
		resp.Error.Data = re.Data
		return resp
	}
	var ce *CapabilityError
	if errors.As(err, &ce) {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeMethodNotFound, err.Error(), map[string]string{"method": ce.Method, "capability": ce.Capability})
	}
	switch {
	case errors.Is(err, ErrInvalidParams):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, ErrMethodNotFound):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeMethodNotFound, err.Error(), nil)
	case errors.Is(err, ErrCancelled):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeRequestCancelled, err.Error(), nil)
	case errors.Is(err, ErrTimeout):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeRequestTimeout, err.Error(), nil)
	}
	return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, err.Error(), nil)
}
