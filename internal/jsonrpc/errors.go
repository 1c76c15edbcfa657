package jsonrpc

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received by the server.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON sent is not a valid Request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist / is not available.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
)

// Implementation-defined server error codes (-32000 to -32099).
const (
	// ErrorCodeRequestTimeout indicates a request did not complete before its deadline.
	ErrorCodeRequestTimeout ErrorCode = -32001
	// ErrorCodeRequestCancelled indicates the request was cancelled before completion.
	ErrorCodeRequestCancelled ErrorCode = -32800
	// ErrorCodeNotInitialized indicates a request arrived before the handshake completed.
	ErrorCodeNotInitialized ErrorCode = -32002
)
