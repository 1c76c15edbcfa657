package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RequestID is a request id on the wire. Both ends of a UI connection
// allocate integer ids; string ids are accepted from peers. Fractional,
// exponent and out-of-range numbers are rejected rather than rounded, so a
// response always echoes exactly the id that was sent.
type RequestID struct {
	set   bool
	isStr bool
	num   int64
	str   string
}

// NewRequestID creates an integer or string id.
func NewRequestID[T int64 | string](v T) *RequestID {
	switch v := any(v).(type) {
	case string:
		return &RequestID{set: true, isStr: true, str: v}
	case int64:
		return &RequestID{set: true, num: v}
	}
	return &RequestID{}
}

// String returns the id as text; empty for a missing id.
func (id *RequestID) String() string {
	switch {
	case id == nil || !id.set:
		return ""
	case id.isStr:
		return id.str
	default:
		return strconv.FormatInt(id.num, 10)
	}
}

// Key returns a string usable for correlating responses with requests.
// Numeric and string ids share a namespace, which is sufficient because a
// sender only ever correlates ids it allocated itself.
func (id *RequestID) Key() string {
	return id.String()
}

// Value returns the id as an int64 or a string, or nil when missing.
func (id *RequestID) Value() any {
	switch {
	case id == nil || !id.set:
		return nil
	case id.isStr:
		return id.str
	default:
		return id.num
	}
}

// IsNil reports whether the id is missing or null.
func (id *RequestID) IsNil() bool {
	return id == nil || !id.set
}

// MarshalJSON implements json.Marshaler.
func (id *RequestID) MarshalJSON() ([]byte, error) {
	switch {
	case id == nil || !id.set:
		return []byte("null"), nil
	case id.isStr:
		return json.Marshal(id.str)
	default:
		return strconv.AppendInt(nil, id.num, 10), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *RequestID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*id = RequestID{}

	switch {
	case bytes.Equal(data, []byte("null")):
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("%w: request id: %w", ErrInvalidMessage, err)
		}
		*id = RequestID{set: true, isStr: true, str: s}
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: request id must be a string or an integer, got %s", ErrInvalidMessage, data)
	}
	*id = RequestID{set: true, num: n}
	return nil
}
