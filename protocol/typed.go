package protocol

import (
	"context"
	"encoding/json"
	"fmt"
)

// Call sends a request and decodes the result into R. A result that does not
// decode fails with ErrParse.
func Call[R any](ctx context.Context, p *Protocol, method string, params any, opts ...RequestOption) (*R, error) {
	raw, err := p.Request(ctx, method, params, opts...)
	if err != nil {
		return nil, err
	}
	var out R
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("%s result: %w: %w", method, ErrParse, err)
		}
	}
	return &out, nil
}

// HandleRequest installs a handler that receives decoded params. Params that
// do not decode are answered with an invalid-params error.
func HandleRequest[P, R any](p *Protocol, method string, fn func(ctx context.Context, params *P) (*R, error)) {
	if fn == nil {
		panic("protocol: nil request handler for " + method)
	}
	p.SetRequestHandler(method, func(ctx context.Context, raw json.RawMessage) (any, error) {
		params, err := decodeParams[P](raw)
		if err != nil {
			return nil, err
		}
		res, err := fn(ctx, params)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return struct{}{}, nil
		}
		return res, nil
	})
}

// HandleNotification installs a handler that receives decoded params.
func HandleNotification[P any](p *Protocol, method string, fn func(ctx context.Context, params *P) error) {
	if fn == nil {
		panic("protocol: nil notification handler for " + method)
	}
	p.SetNotificationHandler(method, func(ctx context.Context, raw json.RawMessage) error {
		params, err := decodeParams[P](raw)
		if err != nil {
			return err
		}
		return fn(ctx, params)
	})
}

func decodeParams[P any](raw json.RawMessage) (*P, error) {
	var params P
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
		}
	}
	return &params, nil
}
