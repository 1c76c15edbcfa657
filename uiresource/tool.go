package uiresource

import (
	"fmt"

	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
	"github.com/invopop/jsonschema"
)

// ToolOption configures a tool descriptor built by NewTool.
type ToolOption func(*toolConfig)

type toolConfig struct {
	title           string
	description     string
	allowAdditional bool
}

// WithToolTitle sets the human-readable title.
func WithToolTitle(title string) ToolOption {
	return func(c *toolConfig) { c.title = title }
}

// WithToolDescription sets the tool description.
func WithToolDescription(desc string) ToolOption {
	return func(c *toolConfig) { c.description = desc }
}

// WithToolAllowAdditionalProperties controls whether arguments outside A's
// fields are accepted.
func WithToolAllowAdditionalProperties(allow bool) ToolOption {
	return func(c *toolConfig) { c.allowAdditional = allow }
}

// NewTool describes a tool whose arguments have the shape of A and whose
// result is rendered by the App at resourceURI. Both metadata keys are set.
func NewTool[A any](name, resourceURI string, opts ...ToolOption) (mcp.Tool, error) {
	if err := validateURI(resourceURI); err != nil {
		return mcp.Tool{}, err
	}
	var cfg toolConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return mcp.Tool{
		Name:        name,
		Title:       cfg.title,
		Description: cfg.description,
		InputSchema: reflectInputSchema[A](cfg.allowAdditional),
		Meta: NormalizeToolMeta(map[string]any{
			mcpui.MetaKeyUI: map[string]any{mcpui.MetaKeyResourceURI: resourceURI},
		}),
	}, nil
}

func reflectInputSchema[A any](allowAdditional bool) mcp.ToolInputSchema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditional,
	}
	s := r.Reflect(new(A))

	schema := mcp.ToolInputSchema{
		Type:                 "object",
		Properties:           map[string]mcp.SchemaProperty{},
		AdditionalProperties: allowAdditional,
	}
	if s == nil || s.Type != "object" {
		return schema
	}
	if s.Properties != nil {
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			schema.Properties[el.Key] = toProperty(el.Value)
		}
	}
	if len(s.Required) > 0 {
		schema.Required = append([]string(nil), s.Required...)
	}
	return schema
}

func toProperty(s *jsonschema.Schema) mcp.SchemaProperty {
	if s == nil {
		return mcp.SchemaProperty{}
	}
	p := mcp.SchemaProperty{
		Type:        s.Type,
		Description: s.Description,
	}
	if len(s.Enum) > 0 {
		p.Enum = s.Enum
	}
	if s.Type == "array" && s.Items != nil {
		item := toProperty(s.Items)
		p.Items = &item
	}
	if s.Type == "object" && s.Properties != nil {
		p.Properties = make(map[string]mcp.SchemaProperty, s.Properties.Len())
		for el := s.Properties.Oldest(); el != nil; el = el.Next() {
			p.Properties[el.Key] = toProperty(el.Value)
		}
	}
	return p
}

func validateURI(uri string) error {
	if len(uri) <= len(mcpui.ResourceURIScheme) || uri[:len(mcpui.ResourceURIScheme)] != mcpui.ResourceURIScheme {
		return fmt.Errorf("uiresource: resource uri %q must start with %s", uri, mcpui.ResourceURIScheme)
	}
	return nil
}
