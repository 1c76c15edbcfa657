package uiresource

import (
	"strings"

	"github.com/elnormous/contenttype"
	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
)

// ResourceOption configures a resource descriptor built by NewResource.
type ResourceOption func(*mcp.Resource)

// WithResourceDescription sets the resource description.
func WithResourceDescription(desc string) ResourceOption {
	return func(r *mcp.Resource) { r.Description = desc }
}

// WithCSP declares the origins the App needs to reach.
func WithCSP(csp mcpui.ResourceCSP) ResourceOption {
	return func(r *mcp.Resource) { setUIMeta(r, "csp", csp) }
}

// WithPermissions declares the browser permissions the App requests.
func WithPermissions(p mcpui.ResourcePermissions) ResourceOption {
	return func(r *mcp.Resource) { setUIMeta(r, "permissions", p) }
}

func setUIMeta(r *mcp.Resource, key string, v any) {
	if r.Meta == nil {
		r.Meta = make(map[string]any, 1)
	}
	ui, _ := r.Meta[mcpui.MetaKeyUI].(map[string]any)
	if ui == nil {
		ui = make(map[string]any, 1)
		r.Meta[mcpui.MetaKeyUI] = ui
	}
	ui[key] = v
}

// NewResource describes an App resource. uri must use the ui:// scheme.
func NewResource(uri, name string, opts ...ResourceOption) (mcp.Resource, error) {
	if err := validateURI(uri); err != nil {
		return mcp.Resource{}, err
	}
	r := mcp.Resource{URI: uri, Name: name, MimeType: mcpui.ResourceMIMEType}
	for _, opt := range opts {
		opt(&r)
	}
	return r, nil
}

// Contents returns the read result entry serving html for r.
func Contents(r mcp.Resource, html string) mcp.ResourceContents {
	return mcp.ResourceContents{
		URI:      r.URI,
		MimeType: r.MimeType,
		Text:     html,
		Meta:     r.Meta,
	}
}

// IsAppResourceMIME reports whether mime names an HTML document with the
// mcp-app profile. Parameter order, spacing and case are not significant.
func IsAppResourceMIME(mime string) bool {
	mt := contenttype.NewMediaType(mime)
	if !strings.EqualFold(mt.Type, "text") || !strings.EqualFold(mt.Subtype, "html") {
		return false
	}
	for k, v := range mt.Parameters {
		if strings.EqualFold(k, "profile") {
			return v == "mcp-app"
		}
	}
	return false
}
