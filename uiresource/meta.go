// Package uiresource builds tool and resource descriptors that link a tool
// to the App that renders it.
package uiresource

import (
	"maps"

	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
)

// NormalizeToolMeta returns a copy of meta in which the App resource URI is
// present under both the structured key (_meta.ui.resourceUri) and the
// legacy flat key (_meta["ui/resourceUri"]). When only one is set the other
// is synthesised from it; when both are set they are left unchanged, even
// if they disagree. meta itself is never modified.
func NormalizeToolMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := maps.Clone(meta)

	ui, _ := out[mcpui.MetaKeyUI].(map[string]any)
	structured, hasStructured := ui[mcpui.MetaKeyResourceURI].(string)
	legacy, hasLegacy := out[mcpui.LegacyMetaKeyResourceURI].(string)

	switch {
	case hasStructured && hasLegacy:
	case hasStructured:
		out[mcpui.LegacyMetaKeyResourceURI] = structured
	case hasLegacy:
		next := maps.Clone(ui)
		if next == nil {
			next = make(map[string]any, 1)
		}
		next[mcpui.MetaKeyResourceURI] = legacy
		out[mcpui.MetaKeyUI] = next
	}
	return out
}

// ResourceURI reports the App resource a tool is rendered by, preferring
// the structured key.
func ResourceURI(tool mcp.Tool) (string, bool) {
	if ui, ok := tool.Meta[mcpui.MetaKeyUI].(map[string]any); ok {
		if uri, ok := ui[mcpui.MetaKeyResourceURI].(string); ok && uri != "" {
			return uri, true
		}
	}
	if uri, ok := tool.Meta[mcpui.LegacyMetaKeyResourceURI].(string); ok && uri != "" {
		return uri, true
	}
	return "", false
}
