package uiresource

import (
	"reflect"
	"testing"

	"github.com/ggoodman/mcp-apps-go/mcp"
	"github.com/ggoodman/mcp-apps-go/mcpui"
)

func TestNormalizeToolMeta(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   map[string]any
		want map[string]any
	}{
		{
			name: "structured only",
			in:   map[string]any{"ui": map[string]any{"resourceUri": "ui://weather/view"}},
			want: map[string]any{
				"ui":             map[string]any{"resourceUri": "ui://weather/view"},
				"ui/resourceUri": "ui://weather/view",
			},
		},
		{
			name: "legacy only",
			in:   map[string]any{"ui/resourceUri": "ui://weather/view", "other": 1},
			want: map[string]any{
				"ui":             map[string]any{"resourceUri": "ui://weather/view"},
				"ui/resourceUri": "ui://weather/view",
				"other":          1,
			},
		},
		{
			name: "legacy keeps sibling ui fields",
			in:   map[string]any{"ui/resourceUri": "ui://a", "ui": map[string]any{"prefersBorder": true}},
			want: map[string]any{
				"ui":             map[string]any{"resourceUri": "ui://a", "prefersBorder": true},
				"ui/resourceUri": "ui://a",
			},
		},
		{
			name: "both present are left alone",
			in:   map[string]any{"ui": map[string]any{"resourceUri": "ui://a"}, "ui/resourceUri": "ui://b"},
			want: map[string]any{"ui": map[string]any{"resourceUri": "ui://a"}, "ui/resourceUri": "ui://b"},
		},
		{
			name: "neither",
			in:   map[string]any{"x": "y"},
			want: map[string]any{"x": "y"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeToolMeta(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}

	in := map[string]any{"ui/resourceUri": "ui://a"}
	_ = NormalizeToolMeta(in)
	if _, ok := in["ui"]; ok {
		t.Fatalf("input was modified")
	}
}

func TestResourceURI(t *testing.T) {
	t.Parallel()

	if uri, ok := ResourceURI(mcp.Tool{Meta: map[string]any{"ui/resourceUri": "ui://legacy"}}); !ok || uri != "ui://legacy" {
		t.Fatalf("legacy: %q %v", uri, ok)
	}
	tool := mcp.Tool{Meta: map[string]any{"ui/resourceUri": "ui://legacy", "ui": map[string]any{"resourceUri": "ui://new"}}}
	if uri, _ := ResourceURI(tool); uri != "ui://new" {
		t.Fatalf("structured key should win, got %q", uri)
	}
	if _, ok := ResourceURI(mcp.Tool{}); ok {
		t.Fatalf("no metadata should report false")
	}
}

type weatherArgs struct {
	Location string   `json:"location" jsonschema:"description=City name"`
	Units    string   `json:"units,omitempty" jsonschema:"enum=c,enum=f"`
	Days     []int    `json:"days,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

func TestNewTool(t *testing.T) {
	t.Parallel()

	tool, err := NewTool[weatherArgs]("get-weather", "ui://weather/view", WithToolDescription("Show the forecast"))
	if err != nil {
		t.Fatalf("NewTool: %v", err)
	}
	if tool.Name != "get-weather" || tool.Description != "Show the forecast" {
		t.Fatalf("descriptor: %+v", tool)
	}
	if uri, ok := ResourceURI(tool); !ok || uri != "ui://weather/view" {
		t.Fatalf("resource uri: %q", uri)
	}
	if tool.Meta[mcpui.LegacyMetaKeyResourceURI] != "ui://weather/view" {
		t.Fatalf("legacy key missing: %v", tool.Meta)
	}

	s := tool.InputSchema
	if s.Type != "object" || s.AdditionalProperties {
		t.Fatalf("schema: %+v", s)
	}
	if loc := s.Properties["location"]; loc.Type != "string" || loc.Description != "City name" {
		t.Fatalf("location: %+v", loc)
	}
	if units := s.Properties["units"]; len(units.Enum) != 2 {
		t.Fatalf("units enum: %+v", units)
	}
	if days := s.Properties["days"]; days.Type != "array" || days.Items == nil || days.Items.Type != "integer" {
		t.Fatalf("days: %+v", days)
	}
	if !reflect.DeepEqual(s.Required, []string{"location"}) {
		t.Fatalf("required: %v", s.Required)
	}

	if _, err := NewTool[weatherArgs]("x", "https://example.com"); err == nil {
		t.Fatalf("expected error for non-ui uri")
	}
}

func TestNewResource(t *testing.T) {
	t.Parallel()

	r, err := NewResource("ui://weather/view", "Weather", WithCSP(mcpui.ResourceCSP{ConnectDomains: []string{"https://api.example.com"}}))
	if err != nil {
		t.Fatalf("NewResource: %v", err)
	}
	if r.MimeType != mcpui.ResourceMIMEType {
		t.Fatalf("mime: %q", r.MimeType)
	}
	ui, _ := r.Meta["ui"].(map[string]any)
	if csp, ok := ui["csp"].(mcpui.ResourceCSP); !ok || csp.ConnectDomains[0] != "https://api.example.com" {
		t.Fatalf("csp meta: %v", r.Meta)
	}

	c := Contents(r, "<html></html>")
	if c.URI != r.URI || c.Text != "<html></html>" || !IsAppResourceMIME(c.MimeType) {
		t.Fatalf("contents: %+v", c)
	}

	for _, bad := range []string{"", "ui://", "http://weather"} {
		if _, err := NewResource(bad, "x"); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestIsAppResourceMIME(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{
		"text/html;profile=mcp-app":                 true,
		"text/html; profile=mcp-app":                true,
		"TEXT/HTML; charset=utf-8; profile=mcp-app": true,
		"text/html":                                 false,
		"text/html;profile=other":                   false,
		"application/json":                          false,
		"":                                          false,
	} {
		if got := IsAppResourceMIME(in); got != want {
			t.Errorf("IsAppResourceMIME(%q) = %v, want %v", in, got, want)
		}
	}
}
