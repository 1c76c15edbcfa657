package mcpui

import (
	"maps"
	"reflect"
	"slices"

	"github.com/ggoodman/mcp-apps-go/mcp"
)

// Viewport is the space the Host gives the App, in CSS pixels.
type Viewport struct {
	Width     int `json:"width"`
	Height    int `json:"height"`
	MaxWidth  int `json:"maxWidth,omitzero"`
	MaxHeight int `json:"maxHeight,omitzero"`
}

// SafeAreaInsets are the insets the App should keep clear, in CSS pixels.
type SafeAreaInsets struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// DeviceCapabilities describes the input affordances of the Host device.
type DeviceCapabilities struct {
	Touch bool `json:"touch,omitzero"`
	Hover bool `json:"hover,omitzero"`
}

// ToolInfo identifies the tool call that produced the App.
type ToolInfo struct {
	ID   any      `json:"id,omitempty"`
	Tool mcp.Tool `json:"tool"`
}

// HostContext describes the environment the App is rendered in. Every field
// is optional; an absent field in an update leaves the previous value alone.
type HostContext struct {
	Theme                 Theme               `json:"theme,omitzero"`
	DisplayMode           DisplayMode         `json:"displayMode,omitzero"`
	AvailableDisplayModes []DisplayMode       `json:"availableDisplayModes,omitempty"`
	Viewport              *Viewport           `json:"viewport,omitempty"`
	Locale                string              `json:"locale,omitzero"`
	TimeZone              string              `json:"timeZone,omitzero"`
	UserAgent             string              `json:"userAgent,omitzero"`
	Platform              Platform            `json:"platform,omitzero"`
	DeviceCapabilities    *DeviceCapabilities `json:"deviceCapabilities,omitempty"`
	SafeAreaInsets        *SafeAreaInsets     `json:"safeAreaInsets,omitempty"`
	ToolInfo              *ToolInfo           `json:"toolInfo,omitempty"`
	Styles                map[string]any      `json:"styles,omitempty"`
}

// Merge returns a copy of c with every field present in patch applied.
func (c HostContext) Merge(patch HostContext) HostContext {
	out := c
	dst := reflect.ValueOf(&out).Elem()
	src := reflect.ValueOf(patch)
	for i := range src.NumField() {
		if f := src.Field(i); !f.IsZero() {
			dst.Field(i).Set(f)
		}
	}
	out.AvailableDisplayModes = slices.Clone(out.AvailableDisplayModes)
	out.Styles = maps.Clone(out.Styles)
	return out
}

// Changes returns the fields of next that differ from c, and whether there
// were any. Fields cleared in next are not reported; a partial update cannot
// express removal.
func (c HostContext) Changes(next HostContext) (HostContext, bool) {
	var diff HostContext
	changed := false
	cur := reflect.ValueOf(c)
	nxt := reflect.ValueOf(next)
	out := reflect.ValueOf(&diff).Elem()
	for i := range nxt.NumField() {
		f := nxt.Field(i)
		if f.IsZero() || reflect.DeepEqual(f.Interface(), cur.Field(i).Interface()) {
			continue
		}
		out.Field(i).Set(f)
		changed = true
	}
	return diff, changed
}
