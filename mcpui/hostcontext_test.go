package mcpui

import (
	"encoding/json"
	"testing"
)

func TestHostContext_MergeKeepsAbsentFields(t *testing.T) {
	t.Parallel()

	base := HostContext{
		Theme:          ThemeLight,
		DisplayMode:    DisplayModeInline,
		Locale:         "en-US",
		SafeAreaInsets: &SafeAreaInsets{Top: 10},
	}
	merged := base.Merge(HostContext{Theme: ThemeDark, Viewport: &Viewport{Width: 400, Height: 300}})

	if merged.Theme != ThemeDark {
		t.Fatalf("theme: want dark, got %q", merged.Theme)
	}
	if merged.DisplayMode != DisplayModeInline || merged.Locale != "en-US" {
		t.Fatalf("absent fields were overwritten: %+v", merged)
	}
	if merged.SafeAreaInsets == nil || merged.SafeAreaInsets.Top != 10 {
		t.Fatalf("safe area lost: %+v", merged.SafeAreaInsets)
	}
	if merged.Viewport == nil || merged.Viewport.Width != 400 {
		t.Fatalf("viewport not applied: %+v", merged.Viewport)
	}
	if base.Theme != ThemeLight {
		t.Fatalf("merge mutated receiver")
	}
}

func TestHostContext_Changes(t *testing.T) {
	t.Parallel()

	cur := HostContext{Theme: ThemeLight, Locale: "en-US", AvailableDisplayModes: []DisplayMode{DisplayModeInline}}

	if _, changed := cur.Changes(cur); changed {
		t.Fatalf("identical context reported as changed")
	}

	next := HostContext{Theme: ThemeDark, Locale: "en-US", AvailableDisplayModes: []DisplayMode{DisplayModeInline, DisplayModeFullscreen}}
	diff, changed := cur.Changes(next)
	if !changed {
		t.Fatalf("expected change")
	}
	b, _ := json.Marshal(diff)
	want := `{"theme":"dark","availableDisplayModes":["inline","fullscreen"]}`
	if string(b) != want {
		t.Fatalf("diff: want %s got %s", want, b)
	}
}

func TestNegotiateVersion(t *testing.T) {
	t.Parallel()

	supported := []string{"2026-01-26", "2025-11-21"}
	cases := []struct {
		requested string
		want      string
	}{
		{"2026-01-26", "2026-01-26"},
		{"2025-11-21", "2025-11-21"},
		{"2024-01-01", "2026-01-26"},
		{"", "2026-01-26"},
	}
	for _, tc := range cases {
		if got := NegotiateVersion(tc.requested, supported); got != tc.want {
			t.Errorf("NegotiateVersion(%q) = %q, want %q", tc.requested, got, tc.want)
		}
	}
}

func TestIsHandshakeMethod(t *testing.T) {
	t.Parallel()

	for _, m := range []string{"ping", "ui/initialize", "ui/notifications/initialized", "ui/notifications/sandbox-proxy-ready"} {
		if !IsHandshakeMethod(m) {
			t.Errorf("%s should be allowed before the handshake", m)
		}
	}
	for _, m := range []string{"tools/call", "ui/message", "ui/notifications/tool-input"} {
		if IsHandshakeMethod(m) {
			t.Errorf("%s should not be allowed before the handshake", m)
		}
	}
}
