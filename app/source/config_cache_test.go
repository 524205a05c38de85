package source

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSources(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConfigCacheLoadValidConfig(t *testing.T) {
	path := writeSources(t, `
settings:
  concurrency: 4

sources:
  - id: hr-summits
    name: "HR Summits"
    mode: query
    target: "HR summit 2025 Berlin"
  - id: eventbrite
    name: "Eventbrite"
    mode: scrape
    target: "https://www.eventbrite.com/d/germany/hr/"
  - id: disabled
    mode: query
    target: "ignored"
    enabled: false
`)

	configCache := NewConfigCache(path)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetConfigCount() != 2 {
		t.Errorf("Expected 2 sources, got %d", configCache.GetConfigCount())
	}
	if configCache.GetConcurrency() != 4 {
		t.Errorf("Expected concurrency 4, got %d", configCache.GetConcurrency())
	}

	descriptors := configCache.GetDescriptors()
	if descriptors[0].ID != "hr-summits" || descriptors[1].ID != "eventbrite" {
		t.Errorf("Expected file order to be preserved, got %v", descriptors)
	}
	if descriptors[0].Mode != ModeQuery {
		t.Errorf("Expected query mode, got %s", descriptors[0].Mode)
	}
	if descriptors[1].Mode != ModeScrape {
		t.Errorf("Expected scrape mode, got %s", descriptors[1].Mode)
	}

	d, err := configCache.GetDescriptor("eventbrite")
	if err != nil {
		t.Fatal(err)
	}
	if d.DisplayName != "Eventbrite" {
		t.Errorf("Expected display name 'Eventbrite', got '%s'", d.DisplayName)
	}

	if _, err := configCache.GetDescriptor("disabled"); err == nil {
		t.Error("Expected disabled source to be skipped")
	}
}

func TestConfigCacheDefaults(t *testing.T) {
	path := writeSources(t, `
sources:
  - id: plain
    mode: search
    target: "leadership conference"
`)

	configCache := NewConfigCache(path)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetConcurrency() != DefaultConcurrency {
		t.Errorf("Expected default concurrency %d, got %d", DefaultConcurrency, configCache.GetConcurrency())
	}

	d, err := configCache.GetDescriptor("plain")
	if err != nil {
		t.Fatal(err)
	}
	if d.DisplayName != "plain" {
		t.Errorf("Expected display name to default to id, got '%s'", d.DisplayName)
	}
	if d.Mode != ModeQuery {
		t.Errorf("Expected 'search' alias to map to query mode, got %s", d.Mode)
	}
}

func TestConfigCacheInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing target",
			content: `
sources:
  - id: a
    mode: query
`,
			wantErr: "target is required",
		},
		{
			name: "unknown mode",
			content: `
sources:
  - id: a
    mode: crawl
    target: x
`,
			wantErr: "unknown source mode",
		},
		{
			name: "relative url",
			content: `
sources:
  - id: a
    mode: scrape
    target: /events
`,
			wantErr: "absolute URL",
		},
		{
			name: "duplicate id",
			content: `
sources:
  - id: a
    mode: query
    target: x
  - id: a
    mode: query
    target: y
`,
			wantErr: "duplicate source id",
		},
		{
			name: "negative concurrency",
			content: `
settings:
  concurrency: -1
sources: []
`,
			wantErr: "concurrency must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configCache := NewConfigCache(writeSources(t, tt.content))
			err := configCache.Run()
			if err == nil {
				t.Fatal("Expected error for invalid configuration")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigCacheMissingFile(t *testing.T) {
	configCache := NewConfigCache(filepath.Join(t.TempDir(), "nope.yml"))
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}
	if configCache.GetConfigCount() != 0 {
		t.Errorf("Expected 0 sources, got %d", configCache.GetConfigCount())
	}
}

func TestConfigCacheSelect(t *testing.T) {
	path := writeSources(t, `
sources:
  - id: a
    mode: query
    target: x
  - id: b
    mode: query
    target: y
`)
	configCache := NewConfigCache(path)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	selected, err := configCache.Select([]string{"b", "a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(selected) != 2 || selected[0].ID != "b" || selected[1].ID != "a" {
		t.Errorf("Expected [b a], got %v", selected)
	}

	if _, err := configCache.Select([]string{"missing"}); err == nil {
		t.Error("Expected error for unknown id")
	}
}

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"query":  ModeQuery,
		"Search": ModeQuery,
		"scrape": ModeScrape,
		" URL ":  ModeScrape,
	}
	for in, want := range tests {
		got, err := ParseMode(in)
		if err != nil {
			t.Errorf("ParseMode(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseMode(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseMode(""); err == nil {
		t.Error("Expected error for empty mode")
	}
}
