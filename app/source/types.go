package source

import (
	"fmt"
	"strings"
)

type Mode string

const (
	ModeQuery  Mode = "query"
	ModeScrape Mode = "scrape"
)

// ParseMode accepts the canonical mode names plus the aliases used by the
// /search-source endpoint ("search", "url").
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "query", "search":
		return ModeQuery, nil
	case "scrape", "url":
		return ModeScrape, nil
	default:
		return "", fmt.Errorf("unknown source mode %q", s)
	}
}

func (m Mode) String() string {
	return string(m)
}

// Descriptor identifies one source. Target is a search query for ModeQuery and
// a URL for ModeScrape. Descriptors are values and are never mutated after load.
type Descriptor struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Target      string `json:"target"`
	Mode        Mode   `json:"mode"`
}

// Configuration types

type Config struct {
	Settings ConfigSettings `yaml:"settings"`
	Sources  []ConfigSource `yaml:"sources"`
}

type ConfigSettings struct {
	Concurrency int `yaml:"concurrency"`
}

type ConfigSource struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Mode    string `yaml:"mode"`
	Target  string `yaml:"target"`
	Enabled *bool  `yaml:"enabled"` // nil means enabled
}

func (s ConfigSource) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}
