package source

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

const DefaultConcurrency = 3

type ConfigCache struct {
	path        string
	descriptors []Descriptor
	index       map[string]int
	concurrency int
	mu          sync.RWMutex
}

func NewConfigCache(path string) *ConfigCache {
	return &ConfigCache{
		path:        path,
		index:       make(map[string]int),
		concurrency: DefaultConcurrency,
	}
}

// Run loads the sources file. A missing file leaves the cache empty.
func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.path); os.IsNotExist(err) {
		slog.Warn("Sources file not found, no sources loaded", "path", cc.path)
		return nil
	}

	sourcesConfig, err := cc.parseConfig(cc.path)
	if err != nil {
		return err
	}

	descriptors, err := cc.buildDescriptors(sourcesConfig)
	if err != nil {
		return fmt.Errorf("invalid config %s: %w", cc.path, err)
	}

	index := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		index[d.ID] = i
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.descriptors = descriptors
	cc.index = index
	cc.concurrency = sourcesConfig.Settings.Concurrency

	slog.Debug("Sources loaded", "path", cc.path, "count", len(descriptors), "concurrency", cc.concurrency)

	return nil
}

func (cc *ConfigCache) GetDescriptor(id string) (Descriptor, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	i, ok := cc.index[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("source with id '%s' not found", id)
	}
	return cc.descriptors[i], nil
}

// GetDescriptors returns the enabled sources in file order.
func (cc *ConfigCache) GetDescriptors() []Descriptor {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	descriptorsCopy := make([]Descriptor, len(cc.descriptors))
	copy(descriptorsCopy, cc.descriptors)
	return descriptorsCopy
}

// Select returns the descriptors for ids, preserving the order of ids.
func (cc *ConfigCache) Select(ids []string) ([]Descriptor, error) {
	selected := make([]Descriptor, 0, len(ids))
	for _, id := range ids {
		d, err := cc.GetDescriptor(id)
		if err != nil {
			return nil, err
		}
		selected = append(selected, d)
	}
	return selected, nil
}

func (cc *ConfigCache) GetConcurrency() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return cc.concurrency
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.descriptors)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var sourcesConfig Config
	if err := yaml.Unmarshal(data, &sourcesConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if sourcesConfig.Settings.Concurrency == 0 {
		sourcesConfig.Settings.Concurrency = DefaultConcurrency
	}

	return &sourcesConfig, nil
}

func (cc *ConfigCache) buildDescriptors(sourcesConfig *Config) ([]Descriptor, error) {
	if sourcesConfig.Settings.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency must be non-negative")
	}

	seen := make(map[string]bool, len(sourcesConfig.Sources))
	descriptors := make([]Descriptor, 0, len(sourcesConfig.Sources))

	for i, s := range sourcesConfig.Sources {
		requiredFields := map[string]string{
			"id":     s.ID,
			"mode":   s.Mode,
			"target": s.Target,
		}
		for fieldName, fieldValue := range requiredFields {
			if fieldValue == "" {
				return nil, fmt.Errorf("source at index %d: %s is required", i, fieldName)
			}
		}

		if seen[s.ID] {
			return nil, fmt.Errorf("duplicate source id: %s", s.ID)
		}
		seen[s.ID] = true

		mode, err := ParseMode(s.Mode)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.ID, err)
		}

		if mode == ModeScrape {
			u, err := url.Parse(s.Target)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("source %s: target must be an absolute URL in scrape mode", s.ID)
			}
		}

		if !s.IsEnabled() {
			slog.Debug("Source disabled, skipping", "source", s.ID)
			continue
		}

		name := s.Name
		if name == "" {
			name = s.ID
		}

		descriptors = append(descriptors, Descriptor{
			ID:          s.ID,
			DisplayName: name,
			Target:      s.Target,
			Mode:        mode,
		})
	}

	return descriptors, nil
}
