// Package extract turns raw source content into event candidates.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/source"
)

var (
	ErrMalformedOutput = errors.New("malformed extractor output")
	ErrNotConfigured   = errors.New("extractor not configured")
)

// DefaultMaxContentChars caps the content forwarded to the model.
const DefaultMaxContentChars = 30000

type Meta struct {
	SourceName string
	Mode       source.Mode
}

type Extractor interface {
	Extract(ctx context.Context, content string, meta Meta, currentDate time.Time) ([]event.Candidate, error)
}

// Generator produces a completion for a system and user prompt pair.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

var _ Extractor = (*LLMExtractor)(nil)

type LLMExtractor struct {
	generator       Generator
	maxContentChars int
}

func NewLLMExtractor(generator Generator, maxContentChars int) *LLMExtractor {
	if maxContentChars <= 0 {
		maxContentChars = DefaultMaxContentChars
	}
	return &LLMExtractor{
		generator:       generator,
		maxContentChars: maxContentChars,
	}
}

// Extract asks the model for events found in content, normalizes the reply
// and drops events dated before currentDate.
func (e *LLMExtractor) Extract(ctx context.Context, content string, meta Meta, currentDate time.Time) ([]event.Candidate, error) {
	if e == nil || e.generator == nil {
		return nil, ErrNotConfigured
	}

	userPrompt := buildUserPrompt(truncate(content, e.maxContentChars), meta, currentDate)

	reply, err := e.generator.GenerateWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate events: %w", err)
	}

	candidates, err := parseCandidates(reply)
	if err != nil {
		slog.Debug("Unparseable extractor reply", "source", meta.SourceName, "reply_length", len(reply))
		return nil, err
	}

	upcoming := dropPast(candidates, currentDate)

	slog.Debug("Events extracted",
		"source", meta.SourceName,
		"parsed", len(candidates),
		"upcoming", len(upcoming))

	return upcoming, nil
}

func truncate(content string, limit int) string {
	runes := []rune(content)
	if len(runes) <= limit {
		return content
	}
	return string(runes[:limit])
}
