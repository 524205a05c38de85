// Package fetch retrieves raw textual content for a source.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lysyi3m/event-comb/app/source"
)

var ErrUnsupportedMode = errors.New("unsupported source mode")

// Backend fetches content for a single mode.
type Backend interface {
	Fetch(ctx context.Context, target string) (string, error)
}

// Router dispatches a fetch to the backend registered for the source mode.
type Router struct {
	backends map[source.Mode]Backend
}

func NewRouter() *Router {
	return &Router{
		backends: make(map[source.Mode]Backend),
	}
}

// Register binds backend to mode. A nil backend removes the binding.
func (r *Router) Register(mode source.Mode, backend Backend) *Router {
	if backend == nil {
		delete(r.backends, mode)
		return r
	}
	r.backends[mode] = backend
	return r
}

func (r *Router) Supports(mode source.Mode) bool {
	_, ok := r.backends[mode]
	return ok
}

func (r *Router) Fetch(ctx context.Context, mode source.Mode, target string) (string, error) {
	backend, ok := r.backends[mode]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}

	content, err := backend.Fetch(ctx, target)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s source: %w", mode, err)
	}

	return content, nil
}

// collapseWhitespace joins runs of whitespace into single spaces and keeps
// paragraph breaks.
func collapseWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false

	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
