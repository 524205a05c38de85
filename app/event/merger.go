package event

import (
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// TitlePrefixLength is the number of leading title characters compared by Merge.
const TitlePrefixLength = 15

// Merge appends the incoming candidates that are not already represented in
// existing and returns the combined list. A candidate is a duplicate when the
// case-folded title of any existing candidate contains the case-folded first
// TitlePrefixLength characters of the incoming title. The check only runs one
// way, and candidates within incoming are not compared with each other.
//
// The heuristic misses duplicates whose titles diverge early and merges
// unrelated events sharing a long common prefix.
func Merge(existing, incoming []Candidate) []Candidate {
	merged := make([]Candidate, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	folder := cases.Fold()
	folded := make([]string, len(existing))
	for i, c := range existing {
		folded[i] = folder.String(c.Title)
	}

	for _, c := range incoming {
		prefix := titlePrefix(c.Title)
		if prefix == "" {
			continue
		}
		prefix = folder.String(prefix)

		if containsPrefix(folded, prefix) {
			continue
		}
		merged = append(merged, c)
	}

	return merged
}

func titlePrefix(title string) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) > TitlePrefixLength {
		runes = runes[:TitlePrefixLength]
	}
	return string(runes)
}

func containsPrefix(titles []string, prefix string) bool {
	for _, t := range titles {
		if strings.Contains(t, prefix) {
			return true
		}
	}
	return false
}

// Merger owns the accumulated result of one run. All methods are safe for
// concurrent use; merges are serialized because dedup depends on the current
// accumulated state.
type Merger struct {
	mu         sync.Mutex
	events     []Candidate
	warnings   []string
	warningSet map[string]struct{}
	discarded  int
}

func NewMerger() *Merger {
	return &Merger{
		warningSet: make(map[string]struct{}),
	}
}

// Merge folds incoming into the accumulated events and returns how many
// candidates were kept.
func (m *Merger) Merge(incoming []Candidate) int {
	if len(incoming) == 0 {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	before := len(m.events)
	m.events = Merge(m.events, incoming)
	added := len(m.events) - before
	m.discarded += len(incoming) - added

	return added
}

// AddWarning records msg once. It reports whether msg was new.
func (m *Merger) AddWarning(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.warningSet[msg]; ok {
		return false
	}
	m.warningSet[msg] = struct{}{}
	m.warnings = append(m.warnings, msg)
	return true
}

// Result returns a copy of the accumulated events and warnings.
func (m *Merger) Result() Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	events := make([]Candidate, len(m.events))
	copy(events, m.events)
	warnings := make([]string, len(m.warnings))
	copy(warnings, m.warnings)

	return Result{Events: events, Warnings: warnings}
}

func (m *Merger) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Discarded returns the number of incoming candidates dropped as duplicates.
func (m *Merger) Discarded() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.discarded
}
