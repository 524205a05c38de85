package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/lysyi3m/event-comb/app/event"
)

// RelevancePlaceholder is used when a reply omits the relevance field.
const RelevancePlaceholder = "Not specified"

var fieldAliases = map[string][]string{
	"title":           {"title", "name", "event", "event_name", "eventName", "event_title"},
	"date":            {"date", "event_date", "eventDate", "dates", "when", "start_date", "startDate"},
	"location":        {"location", "venue", "place", "where", "city"},
	"link":            {"link", "url", "href", "website", "source_url"},
	"analysis":        {"analysis", "summary", "description"},
	"opportunity":     {"opportunity", "opportunities", "value"},
	"domainRelevance": {"domainRelevance", "domain_relevance", "relevance", "domain"},
}

// parseCandidates decodes a model reply into candidates. It tolerates code
// fences, prose around the JSON and either a bare array or an object with an
// "events" array.
func parseCandidates(reply string) ([]event.Candidate, error) {
	payload := stripFences(reply)

	start := strings.IndexAny(payload, "[{")
	if start < 0 {
		return nil, fmt.Errorf("%w: no JSON found", ErrMalformedOutput)
	}

	var raw any
	decoder := json.NewDecoder(strings.NewReader(payload[start:]))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	items, err := eventItems(raw)
	if err != nil {
		return nil, err
	}

	candidates := make([]event.Candidate, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		candidates = append(candidates, toCandidate(fields))
	}

	return candidates, nil
}

func stripFences(reply string) string {
	reply = strings.TrimSpace(reply)

	start := strings.Index(reply, "```")
	if start < 0 {
		return reply
	}

	body := reply[start+3:]
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		body = body[newline+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func eventItems(raw any) ([]any, error) {
	switch v := raw.(type) {
	case []any:
		return v, nil
	case map[string]any:
		for key, value := range v {
			if !strings.EqualFold(key, "events") {
				continue
			}
			items, ok := value.([]any)
			if !ok {
				if value == nil {
					return nil, nil
				}
				return nil, fmt.Errorf("%w: events is not an array", ErrMalformedOutput)
			}
			return items, nil
		}
		// A single event object.
		if _, ok := lookup(v, "title"); ok {
			return []any{v}, nil
		}
		return nil, fmt.Errorf("%w: missing events array", ErrMalformedOutput)
	default:
		return nil, fmt.Errorf("%w: unexpected JSON value", ErrMalformedOutput)
	}
}

func lookup(fields map[string]any, name string) (string, bool) {
	for _, alias := range fieldAliases[name] {
		for key, value := range fields {
			if !strings.EqualFold(key, alias) {
				continue
			}
			if text := stringify(value); text != "" {
				return text, true
			}
		}
	}
	return "", false
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := stringify(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func toCandidate(fields map[string]any) event.Candidate {
	get := func(name string) string {
		value, _ := lookup(fields, name)
		return value
	}

	relevance := get("domainRelevance")
	if relevance == "" {
		relevance = RelevancePlaceholder
	}

	return event.Candidate{
		Title:           get("title"),
		Date:            get("date"),
		Location:        get("location"),
		Link:            get("link"),
		Analysis:        get("analysis"),
		Opportunity:     get("opportunity"),
		DomainRelevance: relevance,
	}
}

// dropPast removes candidates whose date parses to a day before currentDate.
// Dates that cannot be parsed are kept.
func dropPast(candidates []event.Candidate, currentDate time.Time) []event.Candidate {
	loc := currentDate.Location()
	today := time.Date(currentDate.Year(), currentDate.Month(), currentDate.Day(), 0, 0, 0, 0, loc)

	kept := make([]event.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if when, ok := parseDate(c.Date, loc); ok {
			day := time.Date(when.Year(), when.Month(), when.Day(), 0, 0, 0, 0, loc)
			if day.Before(today) {
				continue
			}
		}
		kept = append(kept, c)
	}
	return kept
}

func parseDate(value string, loc *time.Location) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	when, err := dateparse.ParseIn(value, loc)
	if err != nil {
		return time.Time{}, false
	}
	return when, true
}
