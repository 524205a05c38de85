package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/lysyi3m/event-comb/app/source"
)

const systemPrompt = `You extract upcoming business events (conferences, summits, trade fairs, workshops, webinars, meetups) from web content.

Reply with JSON only, no prose and no code fences, in exactly this shape:
{"events": [{"title": "", "date": "", "location": "", "link": "", "analysis": "", "opportunity": "", "domainRelevance": ""}]}

Rules:
- Only include events that are explicitly mentioned in the content.
- Use an absolute date such as "2025-06-12" when the content allows it, otherwise copy the date text as written.
- "link" is the most specific URL for the event found in the content, or "".
- "analysis" is one or two sentences on what the event is about.
- "opportunity" is one sentence on why attending or sponsoring could be valuable.
- "domainRelevance" names the business domain the event serves, or "Not specified".
- Skip events that took place before the current date.
- If there are no events, reply with {"events": []}.`

func buildUserPrompt(content string, meta Meta, currentDate time.Time) string {
	kind := "search results"
	if meta.Mode == source.ModeScrape {
		kind = "a web page"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Current date: %s\n", currentDate.Format("2006-01-02"))
	if meta.SourceName != "" {
		fmt.Fprintf(&b, "Source: %s\n", meta.SourceName)
	}
	fmt.Fprintf(&b, "The following content comes from %s.\n\n", kind)
	b.WriteString("Content:\n")
	b.WriteString(content)
	b.WriteString("\n\nEvents JSON:")

	return b.String()
}
