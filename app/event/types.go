package event

// Candidate is one event listing produced by an extractor. Title and Link
// identify the event for dedup purposes.
type Candidate struct {
	Title           string `json:"title"`
	Date            string `json:"date"`
	Location        string `json:"location"`
	Link            string `json:"link"`
	Analysis        string `json:"analysis"`
	Opportunity     string `json:"opportunity"`
	DomainRelevance string `json:"domainRelevance"`
}

// Result is the accumulated, caller-visible output of a run.
type Result struct {
	Events   []Candidate `json:"events"`
	Warnings []string    `json:"warnings"`
}
