package tasks

import (
	"time"

	"github.com/lysyi3m/event-comb/app/event"
)

type OutcomeKind string

const (
	OutcomeSuccess     OutcomeKind = "success"
	OutcomeSoftWarning OutcomeKind = "soft_warning"
	OutcomeHardError   OutcomeKind = "hard_error"
)

const (
	MsgFetchTimeout        = "fetch timeout"
	MsgFetchFailure        = "fetch failure"
	MsgInsufficientContent = "insufficient content"
	MsgExtractionTimeout   = "extraction timeout"
	MsgExtractionFailure   = "extraction failure"
	MsgParseFailure        = "parse failure"
	MsgExtractorMissing    = "extractor not configured"
	MsgUnexpectedError     = "unexpected error"
)

// Outcome is the single result of executing one source. Events is set only
// for OutcomeSuccess; Message only for the other kinds.
type Outcome struct {
	Kind    OutcomeKind
	Events  []event.Candidate
	Message string
	Debug   *Debug
}

// Debug carries diagnostics about one execution.
type Debug struct {
	ContentLength   int    `json:"contentLength"`
	FetchDuration   string `json:"fetchDuration,omitempty"`
	ExtractDuration string `json:"extractDuration,omitempty"`
}

func Success(events []event.Candidate) Outcome {
	if events == nil {
		events = []event.Candidate{}
	}
	return Outcome{Kind: OutcomeSuccess, Events: events}
}

func SoftWarning(message string) Outcome {
	return Outcome{Kind: OutcomeSoftWarning, Message: message}
}

func HardError(message string) Outcome {
	return Outcome{Kind: OutcomeHardError, Message: message}
}

func (o Outcome) WithDebug(debug *Debug) Outcome {
	o.Debug = debug
	return o
}

func (o Outcome) IsSuccess() bool {
	return o.Kind == OutcomeSuccess
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.Round(time.Millisecond).String()
}
