package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lysyi3m/event-comb/app/event"
	"github.com/lysyi3m/event-comb/app/extract"
	"github.com/lysyi3m/event-comb/app/source"
)

const (
	DefaultSearchTimeout    = 30 * time.Second
	DefaultScrapeTimeout    = 90 * time.Second
	DefaultExtractTimeout   = 60 * time.Second
	DefaultMinContentLength = 100
)

type SourceTaskConfig struct {
	SearchTimeout    time.Duration
	ScrapeTimeout    time.Duration
	ExtractTimeout   time.Duration
	MinContentLength int
	Tracer           trace.Tracer
	// Now returns the current date used to drop past events.
	Now func() time.Time
}

var _ Executor = (*SourceTask)(nil)

// SourceTask fetches one source, checks the content and extracts events.
type SourceTask struct {
	fetcher   Fetcher
	extractor extract.Extractor
	config    SourceTaskConfig
}

// NewSourceTask builds the executor. fetcher and extractor may be nil; the
// affected sources then fail with a hard error.
func NewSourceTask(fetcher Fetcher, extractor extract.Extractor, config SourceTaskConfig) *SourceTask {
	if config.SearchTimeout <= 0 {
		config.SearchTimeout = DefaultSearchTimeout
	}
	if config.ScrapeTimeout <= 0 {
		config.ScrapeTimeout = DefaultScrapeTimeout
	}
	if config.ExtractTimeout <= 0 {
		config.ExtractTimeout = DefaultExtractTimeout
	}
	if config.MinContentLength <= 0 {
		config.MinContentLength = DefaultMinContentLength
	}
	if config.Tracer == nil {
		config.Tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &SourceTask{
		fetcher:   fetcher,
		extractor: extractor,
		config:    config,
	}
}

func (t *SourceTask) Execute(ctx context.Context, src source.Descriptor) Outcome {
	ctx, span := t.config.Tracer.Start(ctx, "source_task",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("source.id", src.ID),
			attribute.String("source.mode", string(src.Mode)),
		),
	)
	defer span.End()

	outcome := t.execute(ctx, src)

	span.SetAttributes(attribute.String("outcome.kind", string(outcome.Kind)))
	if outcome.IsSuccess() {
		span.SetAttributes(attribute.Int("outcome.events", len(outcome.Events)))
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, outcome.Message)
	}

	return outcome
}

func (t *SourceTask) execute(ctx context.Context, src source.Descriptor) Outcome {
	if t.fetcher == nil || !t.fetcher.Supports(src.Mode) {
		return HardError(fmt.Sprintf("no fetcher configured for %s mode", src.Mode))
	}
	if t.extractor == nil {
		return HardError(MsgExtractorMissing)
	}

	debug := &Debug{}

	fetchStart := time.Now()
	content, err := t.fetch(ctx, src)
	debug.FetchDuration = formatDuration(time.Since(fetchStart))
	if err != nil {
		message := MsgFetchFailure
		if errors.Is(err, context.DeadlineExceeded) {
			message = MsgFetchTimeout
		}
		slog.Warn("Source fetch failed", "source", src.ID, "mode", src.Mode, "error", err)
		return SoftWarning(message).WithDebug(debug)
	}

	content = strings.TrimSpace(content)
	debug.ContentLength = utf8.RuneCountInString(content)
	if debug.ContentLength < t.config.MinContentLength {
		slog.Debug("Insufficient source content", "source", src.ID, "length", debug.ContentLength)
		return SoftWarning(MsgInsufficientContent).WithDebug(debug)
	}

	extractStart := time.Now()
	events, err := t.extract(ctx, src, content)
	debug.ExtractDuration = formatDuration(time.Since(extractStart))
	if err != nil {
		slog.Warn("Source extraction failed", "source", src.ID, "error", err)
		switch {
		case errors.Is(err, extract.ErrNotConfigured):
			return HardError(MsgExtractorMissing).WithDebug(debug)
		case errors.Is(err, extract.ErrMalformedOutput):
			return SoftWarning(MsgParseFailure).WithDebug(debug)
		case errors.Is(err, context.DeadlineExceeded):
			return SoftWarning(MsgExtractionTimeout).WithDebug(debug)
		default:
			return SoftWarning(MsgExtractionFailure).WithDebug(debug)
		}
	}

	return Success(events).WithDebug(debug)
}

func (t *SourceTask) fetch(ctx context.Context, src source.Descriptor) (string, error) {
	timeout := t.config.SearchTimeout
	if src.Mode == source.ModeScrape {
		timeout = t.config.ScrapeTimeout
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content, err := t.fetcher.Fetch(fetchCtx, src.Mode, src.Target)
	if err != nil && fetchCtx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return content, err
}

func (t *SourceTask) extract(ctx context.Context, src source.Descriptor, content string) ([]event.Candidate, error) {
	extractCtx, cancel := context.WithTimeout(ctx, t.config.ExtractTimeout)
	defer cancel()

	meta := extract.Meta{SourceName: src.DisplayName, Mode: src.Mode}
	events, err := t.extractor.Extract(extractCtx, content, meta, t.config.Now())
	if err != nil && extractCtx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return events, err
}
