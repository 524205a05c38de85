package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/robfig/cron/v3"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Application configuration
	Port         string        `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	SourcesFile  string        `long:"sources" env:"SOURCES_FILE" default:"./sources.yml" description:"YAML file declaring the sources to aggregate"`
	Concurrency  int           `long:"concurrency" env:"CONCURRENCY" description:"Concurrent sources per run (overrides the sources file)"`
	APIAccessKey string        `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for /api endpoints (optional)"`
	RemoteURL    string        `long:"remote-url" env:"REMOTE_URL" description:"Run sources through a remote event-comb server instead of locally"`
	Schedule     string        `long:"schedule" env:"SCHEDULE" description:"Cron expression for periodic runs over all sources (e.g. \"0 */6 * * *\")"`
	Once         bool          `long:"once" env:"ONCE" description:"Run all sources once, print the result and exit"`
	RunRetention time.Duration `long:"run-retention" env:"RUN_RETENTION" default:"1h" description:"How long finished runs stay queryable in memory"`

	// Pipeline budgets
	SearchTimeout    time.Duration `long:"search-timeout" env:"SEARCH_TIMEOUT" default:"30s" description:"Fetch budget for search sources"`
	ScrapeTimeout    time.Duration `long:"scrape-timeout" env:"SCRAPE_TIMEOUT" default:"90s" description:"Fetch budget for scraped pages"`
	ExtractTimeout   time.Duration `long:"extract-timeout" env:"EXTRACT_TIMEOUT" default:"60s" description:"Extraction budget per source"`
	ClientTimeout    time.Duration `long:"client-timeout" env:"CLIENT_TIMEOUT" default:"40s" description:"How long --remote-url callers wait per source"`
	MinContentLength int           `long:"min-content-length" env:"MIN_CONTENT_LENGTH" default:"100" description:"Minimum fetched characters before extraction"`
	MaxContentChars  int           `long:"max-content-chars" env:"MAX_CONTENT_CHARS" default:"30000" description:"Content is truncated to this many characters before extraction"`

	// Extraction model
	LLMProvider  string `long:"llm-provider" env:"LLM_PROVIDER" default:"anthropic" choice:"anthropic" choice:"openai" choice:"ollama" description:"Extraction model provider"`
	LLMModel     string `long:"llm-model" env:"LLM_MODEL" description:"Extraction model name (provider default when empty)"`
	LLMAPIKey    string `long:"llm-api-key" env:"LLM_API_KEY" description:"API key for the extraction model provider"`
	OllamaHost   string `long:"ollama-host" env:"OLLAMA_HOST" default:"http://localhost:11434" description:"Ollama server URL"`
	LLMMaxTokens int    `long:"llm-max-tokens" env:"LLM_MAX_TOKENS" default:"4096" description:"Maximum tokens per extraction response"`

	// Search backend
	SearchHL   string  `long:"search-hl" env:"SEARCH_HL" default:"en-US" description:"Google News interface language"`
	SearchGL   string  `long:"search-gl" env:"SEARCH_GL" default:"US" description:"Google News country"`
	SearchCEID string  `long:"search-ceid" env:"SEARCH_CEID" default:"US:en" description:"Google News edition"`
	SearchRPS  float64 `long:"search-rps" env:"SEARCH_RPS" default:"1" description:"Maximum search requests per second"`

	// Storage and observability
	DBPath           string        `long:"db-path" env:"DB_PATH" description:"SQLite file archiving finished runs (optional)"`
	ArchiveRetention time.Duration `long:"archive-retention" env:"ARCHIVE_RETENTION" default:"720h" description:"Archived runs older than this are pruned at startup (0 keeps everything)"`
	LogFile          string        `long:"log-file" env:"LOG_FILE" description:"Also write JSON logs to this file"`
	TraceExporter    string        `long:"trace-exporter" env:"TRACE_EXPORTER" description:"Span exporter: stdout or file (disabled when empty)"`
	TraceFile        string        `long:"trace-file" env:"TRACE_FILE" default:"./traces.jsonl" description:"Output file for the file span exporter"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Event Comb/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps and the current date (e.g., UTC, Europe/Berlin)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses the process arguments and environment.
func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment. It returns nil, nil when help was
// requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Port:             raw.Port,
		SourcesFile:      raw.SourcesFile,
		Concurrency:      raw.Concurrency,
		APIAccessKey:     raw.APIAccessKey,
		RemoteURL:        raw.RemoteURL,
		Schedule:         raw.Schedule,
		Once:             raw.Once,
		RunRetention:     raw.RunRetention,
		SearchTimeout:    raw.SearchTimeout,
		ScrapeTimeout:    raw.ScrapeTimeout,
		ExtractTimeout:   raw.ExtractTimeout,
		ClientTimeout:    raw.ClientTimeout,
		MinContentLength: raw.MinContentLength,
		MaxContentChars:  raw.MaxContentChars,
		LLMProvider:      raw.LLMProvider,
		LLMModel:         raw.LLMModel,
		LLMAPIKey:        raw.LLMAPIKey,
		OllamaHost:       raw.OllamaHost,
		LLMMaxTokens:     raw.LLMMaxTokens,
		SearchHL:         raw.SearchHL,
		SearchGL:         raw.SearchGL,
		SearchCEID:       raw.SearchCEID,
		SearchRPS:        raw.SearchRPS,
		DBPath:           raw.DBPath,
		ArchiveRetention: raw.ArchiveRetention,
		LogFile:          raw.LogFile,
		TraceExporter:    raw.TraceExporter,
		TraceFile:        raw.TraceFile,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	if cfg.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", cfg.Concurrency)
	}

	for name, d := range map[string]time.Duration{
		"search-timeout":  cfg.SearchTimeout,
		"scrape-timeout":  cfg.ScrapeTimeout,
		"extract-timeout": cfg.ExtractTimeout,
		"client-timeout":  cfg.ClientTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if cfg.Schedule != "" {
		if cfg.Once {
			return fmt.Errorf("--schedule and --once are mutually exclusive")
		}
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
		}
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return err
		}
		time.Local = loc
	}
	return nil
}
