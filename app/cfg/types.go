package cfg

import "time"

type Cfg struct {
	// Application configuration
	Port         string
	SourcesFile  string
	Concurrency  int
	APIAccessKey string
	RemoteURL    string
	Schedule     string
	Once         bool
	RunRetention time.Duration

	// Pipeline budgets
	SearchTimeout    time.Duration
	ScrapeTimeout    time.Duration
	ExtractTimeout   time.Duration
	ClientTimeout    time.Duration
	MinContentLength int
	MaxContentChars  int

	// Extraction model
	LLMProvider  string
	LLMModel     string
	LLMAPIKey    string
	OllamaHost   string
	LLMMaxTokens int

	// Search backend
	SearchHL   string
	SearchGL   string
	SearchCEID string
	SearchRPS  float64

	// Storage and observability
	DBPath           string
	ArchiveRetention time.Duration
	LogFile          string
	TraceExporter    string
	TraceFile        string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
