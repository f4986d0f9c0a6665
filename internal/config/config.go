package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

type CatalogBackend string

const (
	CatalogREST   CatalogBackend = "rest"
	CatalogSQLite CatalogBackend = "sqlite"
)

// Relay configures the itinerary relay server. A missing GatewayAPIKey is
// reported per invocation as an error envelope, not at startup.
type Relay struct {
	Addr string `env:"RELAY_ADDR" envDefault:":8080"`

	// Upstream completion gateway
	GatewayAPIKey string `env:"GATEWAY_API_KEY"`
	GatewayURL    string `env:"GATEWAY_URL" envDefault:"https://ai.gateway.lovable.dev/v1/chat/completions"`
	GatewayModel  string `env:"GATEWAY_MODEL" envDefault:"google/gemini-2.5-flash"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Reference data
	CatalogBackend    CatalogBackend `env:"CATALOG_BACKEND" envDefault:"rest"`
	SupabaseURL       string         `env:"SUPABASE_URL"`
	SupabaseKey       string         `env:"SUPABASE_SERVICE_ROLE_KEY"`
	CatalogSQLitePath string         `env:"CATALOG_SQLITE_PATH" envDefault:"data/catalog.db"`
	VenueLimit        int            `env:"CATALOG_VENUE_LIMIT" envDefault:"200"`
	EventLimit        int            `env:"CATALOG_EVENT_LIMIT" envDefault:"100"`

	// HTTP surface
	RateLimitPerMinute int      `env:"RELAY_RATE_LIMIT_PER_MINUTE" envDefault:"0"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Consumer configures the planner front-ends (terminal client and Telegram bot).
type Consumer struct {
	RelayURL    string `env:"PLANNER_RELAY_URL,required"`
	BearerToken string `env:"PLANNER_BEARER_TOKEN"`

	// Telegram
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN"`
	AllowedUsers     []int64       `env:"ALLOWED_USERS" envSeparator:":"`
	AdminUserID      int64         `env:"ADMIN_USER"`
	EditInterval     time.Duration `env:"TELEGRAM_EDIT_INTERVAL" envDefault:"1s"`

	// Storage
	AllowlistFilePath string `env:"ALLOWLIST_FILE_PATH" envDefault:"data/allowlist.json"`
	TurnLogPath       string `env:"TURN_LOG_PATH" envDefault:"logs/turns.jsonl"`
	PendingFilePath   string `env:"PENDING_FILE_PATH" envDefault:"data/pending.json"`

	// Cron spec (UTC) for the admin usage report; empty disables it.
	DailyReportSchedule string `env:"DAILY_REPORT_SCHEDULE" envDefault:"0 21 * * *"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

func LoadRelay() (*Relay, error) {
	cfg := &Relay{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse relay config: %w", err)
	}
	switch cfg.CatalogBackend {
	case CatalogREST, CatalogSQLite:
	default:
		return nil, fmt.Errorf("unknown catalog backend: %s", cfg.CatalogBackend)
	}
	if cfg.VenueLimit <= 0 || cfg.EventLimit <= 0 {
		return nil, fmt.Errorf("catalog limits must be positive (venues=%d, events=%d)", cfg.VenueLimit, cfg.EventLimit)
	}
	return cfg, nil
}

func LoadConsumer() (*Consumer, error) {
	cfg := &Consumer{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse consumer config: %w", err)
	}
	if cfg.RelayURL == "" {
		return nil, fmt.Errorf("PLANNER_RELAY_URL is empty")
	}
	return cfg, nil
}
