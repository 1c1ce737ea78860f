package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type (
	Config struct {
		TelegramAPIToken string `env:"TOKEN,required"`
		DotPath          string `env:"DOT_PATH,default=~/.spamsentry"`
		DBPath           string `env:"DB_PATH,default=bot.db"`
		LogLevel         int    `env:"LOG_LEVEL,default=4"`
		MetricsAddr      string `env:"METRICS_ADDR,default=:2112"`
		LLM              LLM
		Moderation       Moderation
	}

	LLM struct {
		APIKey  string        `env:"LLM_API_KEY,required"`
		Model   string        `env:"LLM_API_MODEL,default=gpt-4o-mini"`
		BaseURL string        `env:"LLM_API_URL,default=https://api.openai.com/v1"`
		Type    string        `env:"LLM_API_TYPE,default=openai"`
		Timeout time.Duration `env:"LLM_TIMEOUT,default=30s"`
	}

	Moderation struct {
		SpamThreshold        float64       `env:"SPAM_THRESHOLD,default=8.0"`
		DailyAPILimit        int           `env:"DAILY_API_LIMIT,default=1000"`
		ViolationRetention   time.Duration `env:"VIOLATION_RETENTION,default=720h"`
		DryRun               bool          `env:"DRY_RUN,default=false"`
		WhitelistEnabled     bool          `env:"WHITELIST_ENABLED,default=true"`
		WhitelistPath        string        `env:"WHITELIST_PATH,default=whitelist.yml"`
		TargetChatID         int64         `env:"TARGET_CHAT_ID"`
		AdminRefreshInterval time.Duration `env:"ADMIN_REFRESH_INTERVAL,default=30m"`
	}
)

// Load reads the configuration from SENTRY_-prefixed environment variables.
// Missing required credentials are a startup failure, not a runtime one.
func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	envcfg := envconfig.Config{
		Lookuper: envconfig.PrefixLookuper("SENTRY_", envconfig.OsLookuper()),
		Target:   cfg,
	}
	if err := envconfig.ProcessWith(ctx, &envcfg); err != nil {
		return nil, fmt.Errorf("process env config: %w", err)
	}
	return cfg, nil
}
