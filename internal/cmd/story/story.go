// Package story parses story command flags and starts the service runtime.
package story

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/emberleaf/emberleaf/internal/platform/cmd"
	"github.com/emberleaf/emberleaf/internal/services/story/app"
)

// Config holds story command configuration.
type Config struct {
	Port           int           `env:"EMBERLEAF_STORY_PORT" envDefault:"8080"`
	Addr           string        `env:"EMBERLEAF_STORY_ADDR"`
	DBPath         string        `env:"EMBERLEAF_STORY_DB_PATH"`
	SessionSecret  string        `env:"EMBERLEAF_SESSION_SECRET"`
	RefillInterval time.Duration `env:"EMBERLEAF_REFILL_INTERVAL"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The story server port")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The story server listen address (overrides -port)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the story SQLite database")
	fs.DurationVar(&cfg.RefillInterval, "refill-interval", cfg.RefillInterval, "Time between credit refill ticks")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the story API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceStory, func(context.Context) error {
		addr := cfg.Addr
		if addr == "" {
			addr = fmt.Sprintf(":%d", cfg.Port)
		}
		return app.Run(ctx, addr, app.Options{
			DBPath:         cfg.DBPath,
			SessionSecret:  cfg.SessionSecret,
			RefillInterval: cfg.RefillInterval,
		})
	})
}
