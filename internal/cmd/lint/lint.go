// Package lint validates authored story content and reports every issue.
package lint

import (
	"context"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"

	entrypoint "github.com/emberleaf/emberleaf/internal/platform/cmd"
	"github.com/emberleaf/emberleaf/internal/services/story/catalog"
	"github.com/emberleaf/emberleaf/internal/services/story/catalog/content"
)

// Config holds lint command configuration.
type Config struct {
	// ContentDir points at an external content tree. Empty lints the
	// embedded catalog.
	ContentDir string `env:"EMBERLEAF_CONTENT_DIR"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.ContentDir, "content", cfg.ContentDir, "Content directory to lint (defaults to the embedded catalog)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run lints the configured content tree, writing findings to out. It
// returns an error when any finding exists so callers exit nonzero.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = os.Stdout
	}
	contentFS := fsFor(cfg)
	findings, err := catalog.Lint(contentFS)
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		fmt.Fprintln(out, "content ok")
		return nil
	}
	for _, finding := range findings {
		fmt.Fprintln(out, finding)
	}
	return fmt.Errorf("%d content issue(s) found", len(findings))
}

func fsFor(cfg Config) fs.FS {
	if cfg.ContentDir == "" {
		return content.FS
	}
	return os.DirFS(cfg.ContentDir)
}
