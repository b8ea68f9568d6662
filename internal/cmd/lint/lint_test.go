package lint

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunEmbeddedContentPasses(t *testing.T) {
	var out bytes.Buffer
	if err := Run(context.Background(), Config{}, &out); err != nil {
		t.Fatalf("lint embedded content: %v", err)
	}
	if !strings.Contains(out.String(), "content ok") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestRunReportsDanglingEdge(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "stories"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	broken := `
id = "broken"
title = "Broken"
genre = "test"
start = "a"

[[nodes]]
id = "a"

[[nodes.segments]]
text = "hello"

[[nodes.choices]]
id = "go"
text = "Go"
next = "missing"
`
	if err := os.WriteFile(filepath.Join(dir, "stories", "broken.toml"), []byte(broken), 0o644); err != nil {
		t.Fatalf("write story: %v", err)
	}

	var out bytes.Buffer
	err := Run(context.Background(), Config{ContentDir: dir}, &out)
	if err == nil {
		t.Fatal("expected lint failure")
	}
	if !strings.Contains(out.String(), "dangling-edge") {
		t.Fatalf("output = %q", out.String())
	}
}
