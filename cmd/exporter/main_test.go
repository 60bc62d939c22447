package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Sternrassler/archive-exporter/internal/testutil"
	"github.com/Sternrassler/archive-exporter/pkg/coordinator"
	"github.com/Sternrassler/archive-exporter/pkg/export"
	"github.com/Sternrassler/archive-exporter/pkg/pagination"
	"github.com/rs/zerolog"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadConfig_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exporter.yaml")
	data := "listing_url: https://file.example.com/api/v1/archive?sort=new\nconcurrency: 3\nbatch_size: 7\nprefix: from_file\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	env := envMap(map[string]string{
		"EXPORTER_CONCURRENCY": "4",
		"EXPORTER_PREFIX":      "from_env",
	})

	cfg, notes, err := loadConfig([]string{"-config", path, "-concurrency", "5", "-front-matter"}, env, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("notes = %v, want none", notes)
	}

	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5 from flag", cfg.Concurrency)
	}
	if cfg.Prefix != "from_env" {
		t.Errorf("Prefix = %q, want from_env", cfg.Prefix)
	}
	if cfg.BatchSize != 7 {
		t.Errorf("BatchSize = %d, want 7 from file", cfg.BatchSize)
	}
	if !cfg.FrontMatter {
		t.Error("FrontMatter should be set by flag")
	}
	if cfg.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want default 5", cfg.MaxRetries)
	}
}

func TestLoadConfig_ClampNotes(t *testing.T) {
	args := []string{"-listing-url", "https://example.com/api", "-concurrency", "50", "-backoff", "10ms"}

	cfg, notes, err := loadConfig(args, noEnv, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if cfg.Concurrency != 12 {
		t.Errorf("Concurrency = %d, want 12", cfg.Concurrency)
	}
	if cfg.BackoffBase != 100*time.Millisecond {
		t.Errorf("BackoffBase = %v, want 100ms", cfg.BackoffBase)
	}
	if len(notes) != 2 {
		t.Errorf("notes = %v, want 2", notes)
	}
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing listing url", nil, nil},
		{"unknown flag", []string{"-zip-level", "9"}, nil},
		{"bad mode", []string{"-listing-url", "https://example.com/a", "-mode", "tar"}, nil},
		{"bad backoff", []string{"-listing-url", "https://example.com/a", "-backoff", "soon"}, nil},
		{"bad env", []string{"-listing-url", "https://example.com/a"}, map[string]string{"EXPORTER_BATCH_SIZE": "many"}},
		{"missing config file", []string{"-config", "/nonexistent/exporter.yaml"}, nil},
		{"stray argument", []string{"-listing-url", "https://example.com/a", "extra"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := loadConfig(tt.args, envMap(tt.env), &bytes.Buffer{}); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, exitOK},
		{"cancelled", export.ErrCancelled, exitCancelled},
		{"context cancelled", fmt.Errorf("fetch: %w", context.Canceled), exitCancelled},
		{"listing", fmt.Errorf("list items: %w", &pagination.ListingError{Err: errors.New("boom")}), exitListing},
		{"storage", &export.StorageError{Key: "a.zip", Err: errors.New("disk full")}, exitStorage},
		{"other", errors.New("boom"), exitError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestWatchSignals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 2)
	token := coordinator.NewToken()
	done := make(chan struct{})
	go func() {
		watchSignals(ctx, signals, token, cancel, zerolog.Nop())
		close(done)
	}()

	signals <- os.Interrupt
	select {
	case <-token.Done():
	case <-time.After(time.Second):
		t.Fatal("first signal did not cancel the token")
	}
	if ctx.Err() != nil {
		t.Fatal("first signal must not cancel the context")
	}

	signals <- os.Interrupt
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("second signal did not cancel the context")
	}
	<-done
}

func TestFormatProgress(t *testing.T) {
	got := formatProgress(coordinator.Snapshot{
		Phase:    coordinator.PhaseFetching,
		Total:    10,
		Resolved: 4,
		Failed:   1,
		Fraction: 0.32,
		Current:  "https://example.com/p/a",
	})
	want := "fetching  32% 4/10 (1 failed) https://example.com/p/a"
	if got != want {
		t.Errorf("formatProgress() = %q, want %q", got, want)
	}
}

func TestRun_BatchToDirectory(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.AddPosts(5)

	out := filepath.Join(t.TempDir(), "export")
	var stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-listing-url", mock.ListingURL(),
		"-output", out,
		"-batch-size", "2",
		"-log-level", "error",
	}, noEnv, &stderr)
	if code != exitOK {
		t.Fatalf("run() = %d, want 0; stderr:\n%s", code, stderr.String())
	}

	for _, name := range []string{"newsletter_export_part_001.md", "newsletter_export_part_002.md", "newsletter_export_part_003.md"} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if !strings.Contains(stderr.String(), "Exported 5/5 items") {
		t.Errorf("summary missing from stderr:\n%s", stderr.String())
	}
}

func TestRun_ContainerToMemory(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.AddPosts(3)

	var stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-listing-url", mock.ListingURL(),
		"-output", "mem://",
		"-mode", "container",
		"-log-level", "error",
	}, noEnv, &stderr)
	if code != exitOK {
		t.Fatalf("run() = %d, want 0; stderr:\n%s", code, stderr.String())
	}
}

func TestRun_ExitCodes(t *testing.T) {
	mock := testutil.NewMockSource()
	defer mock.Close()
	mock.Script(testutil.ListingPath, testutil.NewNotFoundResponse())

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"invalid args", []string{"-mode", "tar"}, exitUsage},
		{"listing failed", []string{"-listing-url", mock.ListingURL(), "-output", "mem://", "-log-level", "error"}, exitListing},
		{"unopenable output", []string{"-listing-url", mock.ListingURL(), "-output", "nosuchscheme://x", "-log-level", "error"}, exitStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := run(context.Background(), tt.args, noEnv, &bytes.Buffer{}); got != tt.want {
				t.Errorf("run() = %d, want %d", got, tt.want)
			}
		})
	}
}
