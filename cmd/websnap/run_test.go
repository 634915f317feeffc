package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	websnap "github.com/alnah/go-websnap"
	"github.com/alnah/go-websnap/internal/config"
)

func TestOutputName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		ext   string
		want  string
	}{
		{"bare host", "https://example.com", "pdf", "example.com.pdf"},
		{"host with path", "https://example.com/docs/api", "pdf", "example.com-docs-api.pdf"},
		{"trailing slash", "https://example.com/docs/", "png", "example.com-docs.png"},
		{"html file", "report.html", "pdf", "report.pdf"},
		{"nested file", "pages/index.html", "png", "index.png"},
		{"file without extension", "INDEX", "pdf", "INDEX.pdf"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := outputName(tt.input, tt.ext); got != tt.want {
				t.Errorf("outputName(%q, %q) = %q, want %q", tt.input, tt.ext, got, tt.want)
			}
		})
	}
}

func TestBuildJobs(t *testing.T) {
	t.Parallel()

	newParams := func(output string) *renderParams {
		cfg := config.DefaultConfig()
		p, err := resolveParams(cfg, &cliFlags{output: output})
		if err != nil {
			t.Fatalf("resolveParams() error = %v", err)
		}
		return p
	}

	t.Run("url inputs", func(t *testing.T) {
		t.Parallel()
		jobs, err := buildJobs(newParams(""), []string{"https://example.com", "https://other.test/p"})
		if err != nil {
			t.Fatalf("buildJobs() error = %v", err)
		}
		if len(jobs) != 2 {
			t.Fatalf("jobs = %d, want 2", len(jobs))
		}
		if jobs[0].request.Source != websnap.SourceURL || jobs[0].request.URL != "https://example.com" {
			t.Errorf("job 0 request = %+v", jobs[0].request)
		}
		if jobs[0].outputPath != "example.com.pdf" {
			t.Errorf("job 0 output = %q", jobs[0].outputPath)
		}
	})

	t.Run("html file input", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, "page.html")
		writeFile(t, path, "<h1>local</h1>")

		jobs, err := buildJobs(newParams(dir), []string{path})
		if err != nil {
			t.Fatalf("buildJobs() error = %v", err)
		}
		if jobs[0].request.Source != websnap.SourceHTML || !strings.Contains(jobs[0].request.HTML, "local") {
			t.Errorf("job request = %+v", jobs[0].request)
		}
		if jobs[0].outputPath != filepath.Join(dir, "page.pdf") {
			t.Errorf("job output = %q", jobs[0].outputPath)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		t.Parallel()
		_, err := buildJobs(newParams(""), []string{"no-such-file.html"})
		if !errors.Is(err, ErrReadInput) {
			t.Errorf("buildJobs() error = %v, want ErrReadInput", err)
		}
	})

	t.Run("explicit file with multiple inputs errors", func(t *testing.T) {
		t.Parallel()
		_, err := buildJobs(newParams("one.pdf"), []string{"https://a.test", "https://b.test"})
		if !errors.Is(err, websnap.ErrInvalidOptions) {
			t.Errorf("buildJobs() error = %v, want ErrInvalidOptions", err)
		}
	})

	t.Run("explicit file with single input", func(t *testing.T) {
		t.Parallel()
		jobs, err := buildJobs(newParams("exact.pdf"), []string{"https://a.test"})
		if err != nil {
			t.Fatalf("buildJobs() error = %v", err)
		}
		if jobs[0].outputPath != "exact.pdf" {
			t.Errorf("output = %q, want exact.pdf", jobs[0].outputPath)
		}
	})
}

func TestResolveWorkers(t *testing.T) {
	t.Parallel()

	params := &renderParams{
		pool:    websnap.PoolConfig{MaxBrowsers: 2, MaxContextsPerBrowser: 3},
		workers: 0,
	}

	if got := resolveWorkers(params, 10); got != 6 {
		t.Errorf("auto workers = %d, want capacity 6", got)
	}
	if got := resolveWorkers(params, 2); got != 2 {
		t.Errorf("workers for 2 jobs = %d, want 2", got)
	}

	params.workers = 20
	if got := resolveWorkers(params, 10); got != 6 {
		t.Errorf("workers capped = %d, want 6", got)
	}

	params.workers = 1
	if got := resolveWorkers(params, 10); got != 1 {
		t.Errorf("explicit workers = %d, want 1", got)
	}
}

func TestReport(t *testing.T) {
	t.Parallel()

	t.Run("all success", func(t *testing.T) {
		t.Parallel()
		var out, errOut strings.Builder
		err := report([]renderOutcome{
			{input: "https://a.test", outputPath: "a.pdf", bytes: 10},
			{input: "https://b.test", outputPath: "b.pdf", bytes: 20},
		}, false, &out, &errOut)
		if err != nil {
			t.Fatalf("report() error = %v", err)
		}
		if !strings.Contains(out.String(), "a.pdf") || !strings.Contains(out.String(), "b.pdf") {
			t.Errorf("stdout = %q", out.String())
		}
	})

	t.Run("quiet suppresses success lines", func(t *testing.T) {
		t.Parallel()
		var out, errOut strings.Builder
		if err := report([]renderOutcome{{input: "x", outputPath: "x.pdf"}}, true, &out, &errOut); err != nil {
			t.Fatalf("report() error = %v", err)
		}
		if out.String() != "" {
			t.Errorf("stdout = %q, want empty in quiet mode", out.String())
		}
	})

	t.Run("failures returned and printed", func(t *testing.T) {
		t.Parallel()
		var out, errOut strings.Builder
		renderErr := websnap.ErrNavigation
		err := report([]renderOutcome{
			{input: "ok", outputPath: "ok.pdf"},
			{input: "bad", err: renderErr},
		}, false, &out, &errOut)
		if !errors.Is(err, renderErr) {
			t.Errorf("report() error = %v, want wrapped %v", err, renderErr)
		}
		if !strings.Contains(errOut.String(), "FAIL bad") {
			t.Errorf("stderr = %q", errOut.String())
		}
	})
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}
}
