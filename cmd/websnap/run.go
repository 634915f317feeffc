package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	websnap "github.com/alnah/go-websnap"
	"github.com/alnah/go-websnap/internal/config"
	"github.com/alnah/go-websnap/internal/fileutil"
	"go.uber.org/zap"
)

// Sentinel errors for the runner.
var (
	ErrReadInput   = errors.New("failed to read input file")
	ErrWriteOutput = errors.New("failed to write output file")
)

// renderJob is one input resolved to a render request and output path.
type renderJob struct {
	input      string
	outputPath string
	request    websnap.GenerationRequest
}

// renderOutcome holds the result of one render.
type renderOutcome struct {
	input      string
	outputPath string
	pages      int
	bytes      int
	duration   time.Duration
	err        error
}

// run is the CLI entrypoint after flag parsing. Inputs are URLs or
// local HTML files; everything renders through one shared pool.
func run(ctx context.Context, f *cliFlags, inputs []string, stdout, stderr io.Writer) error {
	if len(inputs) == 0 {
		printUsage(stderr)
		return ErrNoInput
	}

	cfg := config.DefaultConfig()
	if f.common.config != "" {
		loaded, err := config.Load(f.common.config)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	params, err := resolveParams(cfg, f)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if f.common.verbose {
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
	}

	pool, err := websnap.NewBrowserPool(params.pool, websnap.WithPoolLogger(logger))
	if err != nil {
		return err
	}
	defer func() { _ = pool.Close() }()

	pipeline := websnap.NewPipeline(pool, websnap.WithLogger(logger))

	jobs, err := buildJobs(params, inputs)
	if err != nil {
		return err
	}

	outcomes := renderBatch(ctx, pipeline, jobs, resolveWorkers(params, len(jobs)))
	return report(outcomes, f.common.quiet, stdout, stderr)
}

// buildJobs resolves each input to a request and an output path.
func buildJobs(params *renderParams, inputs []string) ([]renderJob, error) {
	ext := params.artifactExtension()
	explicitFile := params.output != "" && filepath.Ext(params.output) != ""
	if explicitFile && len(inputs) > 1 {
		return nil, fmt.Errorf("%w: -o names a file but %d inputs given",
			websnap.ErrInvalidOptions, len(inputs))
	}

	jobs := make([]renderJob, 0, len(inputs))
	for _, input := range inputs {
		var html string
		if !fileutil.IsURL(input) {
			data, err := os.ReadFile(input)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrReadInput, input, err)
			}
			html = string(data)
		}

		var outputPath string
		switch {
		case explicitFile:
			outputPath = params.output
		case params.output != "":
			outputPath = filepath.Join(params.output, outputName(input, ext))
		case params.outputDir != "":
			outputPath = filepath.Join(params.outputDir, outputName(input, ext))
		default:
			outputPath = outputName(input, ext)
		}

		jobs = append(jobs, renderJob{
			input:      input,
			outputPath: outputPath,
			request:    params.requestFor(input, html),
		})
	}
	return jobs, nil
}

// outputName derives an artifact filename from a URL or file path.
func outputName(input, ext string) string {
	if fileutil.IsURL(input) {
		name := "page"
		if u, err := url.Parse(input); err == nil && u.Hostname() != "" {
			name = u.Hostname()
			if p := strings.Trim(u.Path, "/"); p != "" {
				name += "-" + strings.ReplaceAll(p, "/", "-")
			}
		}
		return name + "." + ext
	}
	base := filepath.Base(input)
	return strings.TrimSuffix(base, filepath.Ext(base)) + "." + ext
}

// resolveWorkers caps concurrency at total context capacity so workers
// never just queue on the pool.
func resolveWorkers(params *renderParams, jobCount int) int {
	capacity := params.pool.MaxBrowsers * params.pool.MaxContextsPerBrowser
	if capacity == 0 {
		capacity = websnap.DefaultMaxBrowsers * websnap.DefaultMaxContextsPerBrowser
	}

	workers := params.workers
	if workers <= 0 || workers > capacity {
		workers = capacity
	}
	if workers > jobCount {
		workers = jobCount
	}
	return workers
}

// renderBatch renders jobs concurrently through the shared pipeline.
func renderBatch(ctx context.Context, pipeline *websnap.Pipeline, jobs []renderJob, workers int) []renderOutcome {
	outcomes := make([]renderOutcome, len(jobs))
	work := make(chan int, len(jobs))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range work {
				outcomes[idx] = renderOne(ctx, pipeline, jobs[idx])
			}
		}()
	}

	for idx := range jobs {
		work <- idx
	}
	close(work)
	wg.Wait()
	return outcomes
}

// renderOne renders a single job and writes its artifact.
func renderOne(ctx context.Context, pipeline *websnap.Pipeline, job renderJob) renderOutcome {
	out := renderOutcome{input: job.input, outputPath: job.outputPath}
	if ctx.Err() != nil {
		out.err = ctx.Err()
		return out
	}

	result, err := pipeline.Generate(ctx, job.request)
	if err != nil {
		out.err = err
		return out
	}

	if err := fileutil.WriteArtifact(job.outputPath, result.Data); err != nil {
		out.err = fmt.Errorf("%w: %s: %v", ErrWriteOutput, job.outputPath, err)
		return out
	}

	out.pages = result.Pages
	out.bytes = result.FileSize
	out.duration = result.Duration
	return out
}

// report prints per-job results and returns the first failure.
func report(outcomes []renderOutcome, quiet bool, stdout, stderr io.Writer) error {
	var firstErr error
	failed := 0
	for _, out := range outcomes {
		if out.err != nil {
			failed++
			if firstErr == nil {
				firstErr = out.err
			}
			fmt.Fprintf(stderr, "FAIL %s: %v\n", out.input, out.err)
			continue
		}
		if !quiet {
			fmt.Fprintf(stdout, "OK   %s -> %s (%d bytes, %s)\n",
				out.input, out.outputPath, out.bytes, out.duration.Round(time.Millisecond))
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d renders failed: %w", failed, len(outcomes), firstErr)
	}
	return nil
}
