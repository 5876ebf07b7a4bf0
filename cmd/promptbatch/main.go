// Command promptbatch runs a batch of multimodal prompts against a model
// backend: it loads and samples the dataset, fans the tasks out over a worker
// pool with retry and a run-level stop policy, and appends one JSONL record
// per attempted task into a numbered job folder.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/promptbatch/promptbatch/internal/config"
	"github.com/promptbatch/promptbatch/internal/dataset"
	"github.com/promptbatch/promptbatch/internal/dispatch"
	"github.com/promptbatch/promptbatch/internal/events"
	"github.com/promptbatch/promptbatch/internal/jobs"
	"github.com/promptbatch/promptbatch/internal/logging"
	"github.com/promptbatch/promptbatch/internal/metrics"
	"github.com/promptbatch/promptbatch/internal/provider"
	"github.com/promptbatch/promptbatch/internal/runindex"
	"github.com/promptbatch/promptbatch/internal/sample"
	"github.com/promptbatch/promptbatch/internal/sink"
)

// Exit codes: 0 every task produced a genuine answer, 1 the run finished with
// failed tasks (or was interrupted), 2 the stop policy halted the run early.
const (
	exitOK      = 0
	exitPartial = 1
	exitStopped = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("promptbatch", flag.ExitOnError)
	var (
		configPath  = fs.String("config", "", "path to a config file (overrides the conventional paths)")
		providerArg = fs.String("provider", "", "provider entry to use")
		modelArg    = fs.String("model", "", "model name")
		workers     = fs.Int("workers", 0, "worker pool size")
		maxTasks    = fs.Int("max-tasks", 0, "cap on dispatched tasks, 0 runs the whole sampled set")
		sampleRate  = fs.Float64("sample-rate", 0, "fraction of each category to run")
		seed        = fs.Int64("seed", 0, "sampling seed")
		imageTypes  = fs.String("image-types", "", "comma-separated image types (SD, SD_TYPO, TYPO)")
		categories  = fs.String("categories", "", "comma-separated category filter, empty runs all")
		outputDir   = fs.String("output", "", "results root directory")
		qps         = fs.Float64("qps", 0, "provider calls per second across all workers, 0 disables")
		metricsAddr = fs.String("metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
		verbose     = fs.Bool("verbose", false, "debug logging")
	)
	fs.Parse(args)

	log := logging.New(*verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration, then apply only the flags the user actually set.
	var cfg *config.RunConfig
	var err error
	if *configPath != "" {
		cfg, err = config.Load("", *configPath)
	} else {
		cfg, err = config.LoadDefault()
	}
	if err != nil {
		log.Error().Err(err).Msg("loading config")
		return exitPartial
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "provider":
			cfg.Provider = *providerArg
		case "model":
			cfg.Model = *modelArg
		case "workers":
			cfg.Workers = *workers
		case "max-tasks":
			cfg.MaxTasks = *maxTasks
		case "sample-rate":
			cfg.Sampling.Rate = *sampleRate
		case "seed":
			cfg.Sampling.Seed = *seed
		case "image-types":
			cfg.Dataset.ImageTypes = splitList(*imageTypes)
		case "categories":
			cfg.Dataset.Categories = splitList(*categories)
		case "output":
			cfg.OutputDir = *outputDir
		case "qps":
			cfg.QPS = *qps
		}
	})

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitPartial
	}

	// Provider adapter behind the transport circuit breaker. The process
	// manager tracks CLI subprocesses so an interrupt can kill them all.
	pm := provider.NewProcessManager()
	defer pm.KillAll()

	settings, err := cfg.ProviderSettings()
	if err != nil {
		log.Error().Err(err).Msg("resolving provider")
		return exitPartial
	}
	p, err := provider.New(settings, pm)
	if err != nil {
		log.Error().Err(err).Msg("creating provider")
		return exitPartial
	}
	defer p.Close()
	breakers := provider.NewBreakerRegistry(log)
	p = provider.WithBreaker(p, breakers.Get(settings.Type))

	// Dataset load and deterministic per-category sampling.
	items, err := dataset.LoadInterleaved(cfg.Dataset.QuestionGlob, cfg.Dataset.ImageBase, cfg.Dataset.ImageTypes, cfg.Dataset.Categories)
	if err != nil {
		log.Error().Err(err).Msg("loading dataset")
		return exitPartial
	}
	sampled, stats, err := sample.ByCategory(items, func(it dataset.Item) string { return it.Category }, cfg.Sampling.Seed, cfg.Sampling.Rate)
	if err != nil {
		log.Error().Err(err).Msg("sampling dataset")
		return exitPartial
	}
	for cat, st := range stats {
		log.Debug().Str("category", cat).Int("total", st.Total).Int("sampled", st.Sampled).Msg("category sampled")
	}
	log.Info().
		Int("items", len(items)).
		Int("sampled", len(sampled)).
		Float64("rate", cfg.Sampling.Rate).
		Int64("seed", cfg.Sampling.Seed).
		Msg("dataset ready")

	// Job folder with the effective config and the results file.
	jm, err := jobs.NewManager(cfg.OutputDir)
	if err != nil {
		log.Error().Err(err).Msg("preparing results root")
		return exitPartial
	}
	startedAt := time.Now()
	runDir, err := jm.CreateRunDir(cfg.Provider, cfg.Model, startedAt)
	if err != nil {
		log.Error().Err(err).Msg("creating run folder")
		return exitPartial
	}
	if err := config.Save(redacted(cfg), filepath.Join(runDir, "config.json")); err != nil {
		log.Warn().Err(err).Msg("saving effective config")
	}
	results, err := sink.NewJSONL(filepath.Join(runDir, "results.jsonl"))
	if err != nil {
		log.Error().Err(err).Msg("opening results file")
		return exitPartial
	}
	defer results.Close()

	// Observability: event bus feeding the Prometheus collectors.
	bus := events.NewBus()
	m := metrics.New()
	metricsDone := make(chan struct{})
	go func() {
		m.Consume(bus.SubscribeAll(0))
		close(metricsDone)
	}()
	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Warn().Err(err).Str("addr", *metricsAddr).Msg("metrics server stopped")
			}
		}()
		log.Info().Str("addr", *metricsAddr).Msg("serving metrics")
	}

	// Run index row, written at start and finalized after the run.
	runID := uuid.NewString()
	index, err := runindex.NewSQLiteStore(ctx, filepath.Join(cfg.OutputDir, "runs.db"))
	if err != nil {
		log.Warn().Err(err).Msg("run index unavailable, continuing without it")
		index = nil
	} else {
		defer index.Close()
		saveRunRow(ctx, index, runID, runDir, cfg, dispatch.Stats{}, exitPartial, startedAt, log)
	}

	d, err := dispatch.New(cfg.DispatchConfig(), p, results, bus, log)
	if err != nil {
		log.Error().Err(err).Msg("configuring dispatcher")
		return exitPartial
	}

	log.Info().
		Str("run", runID).
		Str("dir", runDir).
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Msg("starting run")

	runStats, runErr := d.Run(ctx, newItemSource(sampled, log))

	bus.Close()
	<-metricsDone

	code := exitOK
	switch {
	case runStats.Tripped():
		code = exitStopped
	case runErr != nil || runStats.Errors > 0:
		code = exitPartial
	}

	summary := jobs.Summary{
		RunID:      runID,
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		Dispatched: runStats.Dispatched,
		Completed:  runStats.Completed,
		Errors:     runStats.Errors,
		StopReason: runStats.StopReason,
		ExitCode:   code,
		StartedAt:  startedAt.UTC(),
		DurationS:  runStats.Elapsed.Seconds(),
	}
	if err := jobs.WriteSummary(runDir, summary); err != nil {
		log.Warn().Err(err).Msg("writing summary")
	}
	if index != nil {
		saveRunRow(ctx, index, runID, runDir, cfg, runStats, code, startedAt, log)
	}

	evt := log.Info()
	if runErr != nil {
		evt = log.Warn().Err(runErr)
	}
	evt.
		Int("dispatched", runStats.Dispatched).
		Int("completed", runStats.Completed).
		Int("errors", runStats.Errors).
		Str("elapsed", dispatch.FormatDuration(runStats.Elapsed)).
		Int("exit_code", code).
		Msg("run finished")
	if runStats.Tripped() {
		log.Error().Str("reason", runStats.StopReason).Msg("run halted by stop policy")
	}

	return code
}

// saveRunRow writes the index row; failures are logged, never fatal.
func saveRunRow(ctx context.Context, index runindex.Store, runID, runDir string, cfg *config.RunConfig, st dispatch.Stats, code int, startedAt time.Time, log zerolog.Logger) {
	err := index.SaveRun(ctx, runindex.Run{
		ID:         runID,
		JobFolder:  runDir,
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		Dispatched: st.Dispatched,
		Completed:  st.Completed,
		Errors:     st.Errors,
		StopReason: st.StopReason,
		ExitCode:   code,
		StartedAt:  startedAt.UTC(),
		DurationS:  st.Elapsed.Seconds(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("updating run index")
	}
}

// redacted copies the config with provider secrets blanked, safe to persist
// into the job folder.
func redacted(cfg *config.RunConfig) *config.RunConfig {
	out := *cfg
	out.Providers = make(map[string]config.ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		if p.APIKey != "" {
			p.APIKey = "<redacted>"
		}
		out.Providers[name] = p
	}
	return &out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// itemSource feeds the dispatcher, building each prompt (and reading its
// image) only when a worker is ready for it. Items whose image is missing are
// skipped with a warning instead of poisoning the run.
type itemSource struct {
	items []dataset.Item
	pos   int
	log   zerolog.Logger
}

func newItemSource(items []dataset.Item, log zerolog.Logger) *itemSource {
	return &itemSource{items: items, log: log}
}

func (s *itemSource) Next() (dispatch.Task, bool) {
	for s.pos < len(s.items) {
		item := s.items[s.pos]
		s.pos++

		req, err := dataset.BuildRequest(item)
		if err != nil {
			s.log.Warn().Err(err).
				Str("category", item.Category).
				Str("index", item.Index).
				Msg("skipping item")
			continue
		}
		id := fmt.Sprintf("%s/%s/%s", item.Category, item.ImageType, item.Index)
		return dispatch.Task{ID: id, Category: item.Category, Request: req}, true
	}
	return dispatch.Task{}, false
}
