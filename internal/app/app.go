// Package app assembles the extraction service from configuration. Both
// binaries build one App and differ only in the surface they put on top.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/joseph-ayodele/creditreport-extractor/internal/async"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
	"github.com/joseph-ayodele/creditreport-extractor/internal/export"
	"github.com/joseph-ayodele/creditreport-extractor/internal/ingest"
	"github.com/joseph-ayodele/creditreport-extractor/internal/lock"
	"github.com/joseph-ayodele/creditreport-extractor/internal/metrics"
	"github.com/joseph-ayodele/creditreport-extractor/internal/ocr"
	"github.com/joseph-ayodele/creditreport-extractor/internal/parser"
	"github.com/joseph-ayodele/creditreport-extractor/internal/pipeline"
	"github.com/joseph-ayodele/creditreport-extractor/internal/quality"
	"github.com/joseph-ayodele/creditreport-extractor/internal/repository"
	"github.com/joseph-ayodele/creditreport-extractor/internal/server"
)

// Thresholds is the optional YAML file named by THRESHOLDS_FILE. Keys it
// omits keep the environment or built-in values.
type Thresholds struct {
	Quality      quality.Config              `yaml:"quality"`
	Orchestrator pipeline.OrchestratorConfig `yaml:"orchestrator"`
	Consolidator pipeline.ConsolidatorConfig `yaml:"consolidator"`
}

// LoadThresholds starts from the environment's orchestration bounds and the
// shipped scoring values, then overlays the file if one is configured.
func LoadThresholds(cfg *common.Config) (Thresholds, error) {
	t := Thresholds{
		Quality: quality.DefaultConfig(),
		Orchestrator: pipeline.OrchestratorConfig{
			MaxDocumentBytes: cfg.Orchestration.MaxDocumentBytes,
			Deadline:         cfg.Orchestration.Deadline,
			MethodTimeout:    cfg.Orchestration.MethodTimeout,
			MaxAttempts:      cfg.Orchestration.MaxAttempts,
			BaseBackoff:      cfg.Orchestration.BaseBackoff,
			MaxBackoff:       cfg.Orchestration.MaxBackoff,
		},
		Consolidator: pipeline.DefaultConsolidatorConfig(),
	}
	if err := common.LoadYAML(cfg.ThresholdsFile, &t); err != nil {
		return t, err
	}
	return t, nil
}

// OCRConfig maps the credential settings onto the method set's config.
func OCRConfig(c common.OCRConfig) ocr.Config {
	return ocr.Config{
		DocumentAI: ocr.DocumentAIConfig{
			ProjectID:       c.DocumentAI.ProjectID,
			Location:        c.DocumentAI.Location,
			ProcessorID:     c.DocumentAI.ProcessorID,
			CredentialsFile: c.DocumentAI.CredentialsFile,
		},
		Vision: ocr.VisionConfig{
			ProjectID: c.Vision.ProjectID,
			Region:    c.Vision.Region,
			Model:     c.Vision.Model,
		},
		Managed: ocr.ManagedOCRConfig{
			BaseURL: c.Managed.BaseURL,
			APIKey:  c.Managed.APIKey,
			Model:   c.Managed.Model,
			Timeout: c.Managed.Timeout,
		},
		Local:        ocr.LocalConfig{Pdftotext: c.Pdftotext},
		LocalEnabled: c.LocalEnabled,
	}
}

type options struct {
	queue    bool
	methods  *ocr.MethodSet
	registry *prometheus.Registry
}

type Option func(*options)

// WithQueue starts the worker pool so requests may run asynchronously.
func WithQueue() Option {
	return func(o *options) { o.queue = true }
}

// WithMethods replaces the credential-driven method set.
func WithMethods(s *ocr.MethodSet) Option {
	return func(o *options) { o.methods = s }
}

func WithRegistry(r *prometheus.Registry) Option {
	return func(o *options) { o.registry = r }
}

// App holds every long-lived component.
type App struct {
	Config     *common.Config
	Thresholds Thresholds
	DB         *repository.DB
	Documents  repository.DocumentRepository
	Ledger     repository.LedgerRepository
	Entities   repository.EntityRepository
	Methods    *ocr.MethodSet
	Processor  *pipeline.Processor
	Ingestor   *ingest.FSIngestor
	Exporter   *export.Service
	Queue      *async.ProcessorQueue
	Service    *server.ExtractionService
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics

	redis  *lock.RedisLocker
	logger *slog.Logger
}

// New connects storage, builds the enabled methods and wires the pipeline.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger, opts ...Option) (a *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	thresholds, err := LoadThresholds(cfg)
	if err != nil {
		return nil, err
	}

	a = &App{Config: cfg, Thresholds: thresholds, logger: logger}
	defer func() {
		if err != nil {
			a.Close(context.Background())
			a = nil
		}
	}()

	a.DB, err = repository.Connect(ctx, repository.ConfigFrom(cfg.Database), logger)
	if err != nil {
		return a, err
	}
	if err = a.DB.Migrate(ctx); err != nil {
		return a, err
	}
	a.Documents = repository.NewDocumentRepository(a.DB, logger)
	a.Ledger = repository.NewLedgerRepository(a.DB, logger)
	a.Entities = repository.NewEntityRepository(a.DB, logger)

	a.Registry = o.registry
	if a.Registry == nil {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	a.Metrics = metrics.New(a.Registry)

	a.Methods = o.methods
	if a.Methods == nil {
		a.Methods = ocr.NewMethodSet(ctx, OCRConfig(cfg.OCR), logger)
	}

	var locker lock.Locker = lock.NewLocal()
	a.redis, err = lock.NewRedisFromURL(ctx, cfg.Redis.URL, cfg.Redis.LockTTL, logger)
	if err != nil {
		return a, err
	}
	if a.redis != nil {
		locker = a.redis
	}

	orch := pipeline.NewOrchestrator(thresholds.Orchestrator,
		quality.NewScorer(thresholds.Quality),
		quality.NewValidator(thresholds.Quality, logger),
		logger,
		pipeline.WithAttemptSink(a.Ledger),
		pipeline.WithMetrics(a.Metrics),
		pipeline.WithFallback(ocr.NewLocalMethod(ocr.LocalConfig{Pdftotext: cfg.OCR.Pdftotext}, logger)),
	)
	a.Processor = pipeline.NewProcessor(pipeline.Deps{
		Documents:    a.Documents,
		Ledger:       a.Ledger,
		Entities:     a.Entities,
		Orchestrator: orch,
		Consolidator: pipeline.NewConsolidator(thresholds.Consolidator),
		Parser:       parser.New(parser.WithLogger(logger)),
		Methods:      a.Methods,
	}, logger, pipeline.WithLocker(locker), pipeline.WithRunMetrics(a.Metrics))

	a.Ingestor = ingest.NewFSIngestor(a.Documents, cfg.OCR.ArtifactDir, logger)
	a.Exporter = export.NewService(a.Documents, a.Ledger, a.Entities, logger)

	deps := server.Deps{
		Documents: a.Documents,
		Ledger:    a.Ledger,
		Entities:  a.Entities,
		Runner:    a.Processor,
		Ingestor:  a.Ingestor,
		Exporter:  a.Exporter,
	}
	if o.queue {
		a.Queue = async.NewProcessorQueue(a.Processor, logger, async.FromConfig(cfg.Queue)...)
		deps.Queue = a.Queue
	}
	a.Service = server.NewExtractionService(deps, logger)
	return a, nil
}

// Health pings the database and, when configured, Redis.
func (a *App) Health(ctx context.Context) error {
	if err := a.DB.HealthCheck(ctx, 2*time.Second); err != nil {
		return err
	}
	if a.redis != nil {
		return a.redis.Health(ctx)
	}
	return nil
}

// Close drains the queue before releasing clients and the database.
func (a *App) Close(ctx context.Context) {
	if a.Queue != nil {
		a.Queue.Shutdown(ctx)
	}
	var errs []error
	if a.Methods != nil {
		errs = append(errs, a.Methods.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("app.close.failed", "error", err)
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
