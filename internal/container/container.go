package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"faersignal/adapters/excel"
	"faersignal/adapters/memory"
	"faersignal/adapters/openfda"
	"faersignal/adapters/postgres"
	"faersignal/adapters/qfiles"
	"faersignal/adapters/rxnorm"
	"faersignal/app"
	"faersignal/domain/analysis"
	"faersignal/domain/core"
	"faersignal/internal"
	"faersignal/internal/aggregate"
	"faersignal/internal/config"
	"faersignal/internal/errors"
	"faersignal/internal/testkit"
	"faersignal/ports"
)

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Logger *internal.Logger

	// Infrastructure
	DB *sqlx.DB

	// Data access
	RunRepo    ports.RunRepository
	DrugRepo   ports.DrugRepository
	Reports    ports.ReportStore
	PairCounts ports.PairCountSource
	DemoStore  *aggregate.Store

	// Services
	Normalizer    ports.DrugNormalizer
	Batch         *app.BatchService
	Analysis      *app.AnalysisService
	Normalization *app.NormalizationService
	Ingest        *app.IngestService
	Exporter      *excel.Exporter
}

// Report feed names accepted by ReportFeed.
const (
	FeedOpenFDA = "openfda"
	FeedQFiles  = "qfiles"
)

// New creates a container backed by in-memory stores. Call InitWithDatabase
// to switch runs and pair counts to postgres.
func New(cfg *config.Config, logger *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}

	c := &Container{
		Config:    cfg,
		Logger:    logger,
		RunRepo:   memory.NewRunRepository(),
		DemoStore: aggregate.NewStore(testkit.DemoReports()...),
		Exporter:  excel.NewExporter(cfg.Paths.ExportDir),
	}
	c.Reports = c.DemoStore

	normalizer, err := rxnorm.NewClient(rxnorm.Config{
		BaseURL:     cfg.RxNorm.BaseURL,
		Timeout:     cfg.RxNorm.Timeout,
		RateLimit:   cfg.RxNorm.RPS,
		CacheSize:   cfg.RxNorm.CacheSize,
		MaxFailures: cfg.RxNorm.MaxFailures,
	}, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create drug normalizer: %w", err)
	}
	c.Normalizer = normalizer

	c.buildServices()
	return c, nil
}

// InitWithDatabase initializes components that require database access
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.DB = db
	c.RunRepo = postgres.NewRunRepository(db)
	c.DrugRepo = postgres.NewDrugRepository(db)
	c.Reports = postgres.NewReportRepository(db)
	c.PairCounts = postgres.NewPairCountRepository(db)

	c.buildServices()
	c.Logger.Info("Container initialized with database connection")
	return nil
}

func (c *Container) buildServices() {
	c.Batch = app.NewBatchService(c.Logger)
	c.Analysis = app.NewAnalysisService(c.Batch, c.Sources, c.Logger,
		app.WithRunRepository(c.RunRepo),
		app.WithNormalizer(c.Normalizer),
		app.WithWorkers(c.Config.Signal.Workers),
	)
	c.Normalization = app.NewNormalizationService(c.Normalizer, c.Logger)
	c.Ingest = app.NewIngestService(c.Reports, c.Normalization, c.Logger)
}

// ReportFeed resolves an ingestion source. openfda reads the live API, or
// a downloaded .json or .zip when input is set; qfiles reads a quarterly
// extract directory or zip.
func (c *Container) ReportFeed(source, input string) (ports.ReportFeed, error) {
	switch source {
	case FeedOpenFDA:
		if input != "" {
			return openfda.NewFileFeed(input, c.Logger), nil
		}
		cfg := c.Config.OpenFDA
		return openfda.NewClient(openfda.Config{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Timeout:     cfg.Timeout,
			RateLimit:   cfg.RPS,
			MaxFailures: cfg.MaxFailures,
			Retries:     cfg.Retries,
		}, c.Logger), nil
	case FeedQFiles:
		if input == "" {
			return nil, errors.InvalidInput("qfiles needs an input directory or zip")
		}
		return qfiles.NewReader(input, qfiles.DefaultBatchSize, c.Logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownSource, source)
	}
}

// Sources resolves the pair count source a spec names.
func (c *Container) Sources(spec analysis.Spec) (ports.PairCountSource, error) {
	switch spec.Source {
	case analysis.SourceDemo:
		return c.DemoStore, nil
	case analysis.SourceDB:
		if c.PairCounts == nil {
			return nil, fmt.Errorf("%w: source db needs DATABASE_URL", core.ErrUnknownSource)
		}
		return c.PairCounts, nil
	case analysis.SourceFile:
		return excel.NewPairCountReader(spec.InputPath, c.Logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnknownSource, spec.Source)
	}
}

// DefaultSpec is analysis.DefaultSpec with the configured signal settings.
func (c *Container) DefaultSpec() analysis.Spec {
	spec := analysis.DefaultSpec()
	s := c.Config.Signal
	spec.SignalMode = s.Mode
	spec.Ranking = s.Ranking
	spec.MinA = s.MinA
	spec.SuspectOnly = s.SuspectOnly
	spec.FDR = s.ApplyFDR
	if c.DB != nil {
		spec.Source = analysis.SourceDB
	}
	return spec
}

// OpenDatabase connects to postgres and applies the pool settings.
func OpenDatabase(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if !cfg.Enabled() {
		return nil, errors.ConfigInvalid("DATABASE_URL is required")
	}
	db, err := sqlx.Connect("postgres", cfg.URL)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// Shutdown releases the database connection.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
