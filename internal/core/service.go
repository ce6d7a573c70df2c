package core

import (
	"log/slog"
	"time"
)

// Import defaults used when ServiceConfig leaves a field zero.
const (
	DefaultMaxFileSize   int64 = 50 * 1024 * 1024
	DefaultImportTimeout       = 2 * time.Minute
	DefaultSampleRows          = 5
)

// ContextCheckInterval is how often, in rows, long loops check for
// cancellation.
var ContextCheckInterval = 100

// ServiceConfig carries the import limits. Zero values select defaults.
type ServiceConfig struct {
	MaxFileSize          int64
	ImportTimeout        time.Duration
	MaxConcurrentImports int
	ImportWait           time.Duration
	SampleRows           int
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.ImportTimeout <= 0 {
		c.ImportTimeout = DefaultImportTimeout
	}
	if c.SampleRows <= 0 {
		c.SampleRows = DefaultSampleRows
	}
	return c
}

// Service is the entry point for statement imports and recurring
// materialization. It is safe for concurrent use.
type Service struct {
	store        TransactionStore
	clock        Clock
	logger       *slog.Logger
	policy       DuplicatePolicy
	cfg          ServiceConfig
	limiter      *ImportLimiter
	inserter     *BatchInserter
	materializer *Materializer
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger used for import and scheduler events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithDuplicatePolicy replaces DefaultDuplicatePolicy.
func WithDuplicatePolicy(p DuplicatePolicy) Option {
	return func(s *Service) { s.policy = p }
}

// NewService wires the import pipeline and materializer around store.
func NewService(store TransactionStore, cfg ServiceConfig, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  SystemClock{},
		logger: slog.Default(),
		cfg:    cfg.withDefaults(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.limiter = NewImportLimiter(s.cfg.MaxConcurrentImports, s.cfg.ImportWait)
	s.inserter = NewBatchInserter(store, s.policy)
	s.materializer = NewMaterializer(store, s.clock, s.logger)
	return s
}

// Limiter exposes the import limiter for health reporting and shutdown.
func (s *Service) Limiter() *ImportLimiter { return s.limiter }

// Materializer returns the recurring materializer bound to this service.
func (s *Service) Materializer() *Materializer { return s.materializer }

// MaxFileSize is the configured upload limit in bytes.
func (s *Service) MaxFileSize() int64 { return s.cfg.MaxFileSize }
