package analysis

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/tck-bridge/call"
	"github.com/wippyai/tck-bridge/invoke"
	"github.com/wippyai/tck-bridge/scratch"
)

// Invoker runs a validated call. *invoke.Invoker satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, d *call.Descriptor, opts ...invoke.CallOption) (*invoke.Outcome, error)
}

// Service runs catalog operations through an Invoker.
type Service struct {
	catalog    *Catalog
	invoker    Invoker
	logger     *zap.Logger
	scratchDir string
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithScratchDir sets where model files are written. Empty means the
// system temporary directory.
func WithScratchDir(dir string) ServiceOption {
	return func(s *Service) { s.scratchDir = dir }
}

func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service over catalog c.
func NewService(c *Catalog, iv Invoker, opts ...ServiceOption) *Service {
	s := &Service{catalog: c, invoker: iv, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the operations the service knows.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// Run builds and invokes operation op. Files written for the request are
// removed before Run returns, whatever the outcome. The Outcome is never nil.
func (s *Service) Run(ctx context.Context, op string, values map[string]any, opts ...invoke.CallOption) (*invoke.Outcome, error) {
	scope := scratch.New(s.scratchDir, "tckbridge-model")
	defer func() {
		if err := scope.Close(); err != nil {
			s.logger.Warn("scratch cleanup failed", zap.String("operation", op), zap.Error(err))
		}
	}()

	d, err := s.catalog.Build(op, values, scope)
	if err != nil {
		symbol := ""
		if o, ok := s.catalog.Lookup(op); ok {
			symbol = o.Symbol
		}
		out := invoke.Rejected(symbol, err)
		s.logger.Info("operation rejected",
			zap.String("id", out.ID.String()),
			zap.String("operation", op),
			zap.String("status", string(out.Status)),
			zap.Error(err),
		)
		return out, err
	}

	s.logger.Debug("running operation", zap.String("operation", op), zap.Stringer("call", d))
	return s.invoker.Invoke(ctx, d, opts...)
}
