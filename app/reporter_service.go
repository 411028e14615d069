package app

import (
	"context"

	"github.com/streamingfast/shutter"
	"go.uber.org/zap"

	"github.com/graphprotocol/gateway-core/reporting"
)

// ReporterService supervises the reporting pipeline's drain loop. The
// loop never exits on a single reporting failure (spec §7, §9); it only
// stops when the service is shut down.
type ReporterService struct {
	*shutter.Shutter

	logger   *zap.Logger
	reporter *reporting.Reporter
}

// NewReporterService builds a ReporterService around an already-wired
// Reporter.
func NewReporterService(logger *zap.Logger, reporter *reporting.Reporter) *ReporterService {
	return &ReporterService{
		Shutter:  shutter.New(),
		logger:   logger,
		reporter: reporter,
	}
}

// Reporter exposes the underlying reporting.Reporter so request-serving
// code can Enqueue completed ClientRequests.
func (s *ReporterService) Reporter() *reporting.Reporter {
	return s.reporter
}

func (s *ReporterService) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	s.OnTerminating(func(_ error) {
		cancel()
	})

	s.logger.Info("starting reporter drain loop")
	s.reporter.Run(ctx)
	s.reporter.Wait()
	s.Shutdown(nil)
}
