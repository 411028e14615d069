// Package app wires the gateway core's long-running supervised tasks
// (horizon tracker, topology refresher, reporter drain loop) as
// shutter.Shutter-embedding services, the same supervision idiom the
// teacher's provider/consumer sidecars use (spec §5).
package app

import (
	"context"

	"github.com/streamingfast/shutter"
	"go.uber.org/zap"

	"github.com/graphprotocol/gateway-core/horizon"
)

// HorizonService supervises the horizon activation tracker. It is
// cancelable only at tick boundaries, per spec §5.
type HorizonService struct {
	*shutter.Shutter

	logger  *zap.Logger
	tracker *horizon.Tracker
}

// NewHorizonService builds a HorizonService around an already-configured
// Tracker.
func NewHorizonService(logger *zap.Logger, tracker *horizon.Tracker) *HorizonService {
	return &HorizonService{
		Shutter: shutter.New(),
		logger:  logger,
		tracker: tracker,
	}
}

// Tracker exposes the underlying horizon.Tracker so the receipt signing
// path can read the current strategy without going through the
// supervision layer.
func (s *HorizonService) Tracker() *horizon.Tracker {
	return s.tracker
}

func (s *HorizonService) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	s.OnTerminating(func(_ error) {
		cancel()
	})

	s.logger.Info("starting horizon tracker")
	s.tracker.Run(ctx)
	s.Shutdown(nil)
}
