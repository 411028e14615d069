package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/graphprotocol/gateway-core/horizon"
)

func TestHorizonService_RunStopsOnShutdown(t *testing.T) {
	logger := zaptest.NewLogger(t)
	tracker := horizon.NewTracker(logger, nil, nil, time.Millisecond)
	svc := NewHorizonService(logger, tracker)

	require.Same(t, tracker, svc.Tracker())
	require.False(t, svc.Tracker().IsHorizonActive())

	done := make(chan struct{})
	go func() {
		svc.Run()
		close(done)
	}()

	// Give the tracker a moment to run its first check-once pass before
	// tearing the service down.
	time.Sleep(5 * time.Millisecond)
	svc.Shutdown(nil)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}
