package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/streamingfast/shutter"
	"go.uber.org/zap"

	"github.com/graphprotocol/gateway-core/network"
	"github.com/graphprotocol/gateway-core/types"
)

// DefaultTopologyRefreshInterval is how often the topology service
// rebuilds and republishes the network snapshot absent an explicit
// override (spec §4.5, §5).
const DefaultTopologyRefreshInterval = 20 * time.Second

// UpstreamFetcher retrieves the raw indexer and subgraph records the
// snapshot builder consumes. It is the boundary to the network subgraph
// / indexer status upstreams, which are out of scope for this core
// (spec §1: "the HTTP ingress server... out of scope").
type UpstreamFetcher interface {
	FetchIndexersInfo(ctx context.Context) (map[types.Address]network.IndexerInfo, error)
	FetchSubgraphsInfo(ctx context.Context) (map[types.SubgraphId]network.SubgraphInfo, error)
}

// TopologyService periodically rebuilds the network topology snapshot
// via network.NewSnapshot (a pure function) and publishes it atomically.
// Readers observe the latest snapshot by loading the pointer; an
// in-flight operation may keep a reference to a superseded snapshot
// until it completes (spec §3 "Lifecycle", §9 "Replacing per-request
// shared-mutable maps").
type TopologyService struct {
	*shutter.Shutter

	logger   *zap.Logger
	fetcher  UpstreamFetcher
	interval time.Duration

	current atomic.Pointer[network.NetworkTopologySnapshot]
}

// NewTopologyService builds a TopologyService. interval <= 0 uses
// DefaultTopologyRefreshInterval.
func NewTopologyService(logger *zap.Logger, fetcher UpstreamFetcher, interval time.Duration) *TopologyService {
	if interval <= 0 {
		interval = DefaultTopologyRefreshInterval
	}
	return &TopologyService{
		Shutter:  shutter.New(),
		logger:   logger,
		fetcher:  fetcher,
		interval: interval,
	}
}

// Snapshot returns the most recently published snapshot, or nil before
// the first successful refresh.
func (s *TopologyService) Snapshot() *network.NetworkTopologySnapshot {
	return s.current.Load()
}

func (s *TopologyService) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	s.OnTerminating(func(_ error) {
		cancel()
	})

	s.refreshOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Shutdown(nil)
			return
		case <-ticker.C:
			s.refreshOnce(ctx)
		}
	}
}

func (s *TopologyService) refreshOnce(ctx context.Context) {
	indexersInfo, err := s.fetcher.FetchIndexersInfo(ctx)
	if err != nil {
		s.logger.Warn("topology refresh: fetching indexers failed, keeping previous snapshot", zap.Error(err))
		return
	}

	subgraphsInfo, err := s.fetcher.FetchSubgraphsInfo(ctx)
	if err != nil {
		s.logger.Warn("topology refresh: fetching subgraphs failed, keeping previous snapshot", zap.Error(err))
		return
	}

	snapshot := network.NewSnapshot(indexersInfo, subgraphsInfo)
	s.current.Store(snapshot)
	s.logger.Info("published network topology snapshot",
		zap.Int("subgraphs", len(snapshot.Subgraphs())),
		zap.Int("deployments", len(snapshot.Deployments())))
}
